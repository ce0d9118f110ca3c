package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"WalletSentinel/internal/api"
	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/config"
	"WalletSentinel/internal/dispatch"
	"WalletSentinel/internal/events"
	"WalletSentinel/internal/features"
	"WalletSentinel/internal/gate"
	"WalletSentinel/internal/history"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/monitor"
	"WalletSentinel/internal/notifier"
	"WalletSentinel/internal/policy"
	"WalletSentinel/internal/recorder"
	"WalletSentinel/internal/registry"
	"WalletSentinel/internal/risk"
	"WalletSentinel/internal/scheduler"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		l := logger.GetLogger()
		l.Fatal().Err(err).Msg("load config")
	}
	logger.Init(cfg.LogLevel)
	l := logger.GetLogger()
	if err := cfg.Validate(); err != nil {
		l.Fatal().Err(err).Msg("config validation")
	}
	l.Info().Bool("dry_run", cfg.DryRun).Str("network", cfg.Chain.Network).Msg("WalletSentinel starting")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init recorder
	var rec recorder.Recorder
	var store *recorder.SQLiteRecorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(ctx, cfg.Database.SQLitePath)
		if err != nil {
			l.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec, store = sr, sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init stores
	var hist *history.Store
	var reg *registry.Registry
	if store != nil {
		hist, reg = history.NewStore(store), registry.New(store)
	} else {
		hist, reg = history.NewStore(nil), registry.New(nil)
	}
	if err := hist.Load(ctx); err != nil {
		l.Fatal().Err(err).Msg("load alert history")
	}
	if err := reg.Load(ctx); err != nil {
		l.Fatal().Err(err).Msg("load subscribers")
	}
	l.Info().Int("alerts", hist.Len()).Int("wallets", len(reg.WatchedWallets())).Msg("state restored")

	// Init chain client
	var client chain.Client
	if cfg.DryRun && cfg.Chain.RPCURL == "" {
		mock := chain.NewMockClient()
		mock.Generate = true
		client = mock
		l.Info().Msg("chain: generated mock data")
	} else {
		ec, err := chain.DialEth(ctx, chain.EthConfig{
			RPCURL:    cfg.Chain.RPCURL,
			ETHPrice:  cfg.Chain.ETHPrice,
			RateLimit: cfg.Chain.RateLimit,
			Labels:    cfg.Chain.Labels,
		})
		if err != nil {
			l.Fatal().Err(err).Msg("dial chain rpc")
		}
		defer ec.Close()
		client = ec
	}

	// Init notifier
	var sender dispatch.Sender = notifier.LogNotifier{}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn, err = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.Retries)
		if err != nil {
			l.Fatal().Err(err).Msg("init telegram notifier")
		}
		if !cfg.DryRun {
			sender = tn
		}
	}

	// Init event publisher
	var pub events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Broker != "" {
		kp := events.NewKafkaPublisher(cfg.Kafka.Broker, cfg.Kafka.Topic)
		defer kp.Close()
		pub = kp
		l.Info().Str("broker", cfg.Kafka.Broker).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	}

	thresholds := policy.Thresholds{WhaleUSD: cfg.Alerts.WhaleThreshold, Risk: cfg.Alerts.RiskThreshold}
	g := gate.New(hist, gate.Config{
		Cooldown:      cfg.Alerts.Cooldown,
		TypeCooldowns: cfg.TypeCooldowns(),
		MaxPerHour:    cfg.Alerts.MaxPerHour,
	})
	if n, err := g.RestoreWindows(ctx, rec); err != nil {
		l.Warn().Err(err).Msg("rate windows not restored, starting empty")
	} else {
		l.Info().Int("subscribers", n).Msg("rate windows restored")
	}

	loop := monitor.New(monitor.Deps{
		Collector: chain.NewCollector(client,
			risk.NewTxAssessor(thresholds.WhaleUSD, cfg.Chain.RiskyContracts),
			cfg.Monitor.FetchTimeout, cfg.Monitor.RecentTxLimit),
		Extractor:  features.NewExtractor(),
		Scorer:     risk.NewScorer(nil, cfg.Monitor.LabelTimeout),
		Gate:       g,
		Registry:   reg,
		Dispatcher: dispatch.New(sender, rec),
		Publisher:  pub,
		Recorder:   rec,
	}, monitor.Config{
		Interval:            cfg.Monitor.Interval,
		Workers:             cfg.Monitor.Workers,
		SweepRetries:        cfg.Monitor.SweepRetries,
		RetryDelay:          cfg.Monitor.RetryDelay,
		ErrorBroadcastAfter: cfg.Monitor.ErrorBroadcastAfter,
		Thresholds:          thresholds,
		Immediate:           cfg.Monitor.RunOnStart,
	})

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, g, reg, hist, rec, sender)
	if err := sched.RegisterAll(cfg.Schedule.PruneCron, cfg.Schedule.DigestCron); err != nil {
		l.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	var wg sync.WaitGroup

	// Start Telegram polling
	if tn != nil {
		cmds := &notifier.Commands{
			Registry:   reg,
			History:    hist,
			Analyzer:   loop,
			Quota:      g,
			MaxPerHour: cfg.Alerts.MaxPerHour,
		}
		cmds.Register(tn.Bot())
		wg.Add(1)
		go func() {
			defer wg.Done()
			tn.Start(ctx)
		}()
	}

	// Start HTTP control surface
	srv := api.NewServer(cfg.HTTP.Addr, api.Deps{
		Registry: reg,
		History:  hist,
		Analyzer: loop,
		Alerts:   g,
		Checks: map[string]api.Check{
			"chain":    loop.Ready,
			"recorder": rec.Ping,
		},
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			l.Error().Err(err).Msg("http server")
		}
	}()

	// Start monitor loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	l.Info().Msg("WalletSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.Info().Msg("shutdown signal received, stopping...")
	cancel()
	wg.Wait()
	l.Info().Msg("WalletSentinel stopped")
}
