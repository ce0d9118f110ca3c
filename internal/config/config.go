package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"WalletSentinel/internal/model"
)

// ConfigError reports an invalid configuration value. It is fatal at startup.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Retries  int    `yaml:"retries"`
	} `yaml:"telegram"`
	Chain struct {
		Network        string              `yaml:"network"`
		RPCURL         string              `yaml:"rpc_url"`
		AlchemyAPIKey  string              `yaml:"alchemy_api_key"`
		ETHPrice       float64             `yaml:"eth_usd_price"`
		RateLimit      float64             `yaml:"rate_limit"`
		Labels         map[string][]string `yaml:"labels"`
		RiskyContracts []string            `yaml:"risky_contracts"`
	} `yaml:"chain"`
	Monitor struct {
		Interval            time.Duration `yaml:"interval"`
		Workers             int           `yaml:"workers"`
		FetchTimeout        time.Duration `yaml:"fetch_timeout"`
		LabelTimeout        time.Duration `yaml:"label_timeout"`
		RecentTxLimit       int           `yaml:"recent_tx_limit"`
		SweepRetries        int           `yaml:"sweep_retries"`
		RetryDelay          time.Duration `yaml:"retry_delay"`
		ErrorBroadcastAfter int           `yaml:"error_broadcast_after"`
		RunOnStart          bool          `yaml:"run_on_start"`
	} `yaml:"monitor"`
	Alerts struct {
		WhaleThreshold float64                  `yaml:"whale_threshold"`
		RiskThreshold  float64                  `yaml:"risk_threshold"`
		Cooldown       time.Duration            `yaml:"cooldown"`
		TypeCooldowns  map[string]time.Duration `yaml:"type_cooldowns"`
		MaxPerHour     int                      `yaml:"max_per_hour"`
	} `yaml:"alerts"`
	Schedule struct {
		PruneCron  string `yaml:"prune_cron"`
		DigestCron string `yaml:"digest_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Kafka struct {
		Broker string `yaml:"broker"`
		Topic  string `yaml:"topic"`
	} `yaml:"kafka"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	LogLevel string `yaml:"log_level"`
	DryRun   bool   `yaml:"dry_run"`
}

// Load reads config from a YAML file, loads .env if present, applies
// environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, &ConfigError{Field: key, Msg: fmt.Sprintf("invalid number %q", v)})
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, &ConfigError{Field: key, Msg: fmt.Sprintf("invalid integer %q", v)})
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, &ConfigError{Field: key, Msg: err.Error()})
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, &ConfigError{Field: key, Msg: fmt.Sprintf("invalid boolean %q", v)})
				return
			}
			*dst = b
		}
	}

	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("ETH_NETWORK", &c.Chain.Network)
	str("ETH_RPC_URL", &c.Chain.RPCURL)
	str("ALCHEMY_API_KEY", &c.Chain.AlchemyAPIKey)
	num("ETH_USD_PRICE", &c.Chain.ETHPrice)
	num("CHAIN_RATE_LIMIT", &c.Chain.RateLimit)
	if v := os.Getenv("RISKY_CONTRACTS"); v != "" {
		c.Chain.RiskyContracts = splitList(v)
	}

	duration("MONITOR_INTERVAL", &c.Monitor.Interval)
	integer("MONITOR_WORKERS", &c.Monitor.Workers)
	duration("FETCH_TIMEOUT", &c.Monitor.FetchTimeout)
	duration("LABEL_TIMEOUT", &c.Monitor.LabelTimeout)
	integer("RECENT_TX_LIMIT", &c.Monitor.RecentTxLimit)
	integer("SWEEP_RETRIES", &c.Monitor.SweepRetries)
	integer("ERROR_BROADCAST_AFTER", &c.Monitor.ErrorBroadcastAfter)
	boolean("RUN_ON_START", &c.Monitor.RunOnStart)

	num("WHALE_THRESHOLD", &c.Alerts.WhaleThreshold)
	num("RISK_THRESHOLD", &c.Alerts.RiskThreshold)
	duration("ALERT_COOLDOWN", &c.Alerts.Cooldown)
	integer("MAX_ALERTS_PER_HOUR", &c.Alerts.MaxPerHour)

	str("CRON_PRUNE", &c.Schedule.PruneCron)
	str("CRON_DIGEST", &c.Schedule.DigestCron)
	str("SQLITE_PATH", &c.Database.SQLitePath)
	str("KAFKA_BROKER", &c.Kafka.Broker)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.LogLevel)
	boolean("DRY_RUN", &c.DryRun)

	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.Telegram.Retries == 0 {
		c.Telegram.Retries = 3
	}
	if c.Chain.Network == "" {
		c.Chain.Network = "mainnet"
	}
	if c.Chain.RPCURL == "" && c.Chain.AlchemyAPIKey != "" {
		c.Chain.RPCURL = fmt.Sprintf("https://eth-%s.g.alchemy.com/v2/%s", c.Chain.Network, c.Chain.AlchemyAPIKey)
	}
	if c.Chain.ETHPrice == 0 {
		c.Chain.ETHPrice = 3000
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 60 * time.Second
	}
	if c.Monitor.Workers == 0 {
		c.Monitor.Workers = 1
	}
	if c.Monitor.FetchTimeout == 0 {
		c.Monitor.FetchTimeout = 10 * time.Second
	}
	if c.Monitor.LabelTimeout == 0 {
		c.Monitor.LabelTimeout = 2 * time.Second
	}
	if c.Monitor.RecentTxLimit == 0 {
		c.Monitor.RecentTxLimit = 50
	}
	if c.Monitor.SweepRetries == 0 {
		c.Monitor.SweepRetries = 3
	}
	if c.Monitor.RetryDelay == 0 {
		c.Monitor.RetryDelay = 5 * time.Second
	}
	if c.Monitor.ErrorBroadcastAfter == 0 {
		c.Monitor.ErrorBroadcastAfter = 3
	}
	if c.Alerts.WhaleThreshold == 0 {
		c.Alerts.WhaleThreshold = 1_000_000
	}
	if c.Alerts.RiskThreshold == 0 {
		c.Alerts.RiskThreshold = 0.7
	}
	if c.Alerts.Cooldown == 0 {
		c.Alerts.Cooldown = 300 * time.Second
	}
	if c.Alerts.MaxPerHour == 0 {
		c.Alerts.MaxPerHour = 10
	}
	if c.Schedule.PruneCron == "" {
		c.Schedule.PruneCron = "0 */10 * * * *"
	}
	if c.Schedule.DigestCron == "" {
		c.Schedule.DigestCron = "0 0 9 * * *"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "wallet-alerts"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks ranges and required fields. All problems are returned
// joined; each one is a *ConfigError.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, msg string) {
		errs = append(errs, &ConfigError{Field: field, Msg: msg})
	}

	if !c.DryRun && c.Telegram.BotToken == "" {
		bad("telegram.bot_token", "required unless dry_run is set")
	}
	if !c.DryRun && c.Chain.RPCURL == "" {
		bad("chain.rpc_url", "rpc_url or alchemy_api_key is required unless dry_run is set")
	}
	if c.Chain.ETHPrice <= 0 {
		bad("chain.eth_usd_price", "must be positive")
	}
	if c.Chain.RateLimit < 0 {
		bad("chain.rate_limit", "must not be negative")
	}
	if c.Alerts.RiskThreshold <= 0 || c.Alerts.RiskThreshold > 1 {
		bad("alerts.risk_threshold", "must be in (0, 1]")
	}
	if c.Alerts.WhaleThreshold <= 0 {
		bad("alerts.whale_threshold", "must be positive")
	}
	if c.Alerts.Cooldown < 0 {
		bad("alerts.cooldown", "must not be negative")
	}
	for name, d := range c.Alerts.TypeCooldowns {
		if _, ok := model.ParseAlertType(name); !ok {
			bad("alerts.type_cooldowns", fmt.Sprintf("unknown alert type %q", name))
		}
		if d < 0 {
			bad("alerts.type_cooldowns", fmt.Sprintf("%s must not be negative", name))
		}
	}
	if c.Alerts.MaxPerHour < 1 {
		bad("alerts.max_per_hour", "must be at least 1")
	}
	if c.Monitor.Interval <= 0 {
		bad("monitor.interval", "must be positive")
	}
	if c.Monitor.Workers < 1 {
		bad("monitor.workers", "must be at least 1")
	}
	if c.Monitor.FetchTimeout <= 0 {
		bad("monitor.fetch_timeout", "must be positive")
	}
	if c.Monitor.LabelTimeout <= 0 {
		bad("monitor.label_timeout", "must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		bad("log_level", fmt.Sprintf("unknown level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// TypeCooldowns returns the per-type cooldown overrides keyed by alert type.
func (c *Config) TypeCooldowns() map[model.AlertType]time.Duration {
	out := make(map[model.AlertType]time.Duration, len(c.Alerts.TypeCooldowns))
	for name, d := range c.Alerts.TypeCooldowns {
		if t, ok := model.ParseAlertType(name); ok {
			out[t] = d
		}
	}
	return out
}

// parseDuration accepts Go durations ("90s") and bare seconds ("300").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
