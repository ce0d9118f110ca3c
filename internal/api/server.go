// Package api exposes the HTTP control surface and health endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"WalletSentinel/internal/history"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/metrics"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/registry"
)

// Analyzer produces an on-demand wallet analysis.
type Analyzer interface {
	Analyze(ctx context.Context, address string) (*model.Analysis, error)
}

// AlertSwitch activates and deactivates alert keys.
type AlertSwitch interface {
	Activate(ctx context.Context, key model.AlertKey) error
	Deactivate(ctx context.Context, key model.AlertKey) error
}

// Check is a named readiness check.
type Check func(ctx context.Context) error

// Deps are the collaborators served by the API.
type Deps struct {
	Registry *registry.Registry
	History  *history.Store
	Analyzer Analyzer
	Alerts   AlertSwitch
	Checks   map[string]Check
}

// Server is the HTTP control surface.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	deps    Deps
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{deps: deps, router: gin.New()}
	s.setupMiddleware()
	s.setupRoutes()
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		l := logger.GetLogger()
		l.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))
	s.router.Use(metrics.Middleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/api/v1")
	v1.GET("/wallets/:address/risk", s.WalletRisk)
	v1.GET("/subscribers/:chat_id", s.GetSubscriber)
	v1.POST("/subscribers/:chat_id/wallets", s.WatchWallet)
	v1.DELETE("/subscribers/:chat_id/wallets/:address", s.UnwatchWallet)
	v1.PUT("/subscribers/:chat_id/preferences/:alert_type", s.SetPreference)
	v1.GET("/alerts", s.ListAlerts)
	v1.POST("/alerts/:alert_type/:subject/activate", s.ActivateAlert)
	v1.POST("/alerts/:alert_type/:subject/deactivate", s.DeactivateAlert)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		l := logger.GetLogger()
		l.Info().Str("addr", s.httpSrv.Addr).Msg("http server started")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	l := logger.GetLogger()
	l.Info().Msg("http server stopped")
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	status, httpStatus := "ready", http.StatusOK
	for _, name := range names {
		if err := s.deps.Checks[name](ctx); err != nil {
			checks[name] = err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(httpStatus, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
