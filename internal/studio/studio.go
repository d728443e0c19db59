// Package studio is the orchestrator that ties all PromptStudio components together.
package studio

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/promptstudio/promptstudio/internal/api"
	"github.com/promptstudio/promptstudio/internal/auth"
	"github.com/promptstudio/promptstudio/internal/billing"
	"github.com/promptstudio/promptstudio/internal/config"
	"github.com/promptstudio/promptstudio/internal/metrics"
	"github.com/promptstudio/promptstudio/internal/prompt"
	"github.com/promptstudio/promptstudio/internal/store"
	"github.com/promptstudio/promptstudio/internal/usage"
)

const shutdownTimeout = 30 * time.Second

// Studio is the main PromptStudio process.
type Studio struct {
	cfg    *config.Config
	store  store.Store
	auth   *auth.Service
	api    *api.Server
	logger *slog.Logger
}

// New creates a Studio from configuration. reg may be nil, in which case a
// fresh registry is used.
func New(cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) (*Studio, error) {
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	gen, err := prompt.New()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init prompts: %w", err)
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rec := metrics.NewCollector(reg)

	authSvc := auth.NewService(db, cfg.Session, logger)
	bridge := billing.NewBridge(cfg.Billing, cfg.Server.AppURL, authSvc, rec, logger)

	apiSrv := api.NewServer(api.Deps{
		Store:    db,
		Auth:     authSvc,
		Meter:    usage.NewMeter(db, rec, logger),
		Resolver: billing.NewResolver(authSvc),
		Bridge:   bridge,
		Prompts:  gen,
		Metrics:  rec,
		Gatherer: reg,
	}, cfg, logger)

	s := &Studio{
		cfg:    cfg,
		store:  db,
		auth:   authSvc,
		api:    apiSrv,
		logger: logger.With("component", "studio"),
	}
	s.warnings()
	return s, nil
}

// warnings logs configuration that works but is likely a mistake.
func (s *Studio) warnings() {
	b := s.cfg.Billing
	if strings.TrimSpace(b.StripePriceID) == "" {
		s.logger.Warn("STRIPE_PRICE_ID not set, checkout will fail until it is configured")
	}
	if strings.TrimSpace(b.StripeWebhookSecret) == "" {
		s.logger.Warn("STRIPE_WEBHOOK_SECRET not set, all webhook events will be rejected")
	}
	if strings.TrimSpace(b.StripeSecretKey) == "" {
		s.logger.Warn("STRIPE_SECRET_KEY not set, checkout requests will be refused by Stripe")
	}
	if s.cfg.Storage.Driver == "memory" {
		s.logger.Info("using in-memory storage, accounts and sessions are lost on restart")
	}
	for _, origin := range s.cfg.Server.AllowedOrigins {
		if origin == "*" {
			s.logger.Warn("CORS allowed_origins contains wildcard '*', restrict to specific origins in production")
			break
		}
	}
}

// Handler returns the HTTP handler. Exposed for tests.
func (s *Studio) Handler() http.Handler {
	return s.api.Handler()
}

// Run serves HTTP and blocks until ctx is canceled or the listener fails.
func (s *Studio) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ttl := s.cfg.Session.TTL.Duration; ttl > 0 {
		go s.auth.RunPurger(ctx, s.cfg.Session.PurgeInterval.Duration)
		s.logger.Info("session expiry enabled", "ttl", ttl, "purge_interval", s.cfg.Session.PurgeInterval.Duration)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("promptstudio listening", "addr", s.cfg.Server.Addr, "app_url", s.cfg.Server.AppURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		} else {
			s.logger.Info("http server stopped gracefully")
		}

		_ = s.store.Close()
		s.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		_ = s.store.Close()
		return err
	}
}
