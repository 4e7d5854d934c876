package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/depotkit/concierge/pkg/auth"
	"github.com/depotkit/concierge/pkg/config"
	"github.com/depotkit/concierge/pkg/disambig"
	"github.com/depotkit/concierge/pkg/draft"
	"github.com/depotkit/concierge/pkg/engine"
	"github.com/depotkit/concierge/pkg/housekeeping"
	"github.com/depotkit/concierge/pkg/httpclient"
	"github.com/depotkit/concierge/pkg/llm"
	"github.com/depotkit/concierge/pkg/metrics"
	"github.com/depotkit/concierge/pkg/ratelimit"
	"github.com/depotkit/concierge/pkg/server"
	"github.com/depotkit/concierge/pkg/session"
	"github.com/depotkit/concierge/pkg/store"
	"github.com/depotkit/concierge/pkg/tool"
	"github.com/depotkit/concierge/pkg/toolkit"
)

// ServeCmd starts the assistant server.
type ServeCmd struct {
	Port int `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFile(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sessions := session.NewSQLStore(st.DB(), st.Dialect(),
		cfg.Assistant.SessionTTL(), cfg.Assistant.HistoryWindow)

	registry := tool.NewRegistry()
	tk := toolkit.New(st, draft.NewManager(st), disambig.NewManager(cfg.Assistant.MaxCandidates))
	if err := tk.Register(registry); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	retrying := httpclient.New(time.Duration(cfg.LLM.Timeout)*time.Second,
		httpclient.WithLogger(logger))
	provider := llm.NewClient(cfg.LLM, llm.WithHTTPClient(retrying))
	eng := engine.New(provider, registry, sessions, m, logger, cfg.Assistant)

	opts := []server.Option{server.WithMetrics(m, promReg)}
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter := ratelimit.New(ratelimit.NewMemoryStore(),
			int64(cfg.Server.RateLimitPerMinute), time.Minute)
		opts = append(opts, server.WithRateLimiter(limiter))
	}
	if cfg.Auth.Enabled {
		validator, err := auth.NewJWTValidator(cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return fmt.Errorf("failed to initialize auth: %w", err)
		}
		opts = append(opts, server.WithAuthValidator(validator))
	} else {
		logger.Warn("auth disabled, tenancy scope is taken from request headers")
	}
	srv := server.New(&cfg.Server, eng, logger, opts...)

	sweeper := housekeeping.New(st, sessions, cfg.Assistant.DraftMaxAge(), logger)
	if err := sweeper.Start(cfg.Assistant.SweepSchedule); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	defer sweeper.Stop()

	logger.Info("starting server",
		"addr", cfg.Server.Address(),
		"driver", cfg.Database.Driver,
		"model", cfg.LLM.Model,
		"auth", cfg.Auth.Enabled)

	return srv.ListenAndServe(ctx)
}
