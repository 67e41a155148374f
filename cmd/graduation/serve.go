package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graduationScope/internal/api"
	"graduationScope/internal/config"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg.Config, appOptions{window: cfg.Window, checkpoint: cfg.Checkpoint}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.JWTSecret == "" {
		logger.Warn("no jwt secret configured, all requests are anonymous")
	}
	server := api.NewServer(api.Config{
		Service:        a.service,
		Thresholds:     a.thresholds,
		Prices:         a.prices,
		Auth:           api.NewAuthenticator(cfg.JWTSecret, ""),
		Limiter:        api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Metrics:        api.NewMetrics(),
		ReceiptTimeout: cfg.ReceiptTimeout,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("graduation api start",
		zap.String("listen", cfg.Listen),
		zap.String("backend", cfg.Backend),
		zap.Bool("postgres", a.pg != nil),
		zap.Bool("sampler", cfg.SamplerEnabled),
		zap.Uint64("chain_id", a.chainID),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(gctx, srv, logger)
	})
	if cfg.SamplerEnabled {
		g.Go(func() error {
			return a.newSampler(cfg.SampleConfig).Run(gctx)
		})
	}
	return g.Wait()
}
