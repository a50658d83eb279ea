package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saadchadu/phrames"
	"github.com/saadchadu/phrames/internal/config"
	"github.com/saadchadu/phrames/internal/server"
	"github.com/saadchadu/phrames/proxy"
	"github.com/saadchadu/phrames/store"
)

// housekeepingInterval is how often expired proxy cache entries and idle
// rate limiter buckets are dropped.
const housekeepingInterval = 10 * time.Minute

const maxLimiterKeys = 10000

func serveCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the campaign page, composite and image proxy service",
		Long: `Run the phrames HTTP service.

Configuration is read from the YAML file given by --config, then from the
env file, then from PHRAMES_* environment variables.

Examples:
  phrames serve --config phrames.yaml
  PHRAMES_ADDR=:9000 phrames serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with PHRAMES_* variables")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logging.NewLogger(os.Stderr)
	phrames.SetLogger(logger)

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if cfg.Store.SeedFile != "" {
		n, err := store.SeedFile(ctx, st, cfg.Store.SeedFile)
		if err != nil {
			return err
		}
		logger.Info("seeded campaigns", "created", n, "file", cfg.Store.SeedFile)
	}

	var counters store.Counters = st
	if cfg.Store.Counters == "redis" {
		client, err := store.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		counters = store.NewRedisCounters(client, cfg.Redis.Prefix)
		logger.Info("counting downloads in redis", "addr", cfg.Redis.Addr)
	}

	sweeper, err := store.NewSweeper(st, cfg.Store.SweepSchedule, logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sweeper.Stop(stopCtx)
	}()

	fetcher := proxy.NewFetcher(nil, proxy.Config{
		AllowedHosts:         cfg.Proxy.AllowedHosts,
		MaxBytes:             cfg.Proxy.MaxBytes,
		Timeout:              cfg.Proxy.Timeout,
		CacheTTL:             cfg.Proxy.CacheTTL,
		CacheCapacity:        cfg.Proxy.CacheCapacity,
		AllowPrivateNetworks: cfg.Proxy.AllowPrivateNetworks,
	}, logger)
	limiter := proxy.NewRateLimiter(cfg.Proxy.RatePerSecond, cfg.Proxy.Burst)
	go housekeeping(ctx, fetcher, limiter)

	srv, err := server.New(cfg, server.Deps{
		Store:    st,
		Counters: counters,
		Fetcher:  fetcher,
		Limiter:  limiter,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("phrames: %w", err)
	}
	return srv.ListenAndServe(ctx)
}

func housekeeping(ctx context.Context, f *proxy.Fetcher, rl *proxy.RateLimiter) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Purge()
			rl.Cleanup(maxLimiterKeys)
		}
	}
}
