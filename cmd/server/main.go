package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"moltblox/internal/config"
	"moltblox/internal/game/catalog"
	"moltblox/internal/logging"
	"moltblox/internal/server"
	"moltblox/internal/session"
	"moltblox/internal/storage"
)

var configFile string

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "moltblox",
		Short:        "moltblox turn-based game server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("addr", "", "listen address")
	flags.String("db", "", "sqlite database path")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("metrics-addr", "", "statsviz listen address, empty disables")
	for key, flag := range map[string]string{
		"addr":        "addr",
		"dbPath":      "db",
		"logLevel":    "log-level",
		"metricsAddr": "metrics-addr",
	} {
		v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.LogLevel, "moltblox")
	logger.Info("config loaded", "addr", cfg.Addr, "db", cfg.DBPath, "metrics", cfg.MetricsAddr)

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	registry := catalog.NewRegistry()
	mgr, err := session.NewManager(registry, store, logger, session.Options{MaxCPUSteps: cfg.MaxCPUSteps})
	if err != nil {
		return err
	}
	defer mgr.Close()
	if err := mgr.Restore(); err != nil {
		logger.Warn("restore sessions", "err", err)
	}

	api := &http.Server{Addr: cfg.Addr, Handler: server.New(registry, mgr, logger)}
	servers := []*http.Server{api}
	if cfg.MetricsAddr != "" {
		h, err := server.MetricsHandler()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: h})
		logger.Info("metrics enabled", "url", "http://"+cfg.MetricsAddr+"/debug/statsviz/")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mgr.CleanupLoop(ctx, cfg.CleanupInterval, cfg.SessionMaxAge)
		return nil
	})
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown", "addr", srv.Addr, "err", err)
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
