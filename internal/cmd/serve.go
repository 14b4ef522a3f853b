package cmd

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/config"
	"github.com/octofetch/octofetch/internal/core/cache"
	errwrap "github.com/octofetch/octofetch/internal/errors"
	"github.com/octofetch/octofetch/internal/metrics"
	"github.com/octofetch/octofetch/internal/observability"
	"github.com/octofetch/octofetch/internal/server"
	"github.com/octofetch/octofetch/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewServiceUnavailableError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP façade",
	Long: `Serve lookups over HTTP through one shared session, so every caller shares
the same quota tracker and cache:

  GET /v1/resources/{path}     single resource
  GET /v1/collections/{path}   whole collection (per_page, max_pages, partial)
  GET /v1/rate-limit           latest quota snapshot

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (validation only; restart to apply)

Set OCTOFETCH_ADMIN_TOKEN to enable POST /admin/signal.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.GitHub.BaseURL)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
	}

	env, err := openFetchEnv(cmd.Context(), cfg, fetchEnvOptions{NoCache: noCache, Logger: logger})
	if err != nil {
		return err
	}

	logger.Info("Initializing server",
		zap.String("service", config.AppName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Int("metrics_port", observability.GetMetricsPort()),
		zap.String("cache_backend", cacheBackendName(cfg, env)),
		zap.Bool("authenticated", cfg.GitHub.Token != ""))

	hm := handlers.NewHealthManager(versionInfo.Version)
	if cfg.Health.Enabled {
		hm.RegisterChecker("upstream_quota", handlers.QuotaChecker{Fetcher: env.session})
		if env.db != nil {
			hm.RegisterChecker("store", handlers.HealthCheckFunc(env.db.CheckHealth))
		}
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
	}

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Fetcher:      env.session,
		PerPage:      cfg.GitHub.PerPage,
		MaxPages:     cfg.GitHub.MaxPages,
		Health:       hm,
		AdminToken:   strings.TrimSpace(os.Getenv(config.EnvPrefix + "ADMIN_TOKEN")),
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if env.cache != nil {
		go cache.Sweep(sweepCtx, env.cache, cfg.Cache.SweepInterval, func(removed int, err error) {
			if err != nil {
				logger.Warn("Cache sweep failed", zap.Error(err))
				return
			}
			if removed > 0 {
				logger.Debug("Cache sweep evicted entries", zap.Int("removed", removed))
			}
		})
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: server, then store, then logger.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		stopSweep()
		if err := env.Close(ctx); err != nil {
			logger.Warn("Store close returned error", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: validating configuration")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		if _, err := config.Load(viper.GetViper()); err != nil {
			logger.Error("Reloaded configuration is invalid", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		logger.Info("Configuration validated; restart to apply upstream and cache changes",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server...", zap.String("addr", srv.Addr()))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		stopSweep()
		_ = env.Close(context.Background())
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}

	return nil
}

func cacheBackendName(cfg *config.Config, env *fetchEnv) string {
	if env.cache == nil {
		return config.CacheBackendNone
	}
	return cfg.Cache.Backend
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
