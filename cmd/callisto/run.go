package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"veridian-hq/callisto/pkg/cli"
	"veridian-hq/callisto/pkg/config"
	"veridian-hq/callisto/pkg/dispatch"
	"veridian-hq/callisto/pkg/dispatch/budget"
	"veridian-hq/callisto/pkg/dispatch/budget/storage"
	"veridian-hq/callisto/pkg/server"
	"veridian-hq/callisto/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Callisto dispatch daemon",
	Long: `Start the dispatch daemon with the specified configuration.

The daemon accepts work over the admin API, checks tenant budgets, queues
admitted work by priority, and forwards it to the configured per-tier
endpoints under each tier's rate limits.

Examples:
  # Start with default config
  callisto run

  # Start with custom config
  callisto run --config /etc/callisto/config.yaml

  # Override listen address
  callisto run --listen 0.0.0.0:8085

  # Validate config without starting the daemon
  callisto run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the daemon")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Init(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	logger.Info("starting callisto",
		"version", Version,
		"config", cfgFile,
		"tiers", len(cfg.Dispatch.Tiers),
	)

	backend, err := newStorageBackend(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer backend.Close()

	ledger := budget.NewLedger(cfg.BudgetConfig(), backend, logging.ForComponent("budget"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	janitor := budget.NewJanitor(ledger, backend, cfg.Budget.SweepSchedule, cfg.Budget.Retention)
	if err := janitor.Start(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("starting budget janitor: %w", err))
	}
	defer janitor.Stop()

	registry := prometheus.NewRegistry()
	metrics := dispatch.NewMetrics(registry)

	dispatcher, err := dispatch.New(cfg.DispatchConfig(), ledger, newHTTPInvoker(cfg.Dispatch.Tiers), metrics, logging.ForComponent("dispatch"))
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("creating dispatcher: %w", err))
	}
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	if cfg.Dispatch.Watch {
		watcher, err := config.NewWatcher(cfgFile, logging.ForComponent("config"))
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("creating config watcher: %w", err))
		}
		go func() {
			err := watcher.Watch(ctx, func(reloaded *config.Config) {
				dispatcher.UpdateTierCeilings(reloaded.DispatchConfig())
			})
			if err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	srv := server.NewServer(&cfg.Server, &cfg.Telemetry.Metrics, dispatcher, ledger, registry, logging.ForComponent("server"))
	srv.RegisterHealthCheck("storage", func(ctx context.Context) error {
		_, err := backend.Load(ctx, "healthcheck", "1970-01-01")
		return err
	})

	// Start blocks until a shutdown signal, context cancellation, or a
	// listener error. The deferred stops above run afterwards, so the
	// admin surface closes before the dispatcher drains.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

func newStorageBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		backend, err := storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			DBPath:      cfg.Storage.SQLite.Path,
			BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite backend: %w", err)
		}
		return backend, nil
	case "memory", "":
		return storage.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
