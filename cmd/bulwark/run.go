package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"palisade-hq/bulwark/pkg/cli"
	"palisade-hq/bulwark/pkg/config"
	"palisade-hq/bulwark/pkg/providerfactory"
	"palisade-hq/bulwark/pkg/proxy"
	"palisade-hq/bulwark/pkg/server"
	"palisade-hq/bulwark/pkg/telemetry/logging"
	"palisade-hq/bulwark/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Bulwark proxy server",
	Long: `Start the Bulwark proxy server with the specified configuration.

The server listens on the configured address and proxies chat completion
requests through the rate limiter, deduplicator, circuit breakers, and
retry executor to the configured upstreams.

Examples:
  # Start with default config
  bulwark run

  # Start with custom config
  bulwark run --config /etc/bulwark/config.yaml

  # Override listen address
  bulwark run --listen 0.0.0.0:8080

  # Validate config without starting server
  bulwark run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration (BULWARK_* environment overrides included)
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	// Flag overrides can invalidate a previously valid config
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	if _, err := logging.Setup(cfg.Telemetry.Logging); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	slog.Info("initializing upstream adapters")
	manager, err := providerfactory.NewManagerFromConfig(cfg.Upstreams)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize upstreams: %w", err))
	}
	defer manager.Close()
	fmt.Printf("✓ Upstream adapters initialized (%d upstreams)\n", len(manager.Names()))

	registry, err := proxy.NewRegistry(cfg, manager, collector)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to build pipeline: %w", err))
	}
	defer registry.Close()
	if cfg.Fallback.Enabled {
		fmt.Println("✓ Fallback cache initialized")
	}

	// Cancelled on SIGINT/SIGTERM, which also stops the watcher below.
	ctx := cli.SetupSignalHandler()

	watcher, err := config.NewWatcher(cfgFile)
	if err != nil {
		slog.Warn("configuration hot reload disabled", "error", err)
	} else {
		defer watcher.Stop()
		go func() {
			if err := watcher.Watch(ctx, func(newCfg *config.Config) {
				registry.ApplyConfig(newCfg)
			}); err != nil {
				slog.Warn("configuration watcher stopped", "error", err)
			}
		}()
	}

	srv := server.New(cfg, registry, manager, server.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until the signal context cancels or the listener fails,
	// then drains in-flight requests.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Bulwark v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("upstreams configured", "count", len(cfg.Upstreams))
	if cfg.Fallback.Enabled {
		slog.Debug("fallback cache enabled", "path", cfg.Fallback.DBPath)
	}
}
