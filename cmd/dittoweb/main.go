package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/config"
	"github.com/marmos91/dittoweb/pkg/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:])
	}

	fs := flag.NewFlagSet("dittoweb", flag.ContinueOnError)
	opts := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadUnvalidated(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	if err := opts.apply(fs, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		return 1
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error: %v", err)
		return 1
	}

	logger.Info("Server stopped gracefully")
	return 0
}

// serve builds the store, metrics and adapters from cfg and blocks until ctx
// is cancelled or an adapter fails.
func serve(ctx context.Context, cfg *config.Config) error {
	fmt.Println("DittoWeb - Concurrent HTTP/1.0 Server")

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	store, err := config.CreateContentStore(ctx, &cfg.Content, metricsResult)
	if err != nil {
		return fmt.Errorf("failed to create content store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close content store: %v", err)
		}
	}()

	adapters, err := config.CreateAdapters(cfg, metricsResult.WebMetrics)
	if err != nil {
		return err
	}

	srv := server.New(store, cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}
	metricsResult.RegisterHealthChecks(adapters)

	web := cfg.Adapters.Web
	logger.Info("Content store: %s", cfg.Content.Type)
	logger.Info("Web adapter configuration:")
	logger.Info("  Port: %d", web.Port)
	logger.Info("  Workers: %d", web.Workers)
	logger.Info("  Queue size: %d", web.QueueSize)
	logger.Info("  Schedule: %s", web.Schedule)
	logger.Info("  Peek timeout: %v", web.PeekTimeout)
	if web.AcceptRate > 0 {
		logger.Info("  Accept rate: %d/s (burst %d)", web.AcceptRate, web.AcceptBurst)
	}
	logger.Info("Press Ctrl+C to stop.")

	return srv.Serve(ctx)
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("dittoweb init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	path := fs.String("config", "", "Write the configuration to this path instead of the default location")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	target := *path
	if target == "" {
		target = config.GetDefaultConfigPath()
	}

	if err := config.InitConfigToPath(target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize configuration: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", target)
	return 0
}
