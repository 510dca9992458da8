// Command counterd serves named durable counters over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/counterlog/pkg/config"
	"github.com/fluxorio/counterlog/pkg/counter"
	"github.com/fluxorio/counterlog/pkg/observability/prometheus"
	"github.com/fluxorio/counterlog/pkg/observability/tracing"
	"github.com/fluxorio/counterlog/pkg/oplog"
	"github.com/fluxorio/counterlog/pkg/registry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	writeConfig := flag.String("write-config", "", "write the effective config (file plus COUNTERD_* env) to this path and exit")
	flag.Parse()

	var err error
	if *writeConfig != "" {
		err = writeEffectiveConfig(*configPath, *writeConfig)
	} else {
		err = run(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "counterd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadDaemon(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := cfg.Tracing.ServiceName
	if service == "" {
		service = "counterd"
	}
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Initialize(ctx, tracing.Config{ServiceName: service})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("tracing shutdown", "error", err)
			}
		}()
	}

	reg, registerer := prometheus.NewRegistry(service)
	metrics := prometheus.NewMetrics(registerer)

	defaults, err := registryDefaults(cfg)
	if err != nil {
		return err
	}
	mgr, err := registry.New(defaults,
		registry.WithLogger(logger),
		registry.WithCounterOptions(counter.WithObserver(metrics)),
	)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := mgr.Close(cctx); err != nil {
			logger.Error("closing counters", "error", err)
		}
	}()

	for _, name := range cfg.Counters {
		if _, err := mgr.Open(ctx, name); err != nil {
			return fmt.Errorf("open counter %q: %w", name, err)
		}
	}

	s := &server{
		mgr:            mgr,
		metrics:        metrics,
		scrape:         prometheus.Handler(reg),
		logger:         logger,
		requestTimeout: cfg.Server.RequestTimeout,
	}
	srv := &fasthttp.Server{
		Handler:      s.handler(),
		Name:         "counterd",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("counterd listening", "addr", cfg.Server.Addr,
			"mode", cfg.Defaults.Mode, "store", cfg.Store.Driver, "counters", len(cfg.Counters))
		errCh <- srv.ListenAndServe(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.ShutdownWithContext(sctx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	return nil
}

// writeEffectiveConfig resolves the config the daemon would run with and
// saves it to out.
func writeEffectiveConfig(configPath, out string) error {
	cfg, err := config.LoadDaemon(configPath)
	if err != nil {
		return err
	}
	return config.Save(out, cfg)
}

func registryDefaults(cfg config.Daemon) (registry.Defaults, error) {
	durability, err := oplog.ParseDurability(cfg.OpLog.Durability)
	if err != nil {
		return registry.Defaults{}, err
	}
	return registry.Defaults{
		StoreDriver:    cfg.Store.Driver,
		StoreDir:       cfg.Store.Dir,
		StoreDSN:       cfg.Store.DSN,
		LogDir:         cfg.OpLog.Dir,
		Mode:           counter.Mode(cfg.Defaults.Mode),
		FlushThreshold: cfg.Defaults.FlushThreshold,
		DrainDelay:     cfg.Defaults.DrainDelay,
		LogDurability:  durability,
	}, nil
}

func newLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
