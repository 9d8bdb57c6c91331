// Package main implements the entry point for the ChatFlux pipeline.
// ChatFlux fans chat events out to a broadcast bus, a bounded read
// cache, and a durable log, and drains the log into a persistent store
// in batches.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/Aayush-engineer/chatflux/config"
	"github.com/Aayush-engineer/chatflux/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "chatflux"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cliCfg.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = cliCfg.ShutdownTimeout
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting ChatFlux",
		"version", Version,
		"build_time", BuildTime,
		"http_port", cfg.HTTPPort,
		"nats_url", cfg.NATS.URL)

	ctx := context.Background()
	pipeline := service.New(*cfg, logger)
	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	return waitForShutdown(ctx, pipeline)
}

// waitForShutdown blocks until SIGINT or SIGTERM, then runs the ordered
// shutdown sequence.
func waitForShutdown(ctx context.Context, pipeline *service.Pipeline) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig.String())

	return pipeline.Stop(ctx)
}
