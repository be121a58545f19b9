// Copyright (c) 2026 City Access Media

// Command orchestrator runs the VOD captioning pipeline: discovery,
// transcription, remux, upload, and their surrounding scheduling, worker
// pool, and health/metrics surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/daemon"
	"github.com/cityaccess/vod-orchestrator/internal/log"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// errConfig marks a configuration failure, which exits with status 2
// rather than the generic 1.
var errConfig = errors.New("loading config")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator:", err)
		if errors.Is(err, errConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	log.Configure(log.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Service: "vod-orchestrator",
		Version: version,
	})
	logger := log.WithComponent("main")
	logger.Info().Str("version", version).Str("commit", commit).Str("build_date", buildDate).Msg("starting")

	daemon.Version = version

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := daemon.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building daemon: %w", err)
	}

	return app.Run(ctx)
}
