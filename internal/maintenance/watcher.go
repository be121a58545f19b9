// Copyright (c) 2026 City Access Media

// Package maintenance watches per-city output directories for filesystem
// activity so maintenance tasks can react to writes instead of relying
// solely on the scheduler's fixed polling cadence.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cityaccess/vod-orchestrator/internal/broker"
	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/log"
)

const outputSubdir = "vod_processed"

// OutputWatcher watches every city's <mount>/vod_processed directory and
// submits a maintenance.cleanup_temp task shortly after activity settles,
// in addition to the nightly cron entry. That task removes only
// orchestrator-prefixed temp files older than an hour, so files a
// just-finished run left behind are not among those it deletes.
type OutputWatcher struct {
	Cities   *config.Registry
	Broker   broker.Broker
	Debounce time.Duration
}

// NewOutputWatcher builds an OutputWatcher with a 10s debounce.
func NewOutputWatcher(cities *config.Registry, b broker.Broker) *OutputWatcher {
	return &OutputWatcher{Cities: cities, Broker: b, Debounce: 10 * time.Second}
}

// Run watches every configured city's output directory until ctx is
// cancelled. Cities whose output directory does not yet exist are skipped;
// Run does not fail because a mount is temporarily absent.
func (w *OutputWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("maintenance: creating fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	logger := log.WithComponent("maintenance.watcher")

	watched := 0
	for _, city := range w.Cities.Cities() {
		dir := filepath.Join(city.MountPath, outputSubdir)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			logger.Warn().Err(err).Str("city", city.ID).Str("dir", dir).Msg("maintenance: watching output directory failed")
			continue
		}
		watched++
	}
	if watched == 0 {
		logger.Warn().Msg("maintenance: no output directories available to watch")
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 10 * time.Second
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}
			if !pending {
				pending = true
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("maintenance: fsnotify watcher error")

		case <-timer.C:
			pending = false
			w.submitCleanup(ctx, logger)
		}
	}
}

func (w *OutputWatcher) submitCleanup(ctx context.Context, logger zerolog.Logger) {
	env := &broker.Envelope{
		ID:    uuid.New().String(),
		Kind:  broker.KindMaintenanceCleanup,
		Queue: broker.QueueDefault,
	}
	if _, err := w.Broker.Submit(ctx, env); err != nil {
		logger.Warn().Err(err).Msg("maintenance: submitting cleanup task after output activity failed")
	}
}
