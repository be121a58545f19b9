// Copyright (c) 2026 City Access Media

package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cityaccess/vod-orchestrator/internal/broker"
	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/discovery"
	"github.com/cityaccess/vod-orchestrator/internal/log"
	"github.com/cityaccess/vod-orchestrator/internal/metrics"
	"github.com/cityaccess/vod-orchestrator/internal/pipeline"
	"github.com/cityaccess/vod-orchestrator/internal/store"
)

// transcriptionKind is the task kind that drives the TRANSCRIBE/REMUX/UPLOAD
// stages of the per-video machine, consulted by handleBackfill's
// no-transcription-in-flight guard.
const transcriptionKind = broker.KindPipelineProcess

// discoverPerCityLimit (K in spec.md §4.5) bounds how many pipeline tasks
// discover.all_cities submits per city per run.
const discoverPerCityLimit = 1

// backfillLimit (M in spec.md §4.5) bounds maintenance.backfill's candidate
// submission when no transcription is active anywhere in this process.
const backfillLimit = 5

// tempStalePrefix and tempStaleAge bound maintenance.cleanup_temp's sweep:
// delete files under os.TempDir() with this prefix older than this age.
const tempStalePrefix = "vod-orchestrator-"

var tempStaleAge = time.Hour

// Deps bundles the collaborators RegisterDefaults wires into task handlers.
type Deps struct {
	Cities     *config.Registry
	Ledger     *store.Ledger
	Broker     broker.Broker
	Pipeline   *pipeline.Pipeline
	HealthFunc func(ctx context.Context) any

	// Pool lets handleBackfill consult which task kinds are currently
	// reserved or executing, so it can skip scheduling while a
	// transcription task is already in flight anywhere in this process.
	Pool *Pool
	// CityCounters, if set, is fed one IncEnqueued call per task a handler
	// submits, the cross-process counterpart to metrics.GetSnapshot's
	// per-process city_enqueued_total.
	CityCounters *store.CityCounters
}

// RegisterDefaults binds every task kind in spec.md §4.5's catalogue to its
// handler.
func RegisterDefaults(d *Dispatcher, deps Deps) {
	d.Register(broker.KindDiscoverAllCities, handleDiscoverAllCities(deps))
	d.Register(broker.KindPipelineProcess, handlePipelineProcess(deps))
	d.Register(broker.KindMaintenanceCleanup, handleCleanupTemp())
	d.Register(broker.KindMaintenanceBackfill, handleBackfill(deps))
	d.Register(broker.KindHealthAggregate, handleHealthAggregate(deps))
}

func handleDiscoverAllCities(deps Deps) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		logger := log.WithComponent("worker.discover")
		submitted := 0

		for _, city := range deps.Cities.Cities() {
			if !discovery.MountReadable(city.MountPath) {
				continue
			}
			candidates, err := discovery.Scan(city.MountPath, city.ID, discoverPerCityLimit*4)
			if err != nil {
				logger.Warn().Err(err).Str("city", city.ID).Msg("discovery scan failed")
				continue
			}
			metrics.IncAutoprioritizeScanned(len(candidates))

			perCity := 0
			for _, cand := range candidates {
				if perCity >= discoverPerCityLimit {
					break
				}
				if discovery.HasCaption(cand.Path, "") {
					metrics.IncAutoprioritizeSkippedCaptioned()
					continue
				}
				if deps.Ledger != nil && deps.Ledger.IsSeen(ctx, cand.Path) {
					metrics.IncAutoprioritizeSkippedAlreadyQueued()
					continue
				}

				videoID := videoIDFromPath(cand.Path)
				env := &broker.Envelope{
					ID:    uuid.New().String(),
					Kind:  broker.KindPipelineProcess,
					Args:  map[string]any{"video_id": videoID, "city_id": city.ID, "local_path": cand.Path},
					Queue: broker.QueuePriority,
				}
				if _, err := deps.Broker.Submit(ctx, env); err != nil {
					logger.Warn().Err(err).Str("city", city.ID).Msg("submitting pipeline.process_single failed")
					continue
				}
				if deps.Ledger != nil {
					deps.Ledger.MarkSeen(ctx, cand.Path)
				}
				metrics.IncAutoprioritizeEnqueued(city.ID)
				if deps.CityCounters != nil {
					if _, err := deps.CityCounters.IncEnqueued(ctx, city.ID); err != nil {
						logger.Warn().Err(err).Str("city", city.ID).Msg("shared per-city counter increment failed")
					}
				}
				perCity++
				submitted++
			}
		}

		return map[string]any{"submitted": submitted}, nil
	}
}

func handlePipelineProcess(deps Deps) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		videoID, _ := args["video_id"].(string)
		cityID, _ := args["city_id"].(string)
		localPath, _ := args["local_path"].(string)

		res, err := deps.Pipeline.ProcessSingle(ctx, pipeline.Request{
			VideoID:   videoID,
			CityID:    cityID,
			LocalPath: localPath,
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

func handleCleanupTemp() Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		dir := os.TempDir()
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("worker: reading temp dir: %w", err)
		}

		deleted := 0
		cutoff := time.Now().Add(-tempStaleAge)
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempStalePrefix) {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				deleted++
			}
		}
		return map[string]any{"deleted": deleted}, nil
	}
}

func handleBackfill(deps Deps) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		logger := log.WithComponent("worker.backfill")

		if deps.Pool != nil && deps.Pool.HasActiveKind(transcriptionKind) {
			logger.Debug().Msg("transcription task active or reserved, deferring backfill run")
			return map[string]any{"submitted": 0, "deferred": true}, nil
		}

		submitted := 0
		for _, city := range deps.Cities.Cities() {
			if submitted >= backfillLimit {
				break
			}
			if !discovery.MountWritable(city.MountPath) {
				continue
			}
			candidates, err := discovery.Scan(city.MountPath, city.ID, backfillLimit)
			if err != nil {
				continue
			}
			for _, cand := range candidates {
				if submitted >= backfillLimit {
					break
				}
				if discovery.HasCaption(cand.Path, "") {
					continue
				}
				if deps.Ledger != nil && deps.Ledger.IsSeen(ctx, cand.Path) {
					continue
				}
				videoID := videoIDFromPath(cand.Path)
				env := &broker.Envelope{
					ID:    uuid.New().String(),
					Kind:  broker.KindPipelineProcess,
					Args:  map[string]any{"video_id": videoID, "city_id": city.ID, "local_path": cand.Path},
					Queue: broker.QueueDefault,
				}
				if _, err := deps.Broker.Submit(ctx, env); err != nil {
					continue
				}
				if deps.Ledger != nil {
					deps.Ledger.MarkSeen(ctx, cand.Path)
				}
				if deps.CityCounters != nil {
					if _, err := deps.CityCounters.IncEnqueued(ctx, city.ID); err != nil {
						logger.Warn().Err(err).Str("city", city.ID).Msg("shared per-city counter increment failed")
					}
				}
				submitted++
			}
		}
		return map[string]any{"submitted": submitted}, nil
	}
}

func handleHealthAggregate(deps Deps) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		if deps.HealthFunc == nil {
			return nil, fmt.Errorf("worker: no health aggregation function configured")
		}
		return deps.HealthFunc(ctx), nil
	}
}

// videoIDFromPath derives a stable video-id from a candidate's filename when
// the upstream platform hasn't already assigned one: the basename without
// its extension.
func videoIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
