// Copyright (c) 2026 City Access Media

// Package scheduler fires named tasks onto the broker on wall-clock cron
// expressions (C7). Missed fires during a worker outage are never replayed;
// the next scheduled fire resumes normally.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cityaccess/vod-orchestrator/internal/broker"
	"github.com/cityaccess/vod-orchestrator/internal/log"
)

// Entry names the six required schedule entries (spec.md §4.6).
const (
	EntryDailyDiscovery        = "daily-discovery"
	EntryAutoprioritizeMorning = "autoprioritize-morning"
	EntryAutoprioritizeEvening = "autoprioritize-evening"
	EntryBackfill              = "backfill"
	EntryCleanup               = "cleanup"
	EntryHealth                = "health"
)

// Scheduler wraps a cron.Cron configured for UTC, submitting fixed task
// envelopes onto a Broker at each fire.
type Scheduler struct {
	cron   *cron.Cron
	broker broker.Broker
}

// New builds a Scheduler that submits onto b. All schedule expressions are
// interpreted in UTC per spec.
func New(b broker.Broker) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		broker: b,
	}
}

// RegisterDefaults installs the six required schedule entries. It is
// separated from New so tests can register a reduced subset.
func (s *Scheduler) RegisterDefaults(ctx context.Context) error {
	entries := []struct {
		name string
		spec string
		kind broker.TaskKind
		args map[string]any
	}{
		{EntryDailyDiscovery, "0 4 * * *", broker.KindDiscoverAllCities, nil},
		{EntryAutoprioritizeMorning, "0 7 * * *", broker.KindDiscoverAllCities, map[string]any{"priority": true}},
		{EntryAutoprioritizeEvening, "0 19 * * *", broker.KindDiscoverAllCities, map[string]any{"priority": true}},
		{EntryBackfill, "*/30 * * * *", broker.KindMaintenanceBackfill, nil},
		{EntryCleanup, "30 2 * * *", broker.KindMaintenanceCleanup, nil},
		{EntryHealth, "*/5 * * * *", broker.KindHealthAggregate, nil},
	}

	for _, e := range entries {
		entry := e
		queue := broker.QueueDefault
		if entry.args["priority"] == true {
			queue = broker.QueuePriority
		}
		_, err := s.cron.AddFunc(entry.spec, func() {
			s.fire(ctx, entry.name, entry.kind, queue, entry.args)
		})
		if err != nil {
			return fmt.Errorf("scheduler: register %s: %w", entry.name, err)
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, entryName string, kind broker.TaskKind, queue string, args map[string]any) {
	logger := log.WithComponent("scheduler")
	env := &broker.Envelope{
		ID:    uuid.New().String(),
		Kind:  kind,
		Args:  args,
		Queue: queue,
	}

	if _, err := s.broker.Submit(ctx, env); err != nil {
		logger.Error().Err(err).Str("entry", entryName).Str("kind", string(kind)).Msg("scheduler: submit failed")
		return
	}
	log.AuditInfo(ctx, "scheduler.fired", "scheduled task submitted", map[string]any{
		"entry": entryName,
		"kind":  string(kind),
		"queue": queue,
	})
}

// Start begins firing schedule entries in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler without waiting; the returned context is done
// once any in-flight fire has returned.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
