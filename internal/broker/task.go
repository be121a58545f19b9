// Copyright (c) 2026 City Access Media

// Package broker implements the Task Broker (C5) and its two-queue Priority
// Router (C6) discipline: a priority topic workers drain ahead of a default
// topic, with no numeric priority levels beyond that binary ordering.
package broker

import (
	"context"
	"time"
)

// TaskKind is the closed set of task kinds the system recognizes.
type TaskKind string

const (
	KindDiscoverAllCities   TaskKind = "discover.all_cities"
	KindPipelineProcess     TaskKind = "pipeline.process_single"
	KindMediaTranscribe     TaskKind = "media.transcribe"
	KindMediaRemux          TaskKind = "media.remux_with_captions"
	KindVODUpload           TaskKind = "vod.upload"
	KindVODValidateQuality  TaskKind = "vod.validate_quality"
	KindMaintenanceCleanup  TaskKind = "maintenance.cleanup_temp"
	KindMaintenanceBackfill TaskKind = "maintenance.backfill"
	KindHealthAggregate     TaskKind = "health.aggregate"
)

// Queue names recognized by the Priority Router. Workers drain Priority
// ahead of Default; there are no other ordering levels.
const (
	QueuePriority = "priority"
	QueueDefault  = "default"
)

// Envelope is an identified unit of work: task kind, serialized arguments,
// submission timestamp, target queue, and trace id for log correlation.
// Created by any submitter, owned by the broker until terminal.
type Envelope struct {
	ID          string         `json:"id"`
	Kind        TaskKind       `json:"kind"`
	Args        map[string]any `json:"args"`
	Queue       string         `json:"queue"`
	SubmittedAt time.Time      `json:"submitted_at"`
	TraceID     string         `json:"trace_id"`
}

// Result is the terminal outcome of an executed task.
type Result struct {
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handle lets a submitter observe an envelope's terminal state from
// wherever it was submitted, regardless of which process executes it.
type Handle struct {
	id   string
	wait func(ctx context.Context, id string) (Result, error)
}

// Wait blocks until the task completes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	return h.wait(ctx, h.id)
}

// Broker is the storage-agnostic abstraction both MemoryBroker and
// RedisBroker implement, so the worker dispatch loop does not care which
// backs it.
type Broker interface {
	// Submit places env onto its target queue and returns a Handle the
	// caller can use to observe the terminal result.
	Submit(ctx context.Context, env *Envelope) (*Handle, error)

	// Reserve blocks until a task is available on one of the queues
	// (priority checked first) or ctx is cancelled. A worker must not
	// reserve more than one task ahead of what it is currently executing.
	Reserve(ctx context.Context) (*Envelope, error)

	// Complete records the terminal result for the envelope identified by
	// id, waking any Handle.Wait call for it.
	Complete(ctx context.Context, id string, result Result) error

	// Close releases any resources held by the broker.
	Close() error
}
