// Copyright (c) 2026 City Access Media

// Package worker runs the pull-based dispatch loop: each worker goroutine
// reserves one envelope from the broker at a time, routes it by task kind to
// a registered Handler, and reports the terminal result back to the broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/cityaccess/vod-orchestrator/internal/broker"
	"github.com/cityaccess/vod-orchestrator/internal/log"
	"github.com/cityaccess/vod-orchestrator/internal/telemetry"
)

// Handler executes one task kind's work and returns its result value.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Dispatcher routes an Envelope's TaskKind to its registered Handler.
type Dispatcher struct {
	handlers map[broker.TaskKind]Handler
}

// NewDispatcher builds an empty Dispatcher; register handlers with Register.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[broker.TaskKind]Handler)}
}

// Register binds kind to handler, overwriting any previous binding.
func (d *Dispatcher) Register(kind broker.TaskKind, handler Handler) {
	d.handlers[kind] = handler
}

// Dispatch runs the handler registered for env.Kind, or returns an error if
// none is registered — an unrecognized kind is a configuration defect, not a
// retryable failure.
func (d *Dispatcher) Dispatch(ctx context.Context, env *broker.Envelope) (any, error) {
	h, ok := d.handlers[env.Kind]
	if !ok {
		return nil, fmt.Errorf("worker: no handler registered for kind %q", env.Kind)
	}
	return h(ctx, env.Args)
}

// Pool runs Concurrency worker goroutines pulling from Broker and routing
// through Dispatcher. Default concurrency of 2-4 per spec.md §5's scheduling
// model.
type Pool struct {
	Broker      broker.Broker
	Dispatcher  *Dispatcher
	Concurrency int

	// Overflow, if set, stages each reserved envelope locally before
	// execution and unstages it once a result is reported, so a worker
	// crash mid-task leaves a recoverable trail. See RecoverOverflow.
	Overflow *broker.OverflowStore

	active int64 // atomic: workers currently inside the reserve-dispatch-complete loop
	wg     sync.WaitGroup

	inFlightMu sync.Mutex
	inFlight   map[broker.TaskKind]int // reserved-or-executing task kinds, this process only
}

// RecoverOverflow resubmits every envelope left staged by a worker that
// crashed before reporting completion. Call once at startup before Run.
func (p *Pool) RecoverOverflow(ctx context.Context) error {
	if p.Overflow == nil {
		return nil
	}
	pending, err := p.Overflow.Pending()
	if err != nil {
		return fmt.Errorf("worker: listing staged envelopes: %w", err)
	}
	logger := log.WithComponent("worker")
	for _, env := range pending {
		logger.Warn().Str("task_id", env.ID).Str("kind", string(env.Kind)).Msg("worker: resubmitting envelope orphaned by a prior crash")
		if _, err := p.Broker.Submit(ctx, env); err != nil {
			return fmt.Errorf("worker: resubmitting %s: %w", env.ID, err)
		}
		if err := p.Overflow.Unstage(env.ID); err != nil {
			return fmt.Errorf("worker: unstaging %s: %w", env.ID, err)
		}
	}
	return nil
}

// ActiveCount reports how many workers are currently running, for
// health.WorkerPresenceChecker.
func (p *Pool) ActiveCount() int {
	return int(atomic.LoadInt64(&p.active))
}

// HasActiveKind reports whether this pool currently has a task of kind
// reserved or executing, the in-memory half of the at-most-one-per-video
// check: handlers that must not schedule more work of a kind concurrently
// (maintenance.backfill's no-transcription-in-flight guard) consult this
// before submitting.
func (p *Pool) HasActiveKind(kind broker.TaskKind) bool {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	return p.inFlight[kind] > 0
}

func (p *Pool) markReserved(kind broker.TaskKind) {
	p.inFlightMu.Lock()
	if p.inFlight == nil {
		p.inFlight = make(map[broker.TaskKind]int)
	}
	p.inFlight[kind]++
	p.inFlightMu.Unlock()
}

func (p *Pool) markDone(kind broker.TaskKind) {
	p.inFlightMu.Lock()
	p.inFlight[kind]--
	if p.inFlight[kind] <= 0 {
		delete(p.inFlight, kind)
	}
	p.inFlightMu.Unlock()
}

// Run starts Concurrency workers and blocks until ctx is cancelled, then
// waits for any in-flight task to finish before returning.
func (p *Pool) Run(ctx context.Context) {
	n := p.Concurrency
	if n <= 0 {
		n = 2
	}

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer p.wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	logger := log.WithComponent("worker").With().Int("worker_id", id).Logger()
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	for {
		if ctx.Err() != nil {
			return
		}

		env, err := p.Broker.Reserve(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Warn().Err(err).Msg("worker: reserve failed, retrying")
			time.Sleep(time.Second)
			continue
		}

		p.markReserved(env.Kind)

		if p.Overflow != nil {
			if err := p.Overflow.Stage(env); err != nil {
				logger.Warn().Err(err).Str("task_id", env.ID).Msg("worker: staging envelope failed, proceeding without crash recovery for this task")
			}
		}

		p.execute(ctx, logger, env)

		if p.Overflow != nil {
			if err := p.Overflow.Unstage(env.ID); err != nil {
				logger.Warn().Err(err).Str("task_id", env.ID).Msg("worker: unstaging envelope failed")
			}
		}

		p.markDone(env.Kind)
	}
}

// execute dispatches env, recovers a panicking handler into a Result error
// rather than letting it take the whole worker down, and reports the
// terminal result back to the broker.
func (p *Pool) execute(ctx context.Context, logger zerolog.Logger, env *broker.Envelope) {
	start := time.Now()
	ctx, span := telemetry.Tracer("worker").Start(ctx, "worker.dispatch",
		trace.WithAttributes(telemetry.TaskAttributes(string(env.Kind), env.Queue)...))
	defer span.End()

	result := p.safeDispatch(ctx, env)

	status := "ok"
	if result.Error != "" {
		status = "error"
		span.SetAttributes(telemetry.ErrorAttributes(result.Error)...)
	}
	span.SetAttributes(telemetry.JobAttributes(string(env.Kind), status, time.Since(start).Milliseconds())...)

	if result.Error != "" {
		logger.Error().Str("kind", string(env.Kind)).Str("task_id", env.ID).Str("error", result.Error).Msg("worker: task failed")
	} else {
		logger.Debug().Str("kind", string(env.Kind)).Str("task_id", env.ID).Msg("worker: task completed")
	}

	if err := p.Broker.Complete(ctx, env.ID, result); err != nil {
		logger.Warn().Err(err).Str("task_id", env.ID).Msg("worker: complete failed")
	}
}

func (p *Pool) safeDispatch(ctx context.Context, env *broker.Envelope) (result broker.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = broker.Result{Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	value, err := p.Dispatcher.Dispatch(ctx, env)
	if err != nil {
		return broker.Result{Error: err.Error()}
	}
	return broker.Result{Value: value}
}
