// Copyright (c) 2026 City Access Media

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cityaccess/vod-orchestrator/internal/broker"
)

func TestDispatcherDispatchUnregisteredKindErrors(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), &broker.Envelope{Kind: broker.KindMediaTranscribe})
	require.Error(t, err)
}

func TestDispatcherRegisterAndDispatch(t *testing.T) {
	d := NewDispatcher()
	d.Register(broker.KindMaintenanceCleanup, func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	})

	result, err := d.Dispatch(context.Background(), &broker.Envelope{Kind: broker.KindMaintenanceCleanup})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

func TestPoolExecutesReservedTaskAndCompletes(t *testing.T) {
	b := broker.NewMemoryBroker(4)
	d := NewDispatcher()
	done := make(chan struct{})
	d.Register(broker.KindPipelineProcess, func(ctx context.Context, args map[string]any) (any, error) {
		close(done)
		return map[string]any{"status": "done"}, nil
	})

	p := &Pool{Broker: b, Dispatcher: d, Concurrency: 1}
	ctx, cancel := context.WithCancel(context.Background())

	go p.Run(ctx)

	handle, err := b.Submit(ctx, &broker.Envelope{ID: "t1", Kind: broker.KindPipelineProcess, Queue: broker.QueueDefault})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	res, err := handle.Wait(ctx)
	require.NoError(t, err)
	require.Empty(t, res.Error)

	cancel()
}

func TestPoolRecoversFromPanickingHandler(t *testing.T) {
	b := broker.NewMemoryBroker(4)
	d := NewDispatcher()
	d.Register(broker.KindMediaTranscribe, func(ctx context.Context, args map[string]any) (any, error) {
		panic("boom")
	})

	p := &Pool{Broker: b, Dispatcher: d, Concurrency: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go p.Run(ctx)

	handle, err := b.Submit(ctx, &broker.Envelope{ID: "t2", Kind: broker.KindMediaTranscribe, Queue: broker.QueueDefault})
	require.NoError(t, err)

	res, err := handle.Wait(ctx)
	require.NoError(t, err)
	require.Contains(t, res.Error, "panic")
}

func TestPoolActiveCountReflectsRunningWorkers(t *testing.T) {
	b := broker.NewMemoryBroker(1)
	d := NewDispatcher()
	p := &Pool{Broker: b, Dispatcher: d, Concurrency: 3}

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return p.ActiveCount() == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		return p.ActiveCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPoolHasActiveKindWhileTaskExecutesThenClears(t *testing.T) {
	b := broker.NewMemoryBroker(4)
	d := NewDispatcher()
	inHandler := make(chan struct{})
	release := make(chan struct{})
	d.Register(broker.KindPipelineProcess, func(ctx context.Context, args map[string]any) (any, error) {
		close(inHandler)
		<-release
		return "ok", nil
	})

	p := &Pool{Broker: b, Dispatcher: d, Concurrency: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	_, err := b.Submit(ctx, &broker.Envelope{ID: "t4", Kind: broker.KindPipelineProcess, Queue: broker.QueueDefault})
	require.NoError(t, err)

	<-inHandler
	require.True(t, p.HasActiveKind(broker.KindPipelineProcess))
	require.False(t, p.HasActiveKind(broker.KindMediaTranscribe))
	close(release)

	require.Eventually(t, func() bool {
		return !p.HasActiveKind(broker.KindPipelineProcess)
	}, time.Second, 10*time.Millisecond)
}

func TestSafeDispatchWrapsHandlerError(t *testing.T) {
	d := NewDispatcher()
	d.Register(broker.KindVODUpload, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("upload-failed")
	})
	p := &Pool{Dispatcher: d}

	res := p.safeDispatch(context.Background(), &broker.Envelope{Kind: broker.KindVODUpload})
	require.Equal(t, "upload-failed", res.Error)
}

func TestPoolUnstagesOverflowOnCompletion(t *testing.T) {
	overflow, err := broker.NewOverflowStore(t.TempDir())
	require.NoError(t, err)
	defer overflow.Close()

	b := broker.NewMemoryBroker(4)
	d := NewDispatcher()
	d.Register(broker.KindPipelineProcess, func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	})

	p := &Pool{Broker: b, Dispatcher: d, Concurrency: 1, Overflow: overflow}
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	handle, err := b.Submit(ctx, &broker.Envelope{ID: "t3", Kind: broker.KindPipelineProcess, Queue: broker.QueueDefault})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		pending, err := overflow.Pending()
		return err == nil && len(pending) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRecoverOverflowResubmitsOrphanedEnvelopes(t *testing.T) {
	overflow, err := broker.NewOverflowStore(t.TempDir())
	require.NoError(t, err)
	defer overflow.Close()

	orphan := &broker.Envelope{ID: "orphan-1", Kind: broker.KindMaintenanceCleanup, Queue: broker.QueueDefault}
	require.NoError(t, overflow.Stage(orphan))

	b := broker.NewMemoryBroker(4)
	p := &Pool{Broker: b, Overflow: overflow}

	require.NoError(t, p.RecoverOverflow(context.Background()))

	pending, err := overflow.Pending()
	require.NoError(t, err)
	require.Empty(t, pending)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := b.Reserve(ctx)
	require.NoError(t, err)
	require.Equal(t, "orphan-1", env.ID)
}
