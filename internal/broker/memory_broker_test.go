// Copyright (c) 2026 City Access Media

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerReservesPriorityFirst(t *testing.T) {
	b := NewMemoryBroker(4)
	ctx := context.Background()

	_, err := b.Submit(ctx, &Envelope{ID: "default-1", Kind: KindMaintenanceBackfill, Queue: QueueDefault})
	require.NoError(t, err)
	_, err = b.Submit(ctx, &Envelope{ID: "priority-1", Kind: KindPipelineProcess, Queue: QueuePriority})
	require.NoError(t, err)

	env, err := b.Reserve(ctx)
	require.NoError(t, err)
	require.Equal(t, "priority-1", env.ID)

	env, err = b.Reserve(ctx)
	require.NoError(t, err)
	require.Equal(t, "default-1", env.ID)
}

func TestMemoryBrokerHandleWaitsForCompletion(t *testing.T) {
	b := NewMemoryBroker(4)
	ctx := context.Background()

	handle, err := b.Submit(ctx, &Envelope{ID: "task-1", Kind: KindVODValidateQuality, Queue: QueueDefault})
	require.NoError(t, err)

	go func() {
		env, rErr := b.Reserve(ctx)
		require.NoError(t, rErr)
		_ = b.Complete(ctx, env.ID, Result{Value: 87})
	}()

	result, err := handle.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 87, result.Value)
}

func TestMemoryBrokerReserveBlocksUntilCancelled(t *testing.T) {
	b := NewMemoryBroker(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Reserve(ctx)
	require.Error(t, err)
}
