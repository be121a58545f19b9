package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSetEX(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetEX(ctx, "k", "v", time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.SetEX(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreSetMembership(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	ok, err := s.SIsMember(ctx, "seen", "/mnt/flex-3/a.mp4")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SAdd(ctx, "seen", "/mnt/flex-3/a.mp4"))
	ok, err = s.SIsMember(ctx, "seen", "/mnt/flex-3/a.mp4")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStoreSetExpiry(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.SAdd(ctx, "seen", "a"))
	require.NoError(t, s.Expire(ctx, "seen", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	ok, err := s.SIsMember(ctx, "seen", "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreHashIncrement(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	v, err := s.HIncrBy(ctx, "counters", "flex3", 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = s.HIncrBy(ctx, "counters", "flex3", 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, v)

	all, err := s.HGetAll(ctx, "counters")
	require.NoError(t, err)
	require.Equal(t, "3", all["flex3"])
}

func TestMemoryStoreBackgroundSweep(t *testing.T) {
	s := NewMemoryStore(2 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SetEX(ctx, "k", "v", time.Millisecond))
	require.Eventually(t, func() bool {
		s.mu.Lock()
		_, present := s.strings["k"]
		s.mu.Unlock()
		return !present
	}, time.Second, time.Millisecond)
}
