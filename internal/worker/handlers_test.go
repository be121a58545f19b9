// Copyright (c) 2026 City Access Media

package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cityaccess/vod-orchestrator/internal/broker"
	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/store"
)

func newTestDeps(t *testing.T, mountPath string) (Deps, *broker.MemoryBroker) {
	t.Helper()
	reg, err := config.NewRegistry([]config.City{{ID: "city-1", MountPath: mountPath}})
	require.NoError(t, err)

	kv := store.NewMemoryStore(0)
	b := broker.NewMemoryBroker(16)
	return Deps{
		Cities: reg,
		Ledger: store.NewLedger(kv, 24),
		Broker: b,
	}, b
}

func writeVideo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, 6*1024*1024), 0o644))
	return path
}

func TestHandleDiscoverAllCitiesSubmitsPipelineTask(t *testing.T) {
	dir := t.TempDir()
	writeVideo(t, dir, "meeting-001.mp4")

	deps, b := newTestDeps(t, dir)
	h := handleDiscoverAllCities(deps)

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.(map[string]any)["submitted"])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := b.Reserve(ctx)
	require.NoError(t, err)
	require.Equal(t, broker.KindPipelineProcess, env.Kind)
	require.Equal(t, "city-1", env.Args["city_id"])
}

func TestHandleDiscoverAllCitiesSkipsAlreadyCaptioned(t *testing.T) {
	dir := t.TempDir()
	videoPath := writeVideo(t, dir, "meeting-002.mp4")
	require.NoError(t, os.WriteFile(videoPath[:len(videoPath)-len(filepath.Ext(videoPath))]+".scc", []byte("x"), 0o644))

	deps, b := newTestDeps(t, dir)
	h := handleDiscoverAllCities(deps)

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.(map[string]any)["submitted"])

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.Reserve(ctx)
	require.Error(t, err)
}

func TestHandleDiscoverAllCitiesSkipsAlreadySeen(t *testing.T) {
	dir := t.TempDir()
	writeVideo(t, dir, "meeting-003.mp4")

	deps, b := newTestDeps(t, dir)
	h := handleDiscoverAllCities(deps)

	_, err := h(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_, err = b.Reserve(ctx)
	require.NoError(t, err)
	cancel()

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.(map[string]any)["submitted"])
}

func TestHandleCleanupTempDeletesStaleFilesOnly(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	stale := filepath.Join(dir, tempStalePrefix+"stale")
	fresh := filepath.Join(dir, tempStalePrefix+"fresh")
	other := filepath.Join(dir, "unrelated-file")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	h := handleCleanupTemp()
	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.(map[string]any)["deleted"])

	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
	_, err = os.Stat(other)
	require.NoError(t, err)
}

func TestHandleBackfillRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < backfillLimit+3; i++ {
		writeVideo(t, dir, fmt.Sprintf("backfill-%02d.mp4", i))
	}

	deps, _ := newTestDeps(t, dir)
	h := handleBackfill(deps)

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.LessOrEqual(t, result.(map[string]any)["submitted"].(int), backfillLimit)
}

func TestHandleBackfillDefersWhileTranscriptionInFlight(t *testing.T) {
	dir := t.TempDir()
	writeVideo(t, dir, "backfill-00.mp4")

	deps, _ := newTestDeps(t, dir)
	pool := &Pool{}
	pool.markReserved(broker.KindPipelineProcess)
	deps.Pool = pool

	h := handleBackfill(deps)
	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.(map[string]any)["submitted"])
	require.Equal(t, true, result.(map[string]any)["deferred"])
}

func TestHandleBackfillSkipsUnmountedCity(t *testing.T) {
	deps, _ := newTestDeps(t, filepath.Join(t.TempDir(), "never-mounted"))
	h := handleBackfill(deps)

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.(map[string]any)["submitted"])
}

func TestHandleHealthAggregateRequiresConfiguredFunc(t *testing.T) {
	h := handleHealthAggregate(Deps{})
	_, err := h(context.Background(), nil)
	require.Error(t, err)
}

func TestHandleHealthAggregateDelegatesToHealthFunc(t *testing.T) {
	deps := Deps{HealthFunc: func(ctx context.Context) any { return "aggregated" }}
	h := handleHealthAggregate(deps)

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "aggregated", result)
}

func TestVideoIDFromPathStripsExtension(t *testing.T) {
	require.Equal(t, "meeting-001", videoIDFromPath("/mnt/city/meeting-001.mp4"))
}
