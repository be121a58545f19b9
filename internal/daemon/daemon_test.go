// Copyright (c) 2026 City Access Media

package daemon

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	reg, err := config.NewRegistry([]config.City{{ID: "flex3", MountPath: t.TempDir()}})
	require.NoError(t, err)
	return &config.Config{
		BrokerURL:         "memory://",
		Cities:            reg,
		PriorityQueue:     "caption_priority",
		DefaultQueue:      "default",
		DedupTTLHours:     24,
		WorkerConcurrency: 1,
		ListenAddr:        ":0",
		OverflowDir:       t.TempDir(),
		Environment:       "test",
		VODPlatformURL:    "http://localhost:0",
	}
}

func TestNewWiresEveryCollaborator(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app.brk)
	require.NotNil(t, app.pool)
	require.NotNil(t, app.health)
	require.NotNil(t, app.sched)
	require.NotNil(t, app.watcher)
	require.NotNil(t, app.server)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	r := app.router()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	req = httptest.NewRequest("GET", "/metrics", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
}

func TestRouterServesJSONMetricsSnapshot(t *testing.T) {
	metrics.ResetForTest()
	metrics.IncAutoprioritizeEnqueued("flex3")

	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	_, err = app.counters.IncEnqueued(context.Background(), "flex3")
	require.NoError(t, err)

	r := app.router()
	req := httptest.NewRequest("GET", "/metrics.json", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var snapshot metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.NotEmpty(t, snapshot.Timestamp)
	require.Equal(t, int64(1), snapshot.Counters["autoprioritize.enqueued"])
	require.Equal(t, int64(1), snapshot.CityEnqueuedTotal["flex3"])
}

func TestShutdownIsSafeBeforeRun(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, app.Shutdown())
}
