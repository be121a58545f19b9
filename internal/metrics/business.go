// Copyright (c) 2026 City Access Media

// Package metrics provides the Prometheus counters named by the core
// (download, pipeline, and autoprioritize outcomes) plus a JSON snapshot for
// the read-only metrics HTTP endpoint. Every exported Inc*/Add function
// updates both the Prometheus counter (for /metrics scrapes) and a plain
// int64 mirrored under snapshotMu (for the JSON snapshot), since
// client_golang counters are not cheaply readable back out.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadAttemptVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_download_attempt_total",
		Help: "Total number of downloader attempts",
	})
	downloadSuccessVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_download_success_total",
		Help: "Total number of successful downloads",
	})
	downloadFailedVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_download_failed_total",
		Help: "Total number of failed downloads",
	})

	pipelineStartVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_pipeline_start_total",
		Help: "Total number of pipeline runs started",
	})
	pipelineDoneVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_pipeline_done_total",
		Help: "Total number of pipeline runs that reached DONE",
	})
	pipelineFailedVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_pipeline_failed_total",
		Help: "Total number of pipeline runs that reached FAILED",
	})
	pipelineDeferredVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_pipeline_deferred_total",
		Help: "Total number of pipeline runs that reached DEFERRED",
	})
	pipelineSkippedVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_pipeline_skipped_total",
		Help: "Total number of pipeline runs that reached SKIP at CAPTION-CHECK",
	})

	autoprioritizeScannedVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_autoprioritize_scanned_total",
		Help: "Total number of candidates examined by discover.all_cities",
	})
	autoprioritizeEnqueuedVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_autoprioritize_enqueued_total",
		Help: "Total number of tasks submitted by discover.all_cities",
	})
	autoprioritizeSkippedCaptionedVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_autoprioritize_skipped_captioned_total",
		Help: "Total number of candidates skipped because they already have captions",
	})
	autoprioritizeSkippedAlreadyQueuedVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_autoprioritize_skipped_alreadyqueued_total",
		Help: "Total number of candidates skipped because they are already queued",
	})

	autoprioritizeEnqueuedByCityVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_autoprioritize_enqueued_by_city_total",
		Help: "Total number of tasks submitted by discover.all_cities, per city",
	}, []string{"city"})
)

// counterNames, used as map keys in the JSON snapshot.
const (
	counterDownloadAttempt                = "download.attempt"
	counterDownloadSuccess                = "download.success"
	counterDownloadFailed                 = "download.failed"
	counterPipelineStart                  = "pipeline.start"
	counterPipelineDone                   = "pipeline.done"
	counterPipelineFailed                 = "pipeline.failed"
	counterPipelineDeferred               = "pipeline.deferred"
	counterPipelineSkipped                = "pipeline.skipped"
	counterAutoprioritizeScanned          = "autoprioritize.scanned"
	counterAutoprioritizeEnqueued         = "autoprioritize.enqueued"
	counterAutoprioritizeSkippedCaptioned = "autoprioritize.skipped_captioned"
	counterAutoprioritizeSkippedAlreadyQ  = "autoprioritize.skipped_alreadyqueued"
)

var (
	snapshotMu   sync.Mutex
	counters     = map[string]int64{}
	cityEnqueued = map[string]int64{}
)

func bump(name string) {
	snapshotMu.Lock()
	counters[name]++
	snapshotMu.Unlock()
}

// IncDownloadAttempt increments the downloader attempt counter.
func IncDownloadAttempt() { downloadAttemptVec.Inc(); bump(counterDownloadAttempt) }

// IncDownloadSuccess increments the downloader success counter.
func IncDownloadSuccess() { downloadSuccessVec.Inc(); bump(counterDownloadSuccess) }

// IncDownloadFailed increments the downloader failure counter.
func IncDownloadFailed() { downloadFailedVec.Inc(); bump(counterDownloadFailed) }

// IncPipelineStart increments the pipeline-started counter.
func IncPipelineStart() { pipelineStartVec.Inc(); bump(counterPipelineStart) }

// IncPipelineDone increments the pipeline-done counter.
func IncPipelineDone() { pipelineDoneVec.Inc(); bump(counterPipelineDone) }

// IncPipelineFailed increments the pipeline-failed counter.
func IncPipelineFailed() { pipelineFailedVec.Inc(); bump(counterPipelineFailed) }

// IncPipelineDeferred increments the pipeline-deferred counter.
func IncPipelineDeferred() { pipelineDeferredVec.Inc(); bump(counterPipelineDeferred) }

// IncPipelineSkipped increments the pipeline-skipped counter (CAPTION-CHECK
// found an existing caption artifact).
func IncPipelineSkipped() { pipelineSkippedVec.Inc(); bump(counterPipelineSkipped) }

// IncAutoprioritizeScanned increments the scanned-candidates counter by n.
func IncAutoprioritizeScanned(n int) {
	autoprioritizeScannedVec.Add(float64(n))
	snapshotMu.Lock()
	counters[counterAutoprioritizeScanned] += int64(n)
	snapshotMu.Unlock()
}

// IncAutoprioritizeEnqueued increments the enqueued counter, both overall and
// per-city.
func IncAutoprioritizeEnqueued(cityID string) {
	autoprioritizeEnqueuedVec.Inc()
	autoprioritizeEnqueuedByCityVec.WithLabelValues(cityID).Inc()
	bump(counterAutoprioritizeEnqueued)

	snapshotMu.Lock()
	cityEnqueued[cityID]++
	snapshotMu.Unlock()
}

// IncAutoprioritizeSkippedCaptioned increments the already-captioned skip counter.
func IncAutoprioritizeSkippedCaptioned() {
	autoprioritizeSkippedCaptionedVec.Inc()
	bump(counterAutoprioritizeSkippedCaptioned)
}

// IncAutoprioritizeSkippedAlreadyQueued increments the already-queued skip counter.
func IncAutoprioritizeSkippedAlreadyQueued() {
	autoprioritizeSkippedAlreadyQueuedVec.Inc()
	bump(counterAutoprioritizeSkippedAlreadyQ)
}

// Snapshot is the JSON shape returned by the metrics HTTP endpoint:
// {timestamp, counters: {...}, city_enqueued_total: {city_id: int}}.
type Snapshot struct {
	Timestamp         string           `json:"timestamp"`
	Counters          map[string]int64 `json:"counters"`
	CityEnqueuedTotal map[string]int64 `json:"city_enqueued_total"`
}

// GetSnapshot returns a point-in-time copy of every counter for the metrics
// HTTP endpoint.
func GetSnapshot() Snapshot {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()

	out := Snapshot{
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Counters:          make(map[string]int64, len(counters)),
		CityEnqueuedTotal: make(map[string]int64, len(cityEnqueued)),
	}
	for k, v := range counters {
		out.Counters[k] = v
	}
	for k, v := range cityEnqueued {
		out.CityEnqueuedTotal[k] = v
	}
	return out
}

// ResetForTest clears every counter. Test-only.
func ResetForTest() {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()
	counters = map[string]int64{}
	cityEnqueued = map[string]int64{}
}
