// Copyright (c) 2026 City Access Media

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the orchestrator.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPURLKey        = "http.url"

	CityIDKey    = "city.id"
	VideoIDKey   = "video.id"
	StageKey     = "pipeline.stage"
	TaskKindKey  = "task.kind"
	QueueNameKey = "queue.name"

	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PipelineAttributes creates span attributes for a pipeline stage transition.
func PipelineAttributes(cityID, videoID, stage string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CityIDKey, cityID),
		attribute.String(VideoIDKey, videoID),
		attribute.String(StageKey, stage),
	}
}

// TaskAttributes creates span attributes for a broker task dispatch.
func TaskAttributes(kind, queue string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TaskKindKey, kind),
		attribute.String(QueueNameKey, queue),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
