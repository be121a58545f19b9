// Copyright (c) 2026 City Access Media

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldJobID         = "job_id"
	FieldVideoID       = "video_id"
	FieldCityID        = "city_id"
	FieldTaskKind      = "task_kind"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldDuration   = "duration"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldMount   = "mount"
	FieldBaseURL = "base_url"
)
