// Copyright (c) 2026 City Access Media

// Package config provides environment-driven configuration for the VOD
// caption orchestrator: the broker connection, the immutable city mount
// registry, queue names, and scheduler overrides.
package config
