// Copyright (c) 2026 City Access Media

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cityaccess/vod-orchestrator/internal/log"
	"github.com/rs/zerolog"
)

// ParseString reads a string from an environment variable or returns the
// default value. It logs the source (environment or default) for
// observability, redacting values for keys that look sensitive.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		lowerKey := strings.ToLower(key)
		switch {
		case strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "url") && strings.Contains(lowerKey, "webhook"):
			logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
		case value == "":
			logger.Debug().Str("key", key).Str("default", defaultValue).Msg("environment variable empty, using default")
			return defaultValue
		default:
			logger.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
		}
		return value
	}
	logger.Debug().Str("key", key).Str("default", defaultValue).Msg("environment variable not set, using default")
	return defaultValue
}

// ParseInt reads an integer environment variable or returns the default.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("invalid integer, using default")
		return defaultValue
	}
	return v
}

// ParseInt64 reads an int64 environment variable or returns the default.
func ParseInt64(key string, defaultValue int64) int64 {
	logger := log.WithComponent("config")
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("invalid int64, using default")
		return defaultValue
	}
	return v
}

// ParseDuration reads a time.Duration environment variable (Go duration
// syntax, e.g. "30m") or returns the default.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("invalid duration, using default")
		return defaultValue
	}
	return v
}

// ParseStringList reads a comma-separated environment variable into a slice,
// trimming whitespace and dropping empty entries, or returns the default.
func ParseStringList(key string, defaultValue []string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseIntList reads a comma-separated environment variable into an int
// slice, skipping malformed entries, or returns the default.
func ParseIntList(key string, defaultValue []int) []int {
	logger := log.WithComponent("config")
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			logger.Warn().Str("key", key).Str("value", p).Msg("invalid integer in list, skipping entry")
			continue
		}
		out = append(out, v)
	}
	return out
}

// ParseClockTime reads an "HH:MM" environment variable or returns the default.
func ParseClockTime(key, defaultValue string) string {
	raw := ParseString(key, defaultValue)
	if _, _, err := splitClock(raw); err != nil {
		return defaultValue
	}
	return raw
}

func splitClock(v string) (hour, minute int, err error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errInvalidClock
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errInvalidClock
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, errInvalidClock
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errInvalidClock
	}
	return hour, minute, nil
}
