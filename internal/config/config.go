// Copyright (c) 2026 City Access Media

// Package config loads and validates the orchestrator's environment-driven
// configuration: the shared-store/broker connection, the immutable city
// mount registry, queue names, TTLs, and scheduler overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// City is a City Descriptor: a fixed-roster owner of a mount path and a set
// of title patterns, loaded once at startup and never mutated at runtime.
type City struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MountPath     string   `json:"mount_path"`
	TitlePatterns []string `json:"title_patterns,omitempty"`
}

// MatchesTitle reports whether title contains any of the city's title
// patterns, case-insensitive substring, any-of semantics. An empty pattern
// list matches everything (no opt-in filtering configured).
func (c City) MatchesTitle(title string) bool {
	if len(c.TitlePatterns) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, p := range c.TitlePatterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Registry is the immutable in-memory mapping from city-id to City. It is
// shared read-only across every goroutine once Load returns.
type Registry struct {
	cities []City
	byID   map[string]City
}

// Cities returns the roster in registry (configuration file) order.
func (r *Registry) Cities() []City {
	out := make([]City, len(r.cities))
	copy(out, r.cities)
	return out
}

// Lookup returns the city for id, if present.
func (r *Registry) Lookup(id string) (City, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// NewRegistry builds a Registry from a slice of cities, rejecting duplicate
// ids.
func NewRegistry(cities []City) (*Registry, error) {
	byID := make(map[string]City, len(cities))
	for _, c := range cities {
		if _, exists := byID[c.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCityID, c.ID)
		}
		byID[c.ID] = c
	}
	return &Registry{cities: cities, byID: byID}, nil
}

// Config is the fully resolved, effective runtime configuration.
type Config struct {
	BrokerURL        string
	Cities           *Registry
	PriorityQueue    string
	DefaultQueue     string
	DedupTTLHours    int
	MaxContentLength int64
	WebhookURL       string
	DiscoveryMorning string // HH:MM, UTC
	DiscoveryEvening string // HH:MM, UTC

	// Ambient daemon configuration, not part of the core dedup/queue
	// contract above but required to stand up a running process.
	VODPlatformURL    string
	OutputDir         string // global output directory, consulted by CAPTION-CHECK
	FFmpegPath        string
	FFprobePath       string
	TranscriberPath   string
	WorkerConcurrency int
	ListenAddr        string
	OverflowDir       string // badger staging directory for broker.OverflowStore
	Environment       string

	TelemetryEnabled bool
	OTLPEndpoint     string

	// Outbound policy gates the downloader's preflight HEAD/GET against an
	// SSRF allowlist, opt-in like xg2g's own outbound guardrail: disabled
	// until an operator sets OUTBOUND_ENABLED and populates the allowlist.
	OutboundEnabled      bool
	OutboundAllowHosts   []string
	OutboundAllowCIDRs   []string
	OutboundAllowPorts   []int
	OutboundAllowSchemes []string
}

// Load resolves Config from the process environment. BROKER_URL and
// CITIES_CONFIG are required; every other key has a spec-mandated default.
func Load() (*Config, error) {
	brokerURL := strings.TrimSpace(os.Getenv("BROKER_URL"))
	if brokerURL == "" {
		return nil, ErrMissingBrokerURL
	}

	citiesRaw := strings.TrimSpace(os.Getenv("CITIES_CONFIG"))
	if citiesRaw == "" {
		return nil, ErrMissingCitiesConfig
	}
	reg, err := loadCitiesConfig(citiesRaw)
	if err != nil {
		return nil, err
	}

	return &Config{
		BrokerURL:        brokerURL,
		Cities:           reg,
		PriorityQueue:    ParseString("PRIORITY_QUEUE_NAME", "caption_priority"),
		DefaultQueue:     ParseString("DEFAULT_QUEUE_NAME", "default"),
		DedupTTLHours:    ParseInt("AUTOPRIORITIZE_SEEN_TTL_HOURS", 24),
		MaxContentLength: ParseInt64("MAX_CONTENT_LENGTH", 52_428_800),
		WebhookURL:       strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
		DiscoveryMorning: ParseClockTime("DISCOVERY_TIME_MORNING", "04:00"),
		DiscoveryEvening: ParseClockTime("DISCOVERY_TIME_EVENING", "19:00"),

		VODPlatformURL:    ParseString("VOD_PLATFORM_URL", "http://localhost:8081/api"),
		OutputDir:         ParseString("OUTPUT_DIR", ""),
		FFmpegPath:        ParseString("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:       ParseString("FFPROBE_PATH", "ffprobe"),
		TranscriberPath:   ParseString("TRANSCRIBER_PATH", "transcribe"),
		WorkerConcurrency: ParseInt("WORKER_CONCURRENCY", 3),
		ListenAddr:        ParseString("LISTEN_ADDR", ":8080"),
		OverflowDir:       ParseString("OVERFLOW_DIR", "/var/lib/vod-orchestrator/overflow"),
		Environment:       ParseString("ENVIRONMENT", "production"),

		TelemetryEnabled: ParseString("OTEL_ENABLED", "false") == "true",
		OTLPEndpoint:     ParseString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		OutboundEnabled:      ParseString("OUTBOUND_ENABLED", "false") == "true",
		OutboundAllowHosts:   ParseStringList("OUTBOUND_ALLOW_HOSTS", nil),
		OutboundAllowCIDRs:   ParseStringList("OUTBOUND_ALLOW_CIDRS", nil),
		OutboundAllowPorts:   ParseIntList("OUTBOUND_ALLOW_PORTS", []int{80, 443}),
		OutboundAllowSchemes: ParseStringList("OUTBOUND_ALLOW_SCHEMES", []string{"http", "https"}),
	}, nil
}

// loadCitiesConfig accepts either a filesystem path to a JSON document or an
// inline JSON array, per CITIES_CONFIG's "path or inline JSON" contract.
func loadCitiesConfig(raw string) (*Registry, error) {
	var body []byte
	if strings.HasPrefix(strings.TrimSpace(raw), "[") || strings.HasPrefix(strings.TrimSpace(raw), "{") {
		body = []byte(raw)
	} else {
		data, err := os.ReadFile(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidCitiesConfig, raw, err)
		}
		body = data
	}

	var cities []City
	if err := json.Unmarshal(body, &cities); err != nil {
		// Allow {"cities": [...]} as an alternate top-level shape.
		var wrapped struct {
			Cities []City `json:"cities"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCitiesConfig, err)
		}
		cities = wrapped.Cities
	}

	for _, c := range cities {
		if c.ID == "" || c.MountPath == "" {
			return nil, fmt.Errorf("%w: city entries require id and mount_path", ErrInvalidCitiesConfig)
		}
	}

	return NewRegistry(cities)
}
