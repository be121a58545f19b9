// Copyright (c) 2026 City Access Media

// Package health aggregates per-component checks (storage, broker, upstream
// VOD client, worker presence) into a liveness/readiness rollup suitable for
// Docker HEALTHCHECK and Kubernetes probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cityaccess/vod-orchestrator/internal/log"
	"golang.org/x/sync/singleflight"
)

// CheckType defines the scope of a health check.
type CheckType uint8

const (
	CheckHealth    CheckType = 1 << 0
	CheckReadiness CheckType = 1 << 1
)

// Status is the tri-state rollup per spec.md §4.13.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the result of a single component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the full liveness response.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the full readiness response.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one component's health probe.
type Checker interface {
	Name() string
	Type() CheckType
	Check(ctx context.Context) CheckResult
}

// Manager aggregates registered checkers into health/readiness responses.
// Readiness is singleflight-collapsed and cached for 1s to protect against
// thundering-herd probing.
type Manager struct {
	version       string
	checkers      []Checker
	startTime     time.Time
	mu            sync.RWMutex
	sfg           singleflight.Group
	lastReadyResp ReadinessResponse
	lastReadyTime time.Time
}

// NewManager creates a Manager reporting the given version string.
func NewManager(version string) *Manager {
	return &Manager{version: version, startTime: time.Now()}
}

// RegisterChecker adds a checker to the manager.
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Health performs a liveness check: always 200 if the process can respond.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.startTime).Seconds()),
		Timestamp: time.Now(),
	}

	if verbose {
		resp.Checks = make(map[string]CheckResult)
		m.mu.RLock()
		checkers := append([]Checker(nil), m.checkers...)
		m.mu.RUnlock()

		hasUnhealthy, hasDegraded := false, false
		for _, c := range checkers {
			res := c.Check(ctx)
			resp.Checks[c.Name()] = res
			switch res.Status {
			case StatusUnhealthy:
				hasUnhealthy = true
			case StatusDegraded:
				hasDegraded = true
			}
		}
		resp.Status = rollup(hasUnhealthy, hasDegraded)
	}

	return resp
}

// Ready performs a readiness check: 200 only once every readiness-scoped
// checker reports healthy or degraded.
func (m *Manager) Ready(ctx context.Context, verbose bool) ReadinessResponse {
	m.mu.RLock()
	if !m.lastReadyTime.IsZero() && time.Since(m.lastReadyTime) < time.Second {
		cached := m.lastReadyResp
		m.mu.RUnlock()
		if !verbose {
			cached.Checks = nil
		} else {
			cached.Checks = cloneChecks(cached.Checks)
		}
		return cached
	}
	m.mu.RUnlock()

	val, err, _ := m.sfg.Do("readiness", func() (interface{}, error) {
		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		m.mu.RLock()
		checkers := append([]Checker(nil), m.checkers...)
		m.mu.RUnlock()

		var wg sync.WaitGroup
		var mu sync.Mutex
		result := ReadinessResponse{Ready: true, Status: StatusHealthy, Timestamp: time.Now(), Checks: map[string]CheckResult{}}

		hasUnhealthy, hasDegraded := false, false
		for _, c := range checkers {
			if c.Type()&CheckReadiness == 0 {
				continue
			}
			wg.Add(1)
			go func(checker Checker) {
				defer wg.Done()
				res := checker.Check(probeCtx)
				mu.Lock()
				defer mu.Unlock()
				result.Checks[checker.Name()] = res
				switch res.Status {
				case StatusUnhealthy:
					hasUnhealthy = true
				case StatusDegraded:
					hasDegraded = true
				}
			}(c)
		}
		wg.Wait()

		if probeCtx.Err() != nil {
			return result, probeCtx.Err()
		}

		result.Status = rollup(hasUnhealthy, hasDegraded)
		result.Ready = result.Status != StatusUnhealthy

		m.mu.Lock()
		cached := result
		cached.Checks = cloneChecks(result.Checks)
		m.lastReadyResp, m.lastReadyTime = cached, result.Timestamp
		m.mu.Unlock()

		return result, nil
	})

	if err != nil {
		m.mu.RLock()
		cached := m.lastReadyResp
		lastTime := m.lastReadyTime
		m.mu.RUnlock()
		if !lastTime.IsZero() && time.Since(lastTime) < 5*time.Second {
			cached.Error = err.Error()
			if !verbose {
				cached.Checks = nil
			}
			return cached
		}
		return ReadinessResponse{Ready: false, Status: StatusUnhealthy, Timestamp: time.Now(), Error: err.Error()}
	}

	resp := val.(ReadinessResponse)
	if !verbose {
		resp.Checks = nil
	}
	return resp
}

// rollup applies spec.md §4.13's precedence: unhealthy beats degraded beats
// healthy.
func rollup(hasUnhealthy, hasDegraded bool) Status {
	switch {
	case hasUnhealthy:
		return StatusUnhealthy
	case hasDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// ServeHealth handles GET /healthz.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"
	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("health: encode failed")
	}
}

// ServeReady handles GET /readyz.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")
	verbose := r.URL.Query().Get("verbose") == "true"
	resp := m.Ready(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("readiness: encode failed")
	}
}

func cloneChecks(in map[string]CheckResult) map[string]CheckResult {
	if in == nil {
		return nil
	}
	out := make(map[string]CheckResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
