// Copyright (c) 2026 City Access Media

// Package alert implements the fire-and-forget Alert Sink (C11): a webhook
// POST when configured, a structured log line otherwise. There is no
// acknowledgment contract and no retry on webhook failure.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cityaccess/vod-orchestrator/internal/log"
	"github.com/cityaccess/vod-orchestrator/internal/platform/httpx"
)

const webhookBudget = 10 * time.Second

// Level is the alert severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// field is one key/value pair in a webhook payload's context fields.
type field struct {
	K string `json:"k"`
	V string `json:"v"`
}

type webhookPayload struct {
	Text   string  `json:"text"`
	Fields []field `json:"fields"`
}

// Sink emits alerts either to a configured webhook or to structured logs.
type Sink struct {
	webhookURL string
	http       *http.Client
}

// New builds a Sink. An empty webhookURL means every Emit falls back to a
// structured log line.
func New(webhookURL string) *Sink {
	return &Sink{webhookURL: webhookURL, http: httpx.NewClient(webhookBudget)}
}

// Emit fires an alert at the given level. If a webhook URL is configured,
// it POSTs a JSON payload within a 10s budget and logs (does not retry) on
// failure. If no webhook is configured, it writes a structured log line at
// the given level.
func (s *Sink) Emit(ctx context.Context, level Level, message string, fields map[string]string) {
	if s.webhookURL == "" {
		s.logFallback(ctx, level, message, fields)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, webhookBudget)
	defer cancel()

	payload := webhookPayload{Text: message}
	for k, v := range fields {
		payload.Fields = append(payload.Fields, field{K: k, V: v})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.WithComponent("alert").Warn().Err(err).Msg("alert: payload encode failed, falling back to log")
		s.logFallback(ctx, level, message, fields)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.WithComponent("alert").Warn().Err(err).Msg("alert: webhook request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		log.WithComponent("alert").Warn().Err(err).Str("level", string(level)).Msg("alert: webhook delivery failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		log.WithComponent("alert").Warn().Int("status", resp.StatusCode).Str("level", string(level)).Msg("alert: webhook rejected payload")
	}
}

func (s *Sink) logFallback(ctx context.Context, level Level, message string, fields map[string]string) {
	logger := log.WithContext(ctx, log.WithComponent("alert"))

	var event *zerolog.Event
	switch level {
	case LevelError:
		event = logger.Error()
	case LevelWarning:
		event = logger.Warn()
	default:
		event = logger.Info()
	}
	event.Fields(toAnyMap(fields)).Msg(fmt.Sprintf("alert: %s", message))
}

func toAnyMap(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
