// Copyright (c) 2026 City Access Media

// Package vodclient is a typed adapter over the upstream VOD platform's HTTP
// API. Every operation surfaces a classified sentinel error instead of an
// opaque transport failure, and upstream reachability is gated through a
// bucketed circuit breaker so a flapping upstream doesn't compound retries
// across every city's pipeline at once.
package vodclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cityaccess/vod-orchestrator/internal/log"
	"github.com/cityaccess/vod-orchestrator/internal/platform/httpx"
	"github.com/cityaccess/vod-orchestrator/internal/resilience"
)

func defaultHTTPClient() *http.Client { return httpx.NewClient(defaultTimeout) }

const (
	defaultTimeout           = 30 * time.Second
	reachabilityTimeout      = 5 * time.Second
	healthPath               = "/health"
	defaultBreakerWindow     = 2 * time.Minute
	defaultBreakerMinReqs    = 10
	defaultBreakerFailRate   = 0.5
	defaultBreakerConsec     = 5
	defaultBreakerRetryAfter = 30 * time.Second
)

// Video is the subset of the upstream video record the orchestrator cares
// about.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	HasVideo  bool      `json:"has_video"`
	HasCaption bool     `json:"has_caption"`
}

// Captions is the upstream caption-availability record for a video.
type Captions struct {
	VideoID   string `json:"video_id"`
	Available bool   `json:"available"`
	Format    string `json:"format,omitempty"`
}

// Client wraps the upstream VOD platform's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.VODBreaker
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the default hardened HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New constructs a Client bound to baseURL (e.g. "https://vod.example.org/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		breaker: resilience.GetOrRegisterVOD("vodclient", resilience.VODConfig{
			Window:      defaultBreakerWindow,
			MinRequests: defaultBreakerMinReqs,
			FailureRate: defaultBreakerFailRate,
			Consecutive: defaultBreakerConsec,
			RetryAfter:  defaultBreakerRetryAfter,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = defaultHTTPClient()
	}
	return c
}

// BaseURL returns the upstream API root this client is bound to, for
// callers that need to derive a direct resource URL (e.g. the pipeline's
// LOCATE stage falling back to a direct file URL).
func (c *Client) BaseURL() string { return c.baseURL }

// ListRecentVODs returns up to limit recently created videos, newest first.
func (c *Client) ListRecentVODs(ctx context.Context, limit int) ([]Video, error) {
	body, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/videos?limit=%d&sort=recent", limit), nil, "list_recent_vods")
	if err != nil {
		return nil, err
	}
	var out []Video
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ClientError{Sentinel: ErrMalformed, Operation: "list_recent_vods", Err: err}
	}
	return out, nil
}

// GetVOD fetches a single video record by id.
func (c *Client) GetVOD(ctx context.Context, id string) (*Video, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/videos/"+id, nil, "get_vod")
	if err != nil {
		return nil, err
	}
	var out Video
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ClientError{Sentinel: ErrMalformed, Operation: "get_vod", Err: err}
	}
	return &out, nil
}

// GetVODCaptions fetches caption availability metadata for a video.
func (c *Client) GetVODCaptions(ctx context.Context, id string) (*Captions, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/videos/"+id+"/captions", nil, "get_vod_captions")
	if err != nil {
		return nil, err
	}
	var out Captions
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ClientError{Sentinel: ErrMalformed, Operation: "get_vod_captions", Err: err}
	}
	return &out, nil
}

// UploadVideoFile uploads the remuxed video at path for video id.
func (c *Client) UploadVideoFile(ctx context.Context, id, path string) error {
	return c.uploadFile(ctx, "/videos/"+id+"/video", "file", path, "upload_video_file")
}

// UploadCaptionFile uploads the generated caption file at path for video id.
func (c *Client) UploadCaptionFile(ctx context.Context, id, path string) error {
	return c.uploadFile(ctx, "/videos/"+id+"/captions", "file", path, "upload_caption_file")
}

// TestReachability performs a GET against the upstream health path and
// succeeds if a 2xx is returned within 5 seconds. It does not consult or
// affect the circuit breaker: reachability checks must run even while the
// breaker protecting normal traffic is open.
func (c *Client) TestReachability(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, reachabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return &ClientError{Sentinel: ErrUnreachable, Operation: "test_reachability", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &ClientError{Sentinel: ErrUnreachable, Operation: "test_reachability", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify("test_reachability", resp.StatusCode, nil)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload io.Reader, operation string) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, &ClientError{Sentinel: ErrUnreachable, Operation: operation, Err: resilience.ErrCircuitOpen}
	}

	logger := log.WithComponent("vodclient")
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		c.breaker.Report(false)
		return nil, &ClientError{Sentinel: ErrAPI, Operation: operation, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Report(false)
		return nil, classify(operation, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		c.breaker.Report(resp.StatusCode < 500)
		return nil, classify(operation, resp.StatusCode, nil)
	}
	if readErr != nil {
		c.breaker.Report(false)
		return nil, &ClientError{Sentinel: ErrMalformed, Operation: operation, Err: readErr}
	}

	c.breaker.Report(true)
	logger.Debug().Str("operation", operation).Int("status", resp.StatusCode).Msg("vodclient: request completed")
	return body, nil
}

func (c *Client) uploadFile(ctx context.Context, path, fieldName, filePath, operation string) error {
	if !c.breaker.Allow() {
		return &ClientError{Sentinel: ErrUnreachable, Operation: operation, Err: resilience.ErrCircuitOpen}
	}

	f, err := os.Open(filePath)
	if err != nil {
		return &ClientError{Sentinel: ErrAPI, Operation: operation, Err: err}
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filepath.Base(filePath))
	if err != nil {
		return &ClientError{Sentinel: ErrAPI, Operation: operation, Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return &ClientError{Sentinel: ErrAPI, Operation: operation, Err: err}
	}
	if err := writer.Close(); err != nil {
		return &ClientError{Sentinel: ErrAPI, Operation: operation, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		c.breaker.Report(false)
		return &ClientError{Sentinel: ErrAPI, Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Report(false)
		return classify(operation, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		c.breaker.Report(resp.StatusCode < 500)
		return classify(operation, resp.StatusCode, nil)
	}
	c.breaker.Report(true)
	return nil
}
