// Copyright (c) 2026 City Access Media

// Package downloader implements the resilient downloader contract:
// preflight checks, a download-cache consultation, streaming transfer, and
// bounded retry with exponential backoff on transient errors only.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cityaccess/vod-orchestrator/internal/log"
	"github.com/cityaccess/vod-orchestrator/internal/metrics"
	netutil "github.com/cityaccess/vod-orchestrator/internal/platform/net"
	"github.com/cityaccess/vod-orchestrator/internal/store"
)

// ErrorKind classifies why a download failed. ErrType and ErrSize are also
// the rejection reasons the Download Cache carries for a URL.
type ErrorKind string

const (
	ErrStorageUnavailable ErrorKind = "storage-unavailable"
	ErrStorageReadonly    ErrorKind = "storage-readonly"
	ErrType               ErrorKind = "type"
	ErrSize               ErrorKind = "size"
	ErrVerificationFailed ErrorKind = "verification-failed"
	ErrTransient          ErrorKind = "transient"
	ErrRejected           ErrorKind = "rejected"
)

// DownloadError wraps an ErrorKind with the underlying cause, if any.
type DownloadError struct {
	Kind ErrorKind
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("download failed (%s)", e.Kind)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func fail(kind ErrorKind, err error) error { return &DownloadError{Kind: kind, Err: err} }

const (
	chunkSize              = 8 * 1024
	progressLogEvery       = 10 * 1024 * 1024
	defaultMaxAuxiliary    = 50 * 1024 * 1024
	maxAttempts            = 5
	backoffInitialInterval = 2 * time.Second
	backoffMaxInterval     = 30 * time.Second
)

// Options configures a Downloader.
type Options struct {
	HTTPClient  *http.Client
	Cache       *store.DownloadCache
	MaxBytes    int64 // 0 -> defaultMaxAuxiliary
	AllowedExts []string

	// OutboundPolicy, when Enabled, is checked against every URL before the
	// preflight HEAD: the SSRF guardrail that keeps the downloader from
	// being pointed at an internal address by a compromised or malicious
	// source URL.
	OutboundPolicy netutil.OutboundPolicy
}

// Downloader executes the resilient download contract against destination
// paths on a city's mount.
type Downloader struct {
	client         *http.Client
	cache          *store.DownloadCache
	maxBytes       int64
	allowedExts    map[string]bool
	outboundPolicy netutil.OutboundPolicy
}

// New builds a Downloader. A nil HTTPClient falls back to a plain
// http.Client with no overall timeout; each attempt is bounded by the
// timeout passed to Download.
func New(opts Options) *Downloader {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxAuxiliary
	}
	exts := map[string]bool{".mp4": true, ".scc": true, ".mov": true, ".mkv": true}
	for _, e := range opts.AllowedExts {
		exts[strings.ToLower(e)] = true
	}
	return &Downloader{client: client, cache: opts.Cache, maxBytes: maxBytes, allowedExts: exts, outboundPolicy: opts.OutboundPolicy}
}

// Download fetches url into destinationPath in at most 5 attempts, retrying
// only transient failures, with exponential backoff between attempts (2s,
// 4s, 8s, 16s, capped at 30s).
func (d *Downloader) Download(ctx context.Context, url, destinationPath string, timeout time.Duration) error {
	logger := log.WithComponent("downloader")
	metrics.IncDownloadAttempt()

	destDir := filepath.Dir(destinationPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		metrics.IncDownloadFailed()
		return fail(ErrStorageUnavailable, err)
	}
	if probe, err := os.CreateTemp(destDir, ".write-check-*"); err != nil {
		metrics.IncDownloadFailed()
		return fail(ErrStorageReadonly, err)
	} else {
		name := probe.Name()
		_ = probe.Close()
		_ = os.Remove(name)
	}

	if d.cache != nil {
		if cached, ok := d.cache.Lookup(ctx, url); ok && (cached == string(ErrType) || cached == string(ErrSize)) {
			metrics.IncDownloadFailed()
			return fail(ErrorKind(cached), errors.New("cached rejection"))
		}
	}

	validatedURL, err := d.preflightHead(ctx, url)
	if err != nil {
		var de *DownloadError
		if d.cache != nil && errors.As(err, &de) && (de.Kind == ErrType || de.Kind == ErrSize) {
			d.cache.Remember(ctx, url, string(de.Kind))
		}
		metrics.IncDownloadFailed()
		return err
	}
	url = validatedURL

	start := time.Now()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitialInterval
	bo.MaxInterval = backoffMaxInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	attempt := 0
	op := func() error {
		attempt++
		dlCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			dlCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := d.transfer(dlCtx, url, destinationPath, logger)
		if err == nil {
			return nil
		}
		var de *DownloadError
		if errors.As(err, &de) && de.Kind != ErrTransient {
			return backoff.Permanent(err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Str("url", netutil.SanitizeURL(url)).Msg("downloader: transient failure, retrying")
		return err
	}

	err = backoff.Retry(op, backoff.WithMaxRetries(bo, maxAttempts-1))
	if err != nil {
		metrics.IncDownloadFailed()
		return err
	}

	if d.cache != nil {
		d.cache.Remember(ctx, url, cachedSuccessMarker)
	}
	metrics.IncDownloadSuccess()
	logger.Info().Str("url", netutil.SanitizeURL(url)).Dur("duration", time.Since(start)).Msg("downloader: completed")
	return nil
}

const cachedSuccessMarker = "ok"

// preflightHead validates rawURL against the outbound policy (if enabled),
// then issues a HEAD request to check status, content type, and size before
// any GET is attempted. It returns the normalized URL transfer should use.
func (d *Downloader) preflightHead(ctx context.Context, rawURL string) (string, error) {
	target := rawURL
	if d.outboundPolicy.Enabled {
		normalized, err := netutil.ValidateOutboundURL(ctx, rawURL, d.outboundPolicy)
		if err != nil {
			return "", fail(ErrRejected, err)
		}
		target = normalized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", fail(ErrRejected, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fail(ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fail(ErrRejected, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return "", fail(ErrTransient, fmt.Errorf("status %d", resp.StatusCode))
	}

	if !d.contentAcceptable(target, resp.Header.Get("Content-Type")) {
		return "", fail(ErrType, fmt.Errorf("content-type %q not accepted", resp.Header.Get("Content-Type")))
	}
	if resp.ContentLength > d.maxBytes {
		return "", fail(ErrSize, fmt.Errorf("content-length %d exceeds max %d", resp.ContentLength, d.maxBytes))
	}
	return target, nil
}

func (d *Downloader) contentAcceptable(rawURL, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "application/octet-stream") {
		return true
	}
	if strings.HasPrefix(ct, "text/html") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(rawURL))
	return d.allowedExts[ext]
}

func (d *Downloader) transfer(ctx context.Context, url, destinationPath string, logger zerolog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(ErrRejected, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fail(ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fail(ErrRejected, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return fail(ErrTransient, fmt.Errorf("status %d", resp.StatusCode))
	}

	out, err := os.Create(destinationPath)
	if err != nil {
		return fail(ErrStorageUnavailable, err)
	}

	written, copyErr := streamWithProgress(out, resp.Body, logger, url)
	closeErr := out.Close()

	if copyErr != nil {
		_ = os.Remove(destinationPath)
		return fail(ErrTransient, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(destinationPath)
		return fail(ErrStorageUnavailable, closeErr)
	}

	if written == 0 {
		_ = os.Remove(destinationPath)
		return fail(ErrVerificationFailed, errors.New("zero-length transfer"))
	}
	if info, err := os.Stat(destinationPath); err != nil || info.Size() == 0 {
		_ = os.Remove(destinationPath)
		return fail(ErrVerificationFailed, errors.New("file missing or empty after transfer"))
	}
	return nil
}

func streamWithProgress(dst io.Writer, src io.Reader, logger zerolog.Logger, url string) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	var sinceLog int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			sinceLog += int64(w)
			if werr != nil {
				return total, werr
			}
			if sinceLog >= progressLogEvery {
				logger.Info().Int64("bytes", total).Str("url", netutil.SanitizeURL(url)).Msg("downloader: progress")
				sinceLog = 0
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
