// Copyright (c) 2026 City Access Media

// Package pipeline runs the per-video state machine that turns a discovered
// recording into an uploaded, captioned asset: LOCATE, VALIDATE,
// CAPTION-CHECK, TRANSCRIBE, REMUX, UPLOAD, QUALITY, terminating in DONE,
// SKIP, FAILED, or DEFERRED.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cityaccess/vod-orchestrator/internal/alert"
	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/discovery"
	"github.com/cityaccess/vod-orchestrator/internal/downloader"
	"github.com/cityaccess/vod-orchestrator/internal/media"
	"github.com/cityaccess/vod-orchestrator/internal/metrics"
	"github.com/cityaccess/vod-orchestrator/internal/pipeline/fsm"
	netutil "github.com/cityaccess/vod-orchestrator/internal/platform/net"
	"github.com/cityaccess/vod-orchestrator/internal/telemetry"
	"github.com/cityaccess/vod-orchestrator/internal/transcriber"
	"github.com/cityaccess/vod-orchestrator/internal/vodclient"
)

// Stage is one state of the per-video machine.
type Stage string

const (
	StageNew          Stage = "NEW"
	StageLocate       Stage = "LOCATE"
	StageValidate     Stage = "VALIDATE"
	StageCaptionCheck Stage = "CAPTION-CHECK"
	StageSkip         Stage = "SKIP"
	StageTranscribe   Stage = "TRANSCRIBE"
	StageRemux        Stage = "REMUX"
	StageUpload       Stage = "UPLOAD"
	StageQuality      Stage = "QUALITY"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
	StageDeferred     Stage = "DEFERRED"
)

// event is a transition trigger within the generic fsm.Machine instance.
// Every productive edge is driven by ProcessSingle; callers never fire
// events directly.
type event string

const (
	evLocate     event = "locate"
	evValidate   event = "validate"
	evCheck      event = "check"
	evSkip       event = "skip"
	evTranscribe event = "transcribe"
	evRemux      event = "remux"
	evUpload     event = "upload"
	evQuality    event = "quality"
	evDone       event = "done"
)

// Status is the terminal outcome reported in Result.
type Status string

const (
	StatusDone     Status = "done"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
	StatusDeferred Status = "deferred"
)

// Request describes one video to run through the pipeline.
type Request struct {
	VideoID   string
	CityID    string
	LocalPath string // caller-provided hint, highest LOCATE preference
}

// Result is the terminal contract returned by ProcessSingle: every run ends
// with exactly one of these shapes.
type Result struct {
	VideoID string `json:"video_id"`
	CityID  string `json:"city_id"`
	Status  Status `json:"status"`
	Stage   Stage  `json:"stage"`
	Score   *int   `json:"score,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// errOutcome wraps a stage error, tagging whether it is a deferral (the only
// kind allowed to transition out of UPLOAD) or a hard failure.
type errOutcome struct {
	deferred bool
	err      error
}

func (e *errOutcome) Error() string { return e.err.Error() }
func (e *errOutcome) Unwrap() error { return e.err }

func failure(err error) error { return &errOutcome{err: err} }
func deferral(err error) error { return &errOutcome{deferred: true, err: err} }

// stallTimeout bounds an in-process TRANSCRIBE call: if the opaque
// transcriber hangs past this ceiling the stage is abandoned and reported as
// a timeout, rather than holding the worker hostage indefinitely. The call
// runs synchronously under a context with this deadline, so the ceiling
// holds only for a Transcriber that returns once its ctx is done.
const stallTimeout = 2 * time.Hour

// minFreeMultiple is the pre-flight disk-space guard: the per-city output
// mount must have at least this multiple of the source file's size free
// before TRANSCRIBE begins, so a later REMUX never fails midway with a
// truncated output for a reason that was knowable up front.
const minFreeMultiple = 2

// Pipeline wires the collaborators a run needs: media tooling, the opaque
// transcriber, the upstream VOD client, the resilient downloader, the city
// mount registry, and the alert sink.
type Pipeline struct {
	Cities      *config.Registry
	OutputDir   string // global output directory (spec.md §4.2)
	Prober      *media.Prober
	Remuxer     *media.Remuxer
	Transcriber transcriber.Transcriber
	VODClient   *vodclient.Client
	Downloader  *downloader.Downloader
	Alerts      *alert.Sink
}

// run carries the mutable state of a single ProcessSingle call. Each
// transition's Action closure captures it.
type run struct {
	req         Request
	localPath   string
	captionPath string
	alreadyHad  bool
	remuxedPath string
	score       int
}

// machine is the subset of fsm.Machine's surface the pipeline drives.
type machine interface {
	Fire(ctx context.Context, ev event) (Stage, error)
}

// ProcessSingle drives req through the full state machine and returns the
// terminal Result. It returns a non-nil error only for a defect in the
// transition table itself; every domain outcome is encoded in Result.
func (p *Pipeline) ProcessSingle(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.Tracer("pipeline").Start(ctx, "pipeline.process_single",
		trace.WithAttributes(telemetry.PipelineAttributes(req.CityID, req.VideoID, string(StageNew))...))
	defer span.End()

	metrics.IncPipelineStart()
	r := &run{req: req}

	m, err := fsm.New[Stage, event](StageNew, p.transitions(r))
	if err != nil {
		return nil, fmt.Errorf("pipeline: build transition table: %w", err)
	}

	stage, outcome := p.run(ctx, m, r)
	result := p.terminal(ctx, r, stage, outcome)

	span.SetAttributes(telemetry.PipelineAttributes(req.CityID, req.VideoID, string(result.Stage))...)
	if outcome != nil && !outcome.deferred {
		span.SetAttributes(telemetry.ErrorAttributes(string(result.Status))...)
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, m machine, r *run) (Stage, *errOutcome) {
	steps := []struct {
		stage Stage
		ev    event
	}{
		{StageLocate, evLocate},
		{StageValidate, evValidate},
		{StageCaptionCheck, evCheck},
	}
	for _, s := range steps {
		if _, err := m.Fire(ctx, s.ev); err != nil {
			return s.stage, asOutcome(err)
		}
	}

	if r.alreadyHad {
		_, _ = m.Fire(ctx, evSkip)
		return StageCaptionCheck, nil
	}

	rest := []struct {
		stage Stage
		ev    event
	}{
		{StageTranscribe, evTranscribe},
		{StageRemux, evRemux},
		{StageUpload, evUpload},
		{StageQuality, evQuality},
	}
	for _, s := range rest {
		if _, err := m.Fire(ctx, s.ev); err != nil {
			return s.stage, asOutcome(err)
		}
	}
	_, _ = m.Fire(ctx, evDone)
	return StageDone, nil
}

func asOutcome(err error) *errOutcome {
	var o *errOutcome
	if errors.As(err, &o) {
		return o
	}
	return &errOutcome{err: err}
}

// terminal builds the Result for the reached stage, emits the matching
// alert, and bumps the matching counter.
func (p *Pipeline) terminal(ctx context.Context, r *run, stage Stage, outcome *errOutcome) *Result {
	res := &Result{VideoID: r.req.VideoID, CityID: r.req.CityID, Stage: stage}

	switch {
	case outcome == nil && stage == StageCaptionCheck:
		res.Status, res.Message = StatusSkipped, "caption artifact already present"
		metrics.IncPipelineSkipped()
		p.alert(ctx, alert.LevelWarning, res)
	case outcome == nil && stage == StageDone:
		res.Status, res.Message = StatusDone, "pipeline completed"
		res.Score = &r.score
		metrics.IncPipelineDone()
		p.alert(ctx, alert.LevelInfo, res)
	case outcome != nil && outcome.deferred:
		res.Status, res.Message = StatusDeferred, "deferred: upstream unreachable, will be re-discovered"
		res.Error = outcome.Error()
		metrics.IncPipelineDeferred()
		p.alert(ctx, alert.LevelWarning, res)
	default:
		res.Status, res.Message = StatusFailed, "pipeline failed"
		if outcome != nil {
			res.Error = outcome.Error()
		}
		metrics.IncPipelineFailed()
		p.alert(ctx, alert.LevelError, res)
	}

	return res
}

func (p *Pipeline) alert(ctx context.Context, level alert.Level, res *Result) {
	if p.Alerts == nil {
		return
	}
	fields := map[string]string{
		"video_id": res.VideoID,
		"city_id":  res.CityID,
		"stage":    string(res.Stage),
	}
	if res.Error != "" {
		fields["error"] = res.Error
	}
	p.Alerts.Emit(ctx, level, res.Message, fields)
}

// transitions assembles the fixed productive transition table for one run.
func (p *Pipeline) transitions(r *run) []fsm.Transition[Stage, event] {
	return []fsm.Transition[Stage, event]{
		{From: StageNew, Event: evLocate, To: StageLocate, Action: p.actionLocate(r)},
		{From: StageLocate, Event: evValidate, To: StageValidate, Action: p.actionValidate(r)},
		{From: StageValidate, Event: evCheck, To: StageCaptionCheck, Action: p.actionCaptionCheck(r)},
		{From: StageCaptionCheck, Event: evSkip, To: StageSkip},
		{From: StageCaptionCheck, Event: evTranscribe, To: StageTranscribe, Action: p.actionTranscribe(r)},
		{From: StageTranscribe, Event: evRemux, To: StageRemux, Action: p.actionRemux(r)},
		{From: StageRemux, Event: evUpload, To: StageUpload, Action: p.actionUpload(r)},
		{From: StageUpload, Event: evQuality, To: StageQuality, Action: p.actionQuality(r)},
		{From: StageQuality, Event: evDone, To: StageDone},
	}
}

// actionLocate resolves the video's local file path per spec.md §4.8's
// preference order: caller-provided path, mount-surface search, derived
// download URL.
func (p *Pipeline) actionLocate(r *run) func(ctx context.Context, from, to Stage, ev event) error {
	return func(ctx context.Context, from, to Stage, _ event) error {
		if r.req.LocalPath != "" {
			if info, err := os.Stat(r.req.LocalPath); err == nil && !info.IsDir() {
				r.localPath = r.req.LocalPath
				return nil
			}
		}

		if city, ok := p.Cities.Lookup(r.req.CityID); ok {
			if found := searchMount(city.MountPath, r.req.VideoID); found != "" {
				r.localPath = found
				return nil
			}
		}

		if p.VODClient != nil && p.Downloader != nil {
			if dest, err := p.downloadByID(ctx, r.req.VideoID); err == nil {
				r.localPath = dest
				return nil
			}
		}

		return failure(errors.New("source-not-found"))
	}
}

func (p *Pipeline) downloadByID(ctx context.Context, videoID string) (string, error) {
	vod, err := p.VODClient.GetVOD(ctx, videoID)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(os.TempDir(), videoID+".mp4")
	derivedURL := p.VODClient.BaseURL() + "/vods/" + videoID + "/file"
	if _, ok := netutil.ParseDirectHTTPURL(derivedURL); !ok {
		return "", fmt.Errorf("source-not-found: derived download url %q is not a direct http(s) url", netutil.SanitizeURL(derivedURL))
	}
	if err := p.Downloader.Download(ctx, derivedURL, dest, 10*time.Minute); err != nil {
		return "", err
	}
	_ = vod
	return dest, nil
}

func (p *Pipeline) actionValidate(r *run) func(ctx context.Context, from, to Stage, ev event) error {
	return func(ctx context.Context, from, to Stage, _ event) error {
		info, err := p.Prober.Probe(ctx, r.localPath)
		if err != nil || info.Video.CodecName == "" {
			return failure(fmt.Errorf("invalid-media: %w", errOrDefault(err, errors.New("no decodable video stream"))))
		}
		return nil
	}
}

// actionCaptionCheck decides SKIP vs TRANSCRIBE by setting r.alreadyHad; the
// run loop reads it immediately after this transition fires.
func (p *Pipeline) actionCaptionCheck(r *run) func(ctx context.Context, from, to Stage, ev event) error {
	return func(ctx context.Context, from, to Stage, _ event) error {
		if discovery.HasCaption(r.localPath, p.OutputDir) {
			r.alreadyHad = true
			r.captionPath = captionOutputPath(r.localPath, p.OutputDir, r.req.VideoID)
		}
		return nil
	}
}

func (p *Pipeline) actionTranscribe(r *run) func(ctx context.Context, from, to Stage, ev event) error {
	return func(ctx context.Context, from, to Stage, _ event) error {
		outputDir := filepath.Dir(captionOutputPath(r.localPath, p.OutputDir, r.req.VideoID))
		if !discovery.MountReadable(outputDir) {
			if mkErr := os.MkdirAll(outputDir, 0o755); mkErr != nil {
				return failure(fmt.Errorf("storage-unavailable: %w", mkErr))
			}
		}
		if !hasFreeSpace(outputDir, r.localPath, minFreeMultiple) {
			return failure(errors.New("storage-unavailable: insufficient free space for transcription output"))
		}

		stallCtx, cancel := context.WithTimeout(ctx, stallTimeout)
		defer cancel()

		result, err := p.Transcriber.Transcribe(stallCtx, r.localPath)
		if err != nil {
			if errors.Is(stallCtx.Err(), context.DeadlineExceeded) {
				return failure(fmt.Errorf("timeout: transcription exceeded %s", stallTimeout))
			}
			return failure(fmt.Errorf("transcription failed: %w", err))
		}

		dest := captionOutputPath(r.localPath, p.OutputDir, r.req.VideoID)
		if err := copyFile(result.OutputPath, dest); err != nil {
			return failure(fmt.Errorf("storage-unavailable: copying caption output: %w", err))
		}
		r.captionPath = dest
		return nil
	}
}

func (p *Pipeline) actionRemux(r *run) func(ctx context.Context, from, to Stage, ev event) error {
	return func(ctx context.Context, from, to Stage, _ event) error {
		outDir := filepath.Dir(r.captionPath)
		base := strings.TrimSuffix(filepath.Base(r.localPath), filepath.Ext(r.localPath))
		dest := filepath.Join(outDir, base+"_captioned.mp4")

		result, err := p.Remuxer.RemuxWithCaptions(ctx, r.localPath, r.captionPath, dest)
		if err != nil {
			return failure(fmt.Errorf("remux-failed: %w", err))
		}
		r.remuxedPath = result.OutputPath
		return nil
	}
}

func (p *Pipeline) actionUpload(r *run) func(ctx context.Context, from, to Stage, ev event) error {
	return func(ctx context.Context, from, to Stage, _ event) error {
		if err := p.VODClient.UploadVideoFile(ctx, r.req.VideoID, r.remuxedPath); err != nil {
			return p.classifyUploadErr(err)
		}
		if err := p.VODClient.UploadCaptionFile(ctx, r.req.VideoID, r.captionPath); err != nil {
			return p.classifyUploadErr(err)
		}
		return nil
	}
}

func (p *Pipeline) classifyUploadErr(err error) error {
	if errors.Is(err, vodclient.ErrUnreachable) {
		return deferral(err)
	}
	return failure(fmt.Errorf("upload-failed: %w", err))
}

func (p *Pipeline) actionQuality(r *run) func(ctx context.Context, from, to Stage, ev event) error {
	return func(ctx context.Context, from, to Stage, _ event) error {
		score := 0
		info, probeErr := p.Prober.Probe(ctx, r.remuxedPath)
		if probeErr == nil && info.Video.CodecName != "" {
			score += 25
		}
		if fi, statErr := os.Stat(r.remuxedPath); statErr == nil && fi.Size() >= 1024*1024 {
			score += 25
		}
		if probeErr == nil && info.Video.Duration > 0 {
			score += 25
		}
		if probeErr == nil && info.HasSubtitleStream() {
			score += 25
		}
		r.score = score
		return nil
	}
}

func errOrDefault(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
