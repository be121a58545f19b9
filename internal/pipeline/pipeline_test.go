// Copyright (c) 2026 City Access Media

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/media"
	"github.com/cityaccess/vod-orchestrator/internal/transcriber"
	"github.com/cityaccess/vod-orchestrator/internal/vodclient"
)

type stubTranscriber struct {
	result *transcriber.Result
	err    error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, videoPath string) (*transcriber.Result, error) {
	return s.result, s.err
}

func newRegistry(t *testing.T, mountPath string) *config.Registry {
	t.Helper()
	reg, err := config.NewRegistry([]config.City{{ID: "city-1", Name: "City One", MountPath: mountPath}})
	require.NoError(t, err)
	return reg
}

func TestProcessSingleFailsWhenSourceNotFound(t *testing.T) {
	dir := t.TempDir()
	p := &Pipeline{Cities: newRegistry(t, dir), OutputDir: filepath.Join(dir, "out")}

	res, err := p.ProcessSingle(context.Background(), Request{VideoID: "vid-1", CityID: "city-1"})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Equal(t, StageLocate, res.Stage)
	require.Contains(t, res.Error, "source-not-found")
}

func writeFakeProbe(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'EOF'\n" +
		`{"format":{"format_name":"mov,mp4,m4a","duration":"12.5"},"streams":[{"codec_type":"video","codec_name":"h264","width":1280,"height":720}]}` +
		"\nEOF\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProcessSingleSkipsWhenCaptionAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "meeting.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("fake video bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meeting.scc"), []byte("caption"), 0o644))

	p := &Pipeline{
		Cities:    newRegistry(t, dir),
		OutputDir: filepath.Join(dir, "out"),
		Prober:    media.NewProber(writeFakeProbe(t, dir)),
	}

	res, err := p.ProcessSingle(context.Background(), Request{VideoID: "vid-1", CityID: "city-1", LocalPath: videoPath})
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, res.Status)
	require.Equal(t, StageCaptionCheck, res.Stage)
}

func TestClassifyUploadErrDistinguishesUnreachableFromOtherFailures(t *testing.T) {
	p := &Pipeline{}

	unreachable := p.classifyUploadErr(fmt.Errorf("dial: %w", vodclient.ErrUnreachable))
	require.True(t, unreachable.(*errOutcome).deferred)

	other := p.classifyUploadErr(errors.New("500 internal server error"))
	require.False(t, other.(*errOutcome).deferred)
}

func TestCaptionOutputPathUsesOutputDir(t *testing.T) {
	got := captionOutputPath("/mnt/city-1/videos/meeting.mp4", "/data/out", "vid-42")
	require.Equal(t, "/data/out/vid-42.scc", got)
}

func TestSearchMountFindsByVideoID(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "videos")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "vid-77_meeting.mp4"), []byte("x"), 0o644))

	got := searchMount(dir, "vid-77")
	require.Equal(t, filepath.Join(sub, "vid-77_meeting.mp4"), got)
}

func TestSearchMountReturnsEmptyWhenNotFound(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, "", searchMount(dir, "missing-id"))
}
