// Copyright (c) 2026 City Access Media

package transcriber

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFakeBinary(t *testing.T, dir, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary scripts require a POSIX shell")
	}
	path := filepath.Join(dir, "transcribe")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestCLIAdapterParsesResult(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, `echo '{"output_path":"/tmp/out.scc","segments":42,"duration":123.4}'`+"\n")

	a := NewCLIAdapter(bin)
	result, err := a.Transcribe(context.Background(), "/fake/video.mp4")
	require.NoError(t, err)
	require.Equal(t, "/tmp/out.scc", result.OutputPath)
	require.Equal(t, 42, result.Segments)
	require.InDelta(t, 123.4, result.Duration, 0.01)
}

func TestCLIAdapterFailsOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "echo 'model crashed' >&2\nexit 1\n")

	a := NewCLIAdapter(bin)
	_, err := a.Transcribe(context.Background(), "/fake/video.mp4")
	require.Error(t, err)
}

func TestCLIAdapterFailsOnMissingOutputPath(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, `echo '{"segments":1}'`+"\n")

	a := NewCLIAdapter(bin)
	_, err := a.Transcribe(context.Background(), "/fake/video.mp4")
	require.Error(t, err)
}

func TestCLIAdapterRespectsTimeout(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "sleep 5\n")

	a := NewCLIAdapter(bin)
	a.Timeout = 100 * time.Millisecond
	_, err := a.Transcribe(context.Background(), "/fake/video.mp4")
	require.Error(t, err)
}

func TestCLIAdapterRequiresBinaryPath(t *testing.T) {
	a := NewCLIAdapter("")
	_, err := a.Transcribe(context.Background(), "/fake/video.mp4")
	require.Error(t, err)
}
