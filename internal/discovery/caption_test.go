// Copyright (c) 2026 City Access Media

package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestHasCaptionAdjacent(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "Lake Elmo City Council 06 17 2025.mp4")
	touch(t, video)
	touch(t, filepath.Join(dir, "Lake Elmo City Council 06 17 2025.scc"))

	require.True(t, HasCaption(video, ""))
}

func TestHasCaptionSiblingDirectory(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "meeting.mp4")
	touch(t, video)
	touch(t, filepath.Join(dir, "captions", "meeting.scc"))

	require.True(t, HasCaption(video, ""))
}

func TestHasCaptionGlobalOutputDir(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	video := filepath.Join(dir, "meeting.mp4")
	touch(t, video)
	touch(t, filepath.Join(out, "meeting.scc"))

	require.True(t, HasCaption(video, out))
}

func TestHasCaptionMissingYieldsFalse(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "meeting.mp4")
	touch(t, video)

	require.False(t, HasCaption(video, ""))
}
