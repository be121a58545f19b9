// Copyright (c) 2026 City Access Media

package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestScanNewestFirst(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	writeFile(t, filepath.Join(root, "older.mp4"), minCandidateSize, now.Add(-time.Hour))
	writeFile(t, filepath.Join(root, "newer.mp4"), minCandidateSize, now)

	cands, err := Scan(root, "flex3", 10)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	require.Equal(t, filepath.Join(root, "newer.mp4"), cands[0].Path)
	require.Equal(t, filepath.Join(root, "older.mp4"), cands[1].Path)
}

func TestScanFiltersUndersizedAndUnknownExtensions(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	writeFile(t, filepath.Join(root, "tiny.mp4"), 1024, now)
	writeFile(t, filepath.Join(root, "notes.txt"), minCandidateSize, now)
	writeFile(t, filepath.Join(root, "good.mkv"), minCandidateSize, now)

	cands, err := Scan(root, "flex3", 10)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, filepath.Join(root, "good.mkv"), cands[0].Path)
}

func TestScanEnumeratesContentSubdirectories(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	writeFile(t, filepath.Join(root, "vod_content", "a.mp4"), minCandidateSize, now)
	writeFile(t, filepath.Join(root, "meetings", "b.mp4"), minCandidateSize, now.Add(-time.Minute))

	cands, err := Scan(root, "flex3", 10)
	require.NoError(t, err)
	require.Len(t, cands, 2)
}

func TestScanTruncatesToLimit(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, string(rune('a'+i))+".mp4"), minCandidateSize, now.Add(time.Duration(i)*time.Second))
	}

	cands, err := Scan(root, "flex3", 2)
	require.NoError(t, err)
	require.Len(t, cands, 2)
}

func TestScanUnreadableMountReturnsEmpty(t *testing.T) {
	cands, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"), "flex3", 10)
	require.NoError(t, err)
	require.Empty(t, cands)
}

func TestMountReadable(t *testing.T) {
	root := t.TempDir()
	require.True(t, MountReadable(root))
	require.False(t, MountReadable(filepath.Join(root, "missing")))
}
