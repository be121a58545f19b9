// Copyright (c) 2026 City Access Media

package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cityaccess/vod-orchestrator/internal/fsutil"
)

// contentSubdirs mirrors discovery's fixed, well-known content locations so
// LOCATE's mount search looks in the same places discovery surfaced the
// candidate from.
var contentSubdirs = []string{
	"videos", "vod_content", "city_council", "meetings",
	"content", "incoming", "recordings",
}

// searchMount looks for a file under mountPath (root plus its fixed content
// subdirectories, non-recursive) whose basename contains videoID. Returns
// "" if nothing matches.
func searchMount(mountPath, videoID string) string {
	if mountPath == "" || videoID == "" {
		return ""
	}
	dirs := make([]string, 0, len(contentSubdirs)+1)
	dirs = append(dirs, mountPath)
	for _, sub := range contentSubdirs {
		dirs = append(dirs, filepath.Join(mountPath, sub))
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if strings.Contains(entry.Name(), videoID) {
				return filepath.Join(dir, entry.Name())
			}
		}
	}
	return ""
}

// captionOutputPath is the per-city output directory's canonical caption
// path for a video: <output-dir>/<video-id>.scc. videoID may originate from
// a task argument rather than a local filesystem walk, so the join is
// confined to outputDir to reject any "../" escape.
func captionOutputPath(localVideoPath, outputDir, videoID string) string {
	if outputDir == "" {
		outputDir = filepath.Dir(localVideoPath)
	}
	rel := videoID + ".scc"
	confined, err := fsutil.ConfineRelPath(outputDir, rel)
	if err != nil {
		return filepath.Join(outputDir, filepath.Base(rel))
	}
	return confined
}

// hasFreeSpace reports whether the filesystem backing dir has at least
// multiple times the size of sourcePath free.
func hasFreeSpace(dir, sourcePath string, multiple int64) bool {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		// Can't determine free space on this platform/mount; don't block the
		// run on an unenforceable guard.
		return true
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)
	return free >= info.Size()*multiple
}

// copyFile copies src to dst, creating dst's parent directory if needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}
