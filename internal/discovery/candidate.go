// Copyright (c) 2026 City Access Media

// Package discovery walks a city's mount surface for freshly recorded video
// files and decides which of them still need captioning.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// VideoCandidate is an immutable record emitted by Scan: a video file found
// on a mount, not yet known to already carry captions.
type VideoCandidate struct {
	Path       string
	CityID     string
	RecordedAt time.Time
	Size       int64
	Ext        string
}

const minCandidateSize = 5 * 1024 * 1024 // 5 MiB

var candidateExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".m4v": true,
	".avi": true, ".ts": true, ".wmv": true, ".mpeg": true,
}

// contentSubdirs are the fixed, well-known subdirectories probed beneath a
// mount root in addition to the root itself.
var contentSubdirs = []string{
	"videos", "vod_content", "city_council", "meetings",
	"content", "incoming", "recordings",
}

// Scan enumerates the mount root and its fixed content subdirectories for
// qualifying video files, surface-level only (depth 1, no recursion), and
// returns up to limit candidates ordered newest-first by modification time
// with a lexicographic path tie-break. A mount that cannot be read yields an
// empty, non-error result; the caller is responsible for logging.
func Scan(mountPath, cityID string, limit int) ([]VideoCandidate, error) {
	if limit <= 0 {
		limit = 1
	}

	dirs := make([]string, 0, len(contentSubdirs)+1)
	dirs = append(dirs, mountPath)
	for _, sub := range contentSubdirs {
		dirs = append(dirs, filepath.Join(mountPath, sub))
	}

	var candidates []VideoCandidate
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // unreadable or absent: silently skipped per directory
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if !candidateExtensions[ext] {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.Size() < minCandidateSize {
				continue
			}
			candidates = append(candidates, VideoCandidate{
				Path:       filepath.Join(dir, entry.Name()),
				CityID:     cityID,
				RecordedAt: info.ModTime(),
				Size:       info.Size(),
				Ext:        ext,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].RecordedAt.Equal(candidates[j].RecordedAt) {
			return candidates[i].RecordedAt.After(candidates[j].RecordedAt)
		}
		return candidates[i].Path < candidates[j].Path
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// MountReadable reports whether path exists and is a readable directory,
// used to distinguish an unmounted share from an empty one before scanning.
func MountReadable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// MountWritable reports whether path exists and accepts a probe file write,
// distinguishing a mount that merely resolves from one backfill can safely
// stage output onto.
func MountWritable(path string) bool {
	if !MountReadable(path) {
		return false
	}
	probe, err := os.CreateTemp(path, ".write-check-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return true
}
