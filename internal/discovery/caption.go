// Copyright (c) 2026 City Access Media

package discovery

import (
	"os"
	"path/filepath"
	"strings"
)

// captionSiblingDirs are checked, in order, after the adjacent location.
var captionSiblingDirs = []string{"transcriptions", "scc_files", "captions"}

// HasCaption reports whether a caption artifact already exists for the video
// at videoPath. It checks, in order: adjacent to the video, a sibling
// captions directory under the video's own directory, and the global output
// directory. The first match short-circuits; non-existence or read errors at
// any location yield false for that location only.
func HasCaption(videoPath, globalOutputDir string) bool {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	dir := filepath.Dir(videoPath)
	sccName := base + ".scc"

	if fileExists(filepath.Join(dir, sccName)) {
		return true
	}

	for _, sub := range captionSiblingDirs {
		if fileExists(filepath.Join(dir, sub, sccName)) {
			return true
		}
	}

	if globalOutputDir != "" && fileExists(filepath.Join(globalOutputDir, sccName)) {
		return true
	}

	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
