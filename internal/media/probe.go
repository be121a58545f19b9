// Copyright (c) 2026 City Access Media

// Package media wraps the opaque media tool (ffprobe/ffmpeg) used to
// inspect and remux recorded video, as two subprocess invocations with a
// fixed command-line contract: a probe that reports codec metadata and
// duration, and a remux that embeds a caption track into a target file.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultProbeTimeout = 30 * time.Second

// VideoInfo describes a video elementary stream.
type VideoInfo struct {
	CodecName  string
	PixFmt     string
	BitDepth   int
	Duration   float64
	Width      int
	Height     int
	Interlaced bool
	FPS        float64
}

// AudioInfo describes the audio elementary streams.
type AudioInfo struct {
	CodecName  string
	TrackCount int
}

// StreamInfo is the decoded result of a probe invocation.
type StreamInfo struct {
	Video       VideoInfo
	Audio       AudioInfo
	Container   string
	hasSubtitle bool
}

// HasSubtitleStream reports whether the probed container carries at least
// one subtitle stream, used by the quality scorer's criterion (iv).
func (s *StreamInfo) HasSubtitleStream() bool { return s.hasSubtitle }

// Prober runs the opaque media tool's probe subcommand.
type Prober struct {
	BinaryPath string
	Timeout    time.Duration
}

// NewProber builds a Prober. An empty binaryPath resolves "ffprobe" from PATH.
func NewProber(binaryPath string) *Prober {
	return &Prober{BinaryPath: strings.TrimSpace(binaryPath), Timeout: defaultProbeTimeout}
}

// Probe inspects path and returns its stream metadata. The probe must
// complete within 30s and report a non-empty video codec name or the
// pipeline treats the media as invalid.
func (p *Prober) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := p.BinaryPath
	if bin == "" {
		bin = "ffprobe"
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()

	var data probeData
	jsonErr := json.Unmarshal(out, &data)

	hasPlayableStream := false
	if jsonErr == nil {
		for _, s := range data.Streams {
			if (s.CodecType == "video" || s.CodecType == "audio") && s.CodecName != "" {
				hasPlayableStream = true
				break
			}
		}
	}

	if jsonErr != nil || !hasPlayableStream {
		if err != nil {
			return nil, fmt.Errorf("probe failed: %w (stderr: %s)", err, truncate(stderr.String()))
		}
		if jsonErr != nil {
			return nil, fmt.Errorf("probe output decode failed: %w", jsonErr)
		}
		return nil, fmt.Errorf("probe returned no playable streams")
	}

	return decodeProbeData(data), nil
}

func decodeProbeData(data probeData) *StreamInfo {
	info := &StreamInfo{}
	subtitlePresent := false

	for _, s := range data.Streams {
		switch s.CodecType {
		case "video":
			info.Video.CodecName = s.CodecName
			info.Video.PixFmt = s.PixFmt
			if s.BitsPerRawSample != "" {
				if v, err := strconv.Atoi(s.BitsPerRawSample); err == nil {
					info.Video.BitDepth = v
				}
			}
			if info.Video.BitDepth == 0 {
				if s.PixFmt == "yuv420p10le" {
					info.Video.BitDepth = 10
				} else {
					info.Video.BitDepth = 8
				}
			}
			if s.Duration != "" {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					info.Video.Duration = d
				}
			}
			info.Video.Width = s.Width
			info.Video.Height = s.Height
			if s.FieldOrder != "" && s.FieldOrder != "progressive" {
				info.Video.Interlaced = true
			}
			if s.AvgFrameRate != "" && s.AvgFrameRate != "0/0" {
				parts := strings.Split(s.AvgFrameRate, "/")
				if len(parts) == 2 {
					num, _ := strconv.ParseFloat(parts[0], 64)
					den, _ := strconv.ParseFloat(parts[1], 64)
					if den > 0 {
						info.Video.FPS = num / den
					}
				}
			}
		case "audio":
			info.Audio.CodecName = s.CodecName
			info.Audio.TrackCount++
		case "subtitle":
			subtitlePresent = true
		}
	}

	if info.Video.Duration == 0 && data.Format.Duration != "" {
		if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
			info.Video.Duration = d
		}
	}

	info.Container = canonicalContainer(data.Format.FormatName)
	info.hasSubtitle = subtitlePresent
	return info
}

func canonicalContainer(formatName string) string {
	canonical := ""
	for _, p := range strings.Split(formatName, ",") {
		t := strings.TrimSpace(p)
		if t == "mpegts" {
			return "ts"
		}
		if canonical == "" && t != "" {
			canonical = t
		}
	}
	return canonical
}

func truncate(s string) string {
	const max = 4096
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

type probeData struct {
	Streams []struct {
		CodecType        string `json:"codec_type"`
		CodecName        string `json:"codec_name"`
		PixFmt           string `json:"pix_fmt,omitempty"`
		BitsPerRawSample string `json:"bits_per_raw_sample,omitempty"`
		Duration         string `json:"duration,omitempty"`
		Width            int    `json:"width,omitempty"`
		Height           int    `json:"height,omitempty"`
		FieldOrder       string `json:"field_order,omitempty"`
		AvgFrameRate     string `json:"avg_frame_rate,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}
