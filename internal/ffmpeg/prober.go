package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds how long a probe may take.
const DefaultProbeTimeout = 60 * time.Second

// VideoInfo is the metadata the pipeline needs about a media input.
// Probe failures are carried in Err rather than returned; callers
// decide whether a failed probe is fatal.
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
	Bitrate  int64   `json:"bitrate"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
	FPS      float64 `json:"fps"`
	HasAudio bool    `json:"has_audio"`
	Err      error   `json:"-"`
}

// Prober queries the engine's metadata binary.
type Prober struct {
	binaryPath string
	timeout    time.Duration
}

// NewProber creates a Prober for the given ffprobe binary.
func NewProber(binaryPath string) *Prober {
	return &Prober{binaryPath: binaryPath, timeout: DefaultProbeTimeout}
}

// WithTimeout returns the prober with a custom probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe queries metadata for the given input. It never returns an
// error; failures land in VideoInfo.Err.
func (p *Prober) Probe(ctx context.Context, input string) VideoInfo {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return VideoInfo{Err: fmt.Errorf("probe timed out after %s", p.timeout)}
		}
		return VideoInfo{Err: fmt.Errorf("running probe: %w", err)}
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return VideoInfo{Err: fmt.Errorf("parsing probe output: %w", err)}
	}

	info := VideoInfo{}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if info.Codec == "" {
				info.Codec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
				fr := s.RFrameRate
				if fr == "" || fr == "0/0" {
					fr = s.AvgFrameRate
				}
				info.FPS = parseFrameRate(fr)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if info.Codec == "" {
		return VideoInfo{Err: errors.New("input has no video stream")}
	}

	dur, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return VideoInfo{Err: fmt.Errorf("parsing duration %q: %w", parsed.Format.Duration, err)}
	}
	if dur <= 0 {
		return VideoInfo{Err: fmt.Errorf("non-positive duration %v", dur)}
	}
	info.Duration = dur

	if parsed.Format.Size != "" {
		info.Size, _ = strconv.ParseInt(parsed.Format.Size, 10, 64)
	}
	if parsed.Format.BitRate != "" {
		info.Bitrate, _ = strconv.ParseInt(parsed.Format.BitRate, 10, 64)
	}

	return info
}

// MediaDuration returns the container duration of any media input,
// including audio-only files the full Probe rejects.
func (p *Prober) MediaDuration(ctx context.Context, input string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		input,
	}
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("probe timed out after %s", p.timeout)
		}
		return 0, fmt.Errorf("running probe: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parsing probe output: %w", err)
	}
	dur, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", parsed.Format.Duration, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("non-positive duration %v", dur)
	}
	return dur, nil
}

// parseFrameRate parses a "num/den" frame-rate string without
// evaluating arbitrary expressions.
func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
