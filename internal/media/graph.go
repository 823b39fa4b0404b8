package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/clipd/internal/ffmpeg"
)

// extraInput is one additional -i entry appended after the main source.
type extraInput struct {
	path  string
	flags []string
}

func joinStages(parts []string) string {
	return strings.Join(parts, ";")
}

// buildFilterComplex compiles the accumulated builder state into the
// extra input list and the filter_complex string. Labels are emitted
// deterministically so callers can assert on the graph.
func (b *Builder) buildFilterComplex(ctx context.Context, info ffmpeg.VideoInfo, scale string) ([]extraInput, string, error) {
	var extras []extraInput
	videoIn := "[0:v]"
	audioIn := "[0:a]"

	width := info.Width
	if width == 0 {
		width = 1920
	}
	height := info.Height
	if height == 0 {
		height = 1080
	}

	duration := info.Duration
	trimExplicit := b.trim != nil
	var trimStart float64
	trimEnd := duration
	if trimExplicit {
		trimStart = b.trim.StartSec
		if b.trim.Duration != nil {
			trimEnd = trimStart + *b.trim.Duration
		} else if b.trim.EndSec >= 0 {
			trimEnd = b.trim.EndSec
		}
	}
	effectiveDuration := duration
	if trimExplicit {
		effectiveDuration = trimEnd - trimStart
	}

	// Mute-source with an explicit trim replaces the source audio with
	// the background track entirely, so no source-audio filters are
	// emitted at all.
	muteSourceAudio := b.backgroundAudio != nil && b.backgroundAudio.MuteSource && trimExplicit

	// When background audio outruns the video and no trim bounds the
	// output, the canvas grows to the audio's length and the video is
	// frozen on its last frame for the remainder.
	var tpadDuration float64
	if b.backgroundAudio != nil && !trimExplicit && !b.backgroundAudio.Loop && b.prober != nil {
		audioDur, err := b.prober.MediaDuration(ctx, b.backgroundAudio.Path)
		if err != nil {
			return nil, "", fmt.Errorf("probing background audio: %w", err)
		}
		if audioDur > effectiveDuration {
			tpadDuration = audioDur - effectiveDuration
			effectiveDuration = audioDur
		}
	}

	var parts []string

	// Stage 1: canvas and trim.
	if b.backgroundColor != nil && b.backgroundColor.OnlyColor {
		parts = append(parts, fmt.Sprintf(
			"color=c=%s:s=%dx%d:d=%s:r=30[bg]",
			b.backgroundColor.Color, width, height, fnum(effectiveDuration)))
		if !muteSourceAudio {
			parts = append(parts, fmt.Sprintf(
				"[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a_trim]",
				fnum(trimStart), fnum(trimEnd)))
			audioIn = "[a_trim]"
		}
		videoIn = "[bg]"
	} else {
		if b.backgroundColor != nil {
			parts = append(parts, fmt.Sprintf(
				"color=c=%s:s=%dx%d:d=%s:r=30[bg]",
				b.backgroundColor.Color, width, height, fnum(effectiveDuration)))
		}
		if trimExplicit {
			videoTrim := fmt.Sprintf(
				"[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS[v_trim]",
				fnum(trimStart), fnum(trimEnd))
			if muteSourceAudio {
				parts = append(parts, videoTrim)
			} else {
				parts = append(parts, videoTrim+fmt.Sprintf(
					";[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a_trim]",
					fnum(trimStart), fnum(trimEnd)))
				audioIn = "[a_trim]"
			}
			videoIn = "[v_trim]"
		}
	}

	// Stage 2: speed, remapped to the trimmed timeline.
	speedSegments := make([]SpeedSegment, 0, len(b.speedSegments))
	for _, s := range b.speedSegments {
		end := resolveEnd(s.EndSec, duration)
		start := s.StartSec
		if trimExplicit {
			start = max(0, s.StartSec-trimStart)
			end = min(trimEnd-trimStart, end-trimStart)
		}
		speedSegments = append(speedSegments, SpeedSegment{StartSec: start, EndSec: end, Speed: s.Speed})
	}
	switch {
	case len(speedSegments) == 1 && speedSegments[0].Speed != 1.0:
		seg := speedSegments[0]
		chain, err := atempoChain(seg.Speed)
		if err != nil {
			return nil, "", err
		}
		if muteSourceAudio {
			parts = append(parts, fmt.Sprintf("%ssetpts=PTS/%s[v_spd]", videoIn, fspeed(seg.Speed)))
		} else {
			parts = append(parts, fmt.Sprintf(
				"%ssetpts=PTS/%s[v_spd];%s%s,asetpts=PTS-STARTPTS[a_spd]",
				videoIn, fspeed(seg.Speed), audioIn, chain))
			audioIn = "[a_spd]"
		}
		videoIn = "[v_spd]"
	case len(speedSegments) > 1:
		n := len(speedSegments)
		var vFilters, aFilters []string
		vLabels, aLabels := "", ""
		for i, seg := range speedSegments {
			chain, err := atempoChain(seg.Speed)
			if err != nil {
				return nil, "", err
			}
			vFilters = append(vFilters, fmt.Sprintf(
				"%strim=start=%s:end=%s,setpts=PTS/%s,setpts=PTS-STARTPTS[v_s%d]",
				videoIn, fnum(seg.StartSec), fnum(seg.EndSec), fspeed(seg.Speed), i))
			aFilters = append(aFilters, fmt.Sprintf(
				"%satrim=start=%s:end=%s,%s,asetpts=PTS-STARTPTS[a_s%d]",
				audioIn, fnum(seg.StartSec), fnum(seg.EndSec), chain, i))
			vLabels += fmt.Sprintf("[v_s%d]", i)
			aLabels += fmt.Sprintf("[a_s%d]", i)
		}
		if muteSourceAudio {
			parts = append(parts, strings.Join(vFilters, ";"))
			parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[v_spd]", vLabels, n))
		} else {
			parts = append(parts, strings.Join(vFilters, ";")+";"+strings.Join(aFilters, ";"))
			parts = append(parts, fmt.Sprintf(
				"%sconcat=n=%d:v=1:a=0[v_spd];%sconcat=n=%d:v=0:a=1[a_spd]",
				vLabels, n, aLabels, n))
			audioIn = "[a_spd]"
		}
		videoIn = "[v_spd]"
	}

	// Stage 3: text overlays. Drawtext clauses chain with commas inside
	// one filter; colons only separate options.
	if len(b.textSegments) > 0 {
		clauses := make([]string, 0, len(b.textSegments))
		for _, seg := range b.textSegments {
			clauses = append(clauses, "drawtext="+drawtextOpts(seg, duration, trimExplicit, trimStart, effectiveDuration))
		}
		parts = append(parts, videoIn+strings.Join(clauses, ",")+"[v_txt]")
		videoIn = "[v_txt]"
	}

	// Stage 4: karaoke and timed-text sequences, rendered as subtitle
	// files referenced from the graph.
	subtitlePaths, err := b.renderSubtitles(duration, trimExplicit, trimStart, effectiveDuration, width, height)
	if err != nil {
		return nil, "", err
	}
	for i, path := range subtitlePaths {
		label := fmt.Sprintf("[v_sub%d]", i)
		parts = append(parts, fmt.Sprintf("%ssubtitles='%s'%s", videoIn, escapeFilterPath(path), label))
		videoIn = label
	}

	// Stage 5: watermark image overlay.
	if b.watermark != nil {
		extras = append(extras, extraInput{path: b.watermark.Path})
		parts = append(parts, fmt.Sprintf(
			"[1]format=rgba,colorchannelmixer=aa=%s[wm];%s[wm]overlay=%s[v_wm]",
			fnum(b.watermark.Opacity), videoIn, b.watermark.Position.Expr()))
		videoIn = "[v_wm]"
	}

	// Stage 6: background audio. Input index depends on whether the
	// watermark image occupies slot 1.
	if b.backgroundAudio != nil {
		bg := b.backgroundAudio
		in := extraInput{path: bg.Path}
		if bg.Loop {
			in.flags = []string{"-stream_loop", "-1"}
		}
		extras = append(extras, in)
		idx := 1
		if b.watermark != nil {
			idx = 2
		}
		vol := fnum(bg.MixVolume)
		// A looped track is unbounded, so without an explicit trim the
		// mix must end with the source audio or the encode never
		// finishes.
		mixDur := "longest"
		if bg.Loop {
			mixDur = "first"
		}
		switch {
		case bg.MuteSource && trimExplicit:
			parts = append(parts, fmt.Sprintf(
				"[%d:a]atrim=start=0:end=%s,asetpts=PTS-STARTPTS,volume=%s[a_bg]",
				idx, fnum(effectiveDuration), vol))
			audioIn = "[a_bg]"
		case bg.MuteSource:
			parts = append(parts, fmt.Sprintf(
				"%s[%d:a]amix=inputs=2:weights='0 %s':duration=%s[a_mix]",
				audioIn, idx, vol, mixDur))
			audioIn = "[a_mix]"
		case trimExplicit:
			parts = append(parts, fmt.Sprintf(
				"%s[%d:a]amix=inputs=2:weights='1 %s':duration=longest,atrim=start=0:end=%s,asetpts=PTS-STARTPTS[a_mix]",
				audioIn, idx, vol, fnum(effectiveDuration)))
			audioIn = "[a_mix]"
		default:
			parts = append(parts, fmt.Sprintf(
				"%s[%d:a]amix=inputs=2:weights='1 %s':duration=%s[a_mix]",
				audioIn, idx, vol, mixDur))
			audioIn = "[a_mix]"
		}
		if tpadDuration > 0 {
			parts = append(parts, fmt.Sprintf(
				"%stpad=stop_mode=clone:stop_duration=%s[v_pad]",
				videoIn, fnum(tpadDuration)))
			videoIn = "[v_pad]"
		}
	}

	// Stage 7: composite onto the color canvas.
	if b.backgroundColor != nil && !b.backgroundColor.OnlyColor {
		parts = append(parts, fmt.Sprintf("[bg]%soverlay=(W-w)/2:(H-h)/2[v_bg]", videoIn))
		videoIn = "[v_bg]"
	}

	// Stage 8: scale.
	if scale != "" {
		parts = append(parts, fmt.Sprintf("%sscale=%s[v_scaled]", videoIn, scale))
		videoIn = "[v_scaled]"
	}

	// Stage 9: pass-through to the named outputs the mapping step
	// requires.
	parts = append(parts, fmt.Sprintf("%ssetpts=PTS[v_out];%sanull[a_out]", videoIn, audioIn))

	return extras, joinStages(parts), nil
}

// drawtextOpts builds the option string for one text segment. With an
// explicit trim the segment times are projected onto the output
// timeline and clamped to it.
func drawtextOpts(seg TextSegment, duration float64, trimExplicit bool, trimStart, effectiveDuration float64) string {
	var startOut, endOut float64
	if trimExplicit {
		startOut = max(0, seg.StartSec-trimStart)
		endOut = min(effectiveDuration, resolveEnd(seg.EndSec, duration)-trimStart)
	} else {
		startOut = seg.StartSec
		endOut = resolveEnd(seg.EndSec, duration)
	}
	opts := []string{
		fmt.Sprintf("enable='between(t,%s,%s)'", fnum(startOut), fnum(endOut)),
		fmt.Sprintf("text='%s'", escapeText(seg.Text)),
		fmt.Sprintf("fontsize=%d", seg.Fontsize),
		"x=" + seg.X,
		"y=" + seg.Y,
	}
	if seg.Fontfile != "" {
		opts = append(opts, fmt.Sprintf("fontfile='%s'", seg.Fontfile))
	}
	if seg.Fontcolor != "" {
		opts = append(opts, "fontcolor="+seg.Fontcolor)
	}
	if seg.Background {
		opts = append(opts, "box=1")
	}
	if seg.Boxcolor != "" {
		opts = append(opts, "boxcolor="+seg.Boxcolor)
	}
	if seg.Boxborderw != nil {
		opts = append(opts, fmt.Sprintf("boxborderw=%d", *seg.Boxborderw))
	}
	return strings.Join(opts, ":")
}
