package media

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jmylchreest/clipd/internal/ffmpeg"
	"github.com/jmylchreest/clipd/internal/models"
)

// Mode selects what the compiled invocation produces.
type Mode string

// Output modes.
const (
	ModeExport       Mode = "export"
	ModeExtractAudio Mode = "extract_audio"
	ModeGif          Mode = "gif"
)

// intermediateContainer is the streamable container the pipeline
// always writes; delivery containers are produced by the Transmuxer.
const intermediateContainer = "matroska"

// DurationProber supplies media durations, used to size the canvas
// when background audio outruns the video.
type DurationProber interface {
	MediaDuration(ctx context.Context, input string) (float64, error)
}

// Invocation is one compiled engine command.
type Invocation struct {
	// Args is the argument vector excluding the binary name.
	Args []string

	// Stdin carries the concat manifest when present.
	Stdin []byte

	// TotalDuration overrides the probed duration for progress scaling.
	// Zero means probe the source.
	TotalDuration float64

	// Transmux, when set, requests a delivery-container pass over the
	// gathered intermediate bytes.
	Transmux *ConvertToPlatformOptions

	// OutputExt is the artifact filename extension.
	OutputExt string

	// Output format metadata recorded on the completed job.
	VideoFormat  string
	AudioFormat  string
	AudioBitrate string
}

// Builder accumulates typed operations and compiles them into a single
// engine invocation. State is per job; builders are not reused.
type Builder struct {
	input        string
	mode         Mode
	audioFormat  AudioFormat
	audioBitrate string

	trim            *TrimPayload
	watermark       *WatermarkOverlay
	textSegments    []TextSegment
	karaoke         []KaraokeText
	sequences       []TextSequence
	speedSegments   []SpeedSegment
	backgroundAudio *AudioOverlay
	backgroundColor *BackgroundColor
	transcode       *TranscodeOptions
	gif             *GifOptions
	platform        *ConvertToPlatformOptions
	concat          *ConcatPayload

	prober  DurationProber
	workDir string

	scratchDirs []string
}

// NewBuilder creates a builder for the given source input.
func NewBuilder(input string) *Builder {
	return &Builder{
		input:        input,
		mode:         ModeExport,
		audioFormat:  AudioFormatMP3,
		audioBitrate: "192k",
	}
}

// WithProber sets the duration prober used for background-audio sizing.
func (b *Builder) WithProber(p DurationProber) *Builder {
	b.prober = p
	return b
}

// WithWorkDir sets the scratch root for subtitle rendering. Empty
// means the system temp directory.
func (b *Builder) WithWorkDir(dir string) *Builder {
	b.workDir = dir
	return b
}

// Mode returns the current output mode.
func (b *Builder) Mode() Mode {
	return b.mode
}

// Trim limits the output to a time range of the source.
func (b *Builder) Trim(p TrimPayload) *Builder {
	b.trim = &p
	return b
}

// AddText appends text overlay segments.
func (b *Builder) AddText(segments ...TextSegment) *Builder {
	b.textSegments = append(b.textSegments, segments...)
	return b
}

// AddKaraoke appends a karaoke sentence.
func (b *Builder) AddKaraoke(k KaraokeText) *Builder {
	b.karaoke = append(b.karaoke, k)
	return b
}

// AddTextSequence appends a timed text sequence.
func (b *Builder) AddTextSequence(seq TextSequence) *Builder {
	b.sequences = append(b.sequences, seq)
	return b
}

// SpeedControl appends speed segments.
func (b *Builder) SpeedControl(segments ...SpeedSegment) *Builder {
	b.speedSegments = append(b.speedSegments, segments...)
	return b
}

// AddWatermark sets the watermark overlay.
func (b *Builder) AddWatermark(w WatermarkOverlay) *Builder {
	b.watermark = &w
	return b
}

// AddBackgroundAudio sets the background audio overlay.
func (b *Builder) AddBackgroundAudio(a AudioOverlay) *Builder {
	b.backgroundAudio = &a
	return b
}

// SetBackgroundColor sets the solid background.
func (b *Builder) SetBackgroundColor(c BackgroundColor) *Builder {
	b.backgroundColor = &c
	return b
}

// Transcode sets encoding options for export.
func (b *Builder) Transcode(opts TranscodeOptions) *Builder {
	b.transcode = &opts
	return b
}

// Compress sets size-targeted encoding options.
func (b *Builder) Compress(p CompressPayload) *Builder {
	b.transcode = &TranscodeOptions{
		Codec:        "libx264",
		Preset:       p.Preset,
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
		TargetSizeMB: p.TargetSizeMB,
		Scale:        p.Scale,
	}
	return b
}

// SetAudioFormat overrides the audio extraction format and bitrate.
func (b *Builder) SetAudioFormat(format AudioFormat, bitrate string) *Builder {
	b.audioFormat = format
	if bitrate != "" {
		b.audioBitrate = bitrate
	}
	return b
}

// ExtractAudio switches the output mode to audio extraction.
func (b *Builder) ExtractAudio() *Builder {
	b.mode = ModeExtractAudio
	return b
}

// CreateGif switches the output mode to GIF animation.
func (b *Builder) CreateGif(opts GifOptions) *Builder {
	b.gif = &opts
	b.mode = ModeGif
	return b
}

// ConvertToPlatform requests a delivery transmux after export.
func (b *Builder) ConvertToPlatform(opts ConvertToPlatformOptions) *Builder {
	b.platform = &opts
	return b
}

// ConcatVideos sets the static concat payload. Concat is a standalone
// utility and ignores the other builder state.
func (b *Builder) ConcatVideos(p ConcatPayload) *Builder {
	b.concat = &p
	return b
}

// Cleanup removes scratch directories created while compiling. Safe to
// call multiple times.
func (b *Builder) Cleanup() {
	for _, dir := range b.scratchDirs {
		_ = os.RemoveAll(dir)
	}
	b.scratchDirs = nil
}

// Build compiles the accumulated state against the probed source info
// into one engine invocation.
func (b *Builder) Build(ctx context.Context, info ffmpeg.VideoInfo) (*Invocation, error) {
	if b.concat != nil {
		return BuildConcat(*b.concat)
	}
	switch b.mode {
	case ModeExtractAudio:
		return b.buildExtractAudio(info)
	case ModeGif:
		return b.buildGif()
	default:
		return b.buildExport(ctx, info)
	}
}

func (b *Builder) buildExport(ctx context.Context, info ffmpeg.VideoInfo) (*Invocation, error) {
	opts := b.transcode
	if opts == nil {
		def := newTranscodeOptions()
		opts = &def
	}

	hasFilters := b.trim != nil ||
		len(b.speedSegments) > 0 ||
		len(b.textSegments) > 0 ||
		len(b.karaoke) > 0 ||
		len(b.sequences) > 0 ||
		b.watermark != nil ||
		b.backgroundAudio != nil ||
		b.backgroundColor != nil ||
		opts.TargetSizeMB != nil ||
		opts.Scale != ""

	inv := &Invocation{
		Transmux:    b.platform,
		OutputExt:   "mp4",
		VideoFormat: intermediateContainer,
	}

	if !hasFilters {
		inv.Args = []string{
			"-i", b.input,
			"-c", "copy",
			"-f", intermediateContainer,
		}
		return inv, nil
	}

	extraInputs, filterComplex, err := b.buildFilterComplex(ctx, info, opts.Scale)
	if err != nil {
		return nil, err
	}

	args := []string{"-i", b.input}
	for _, extra := range extraInputs {
		args = append(args, extra.flags...)
		args = append(args, "-i", extra.path)
	}
	args = append(args,
		"-filter_complex", filterComplex,
		"-map", "[v_out]",
		"-map", "[a_out]",
		"-c:v", opts.Codec,
		"-preset", opts.Preset,
		"-c:a", opts.AudioCodec,
		"-f", intermediateContainer,
	)

	if opts.TargetSizeMB != nil && *opts.TargetSizeMB > 0 {
		duration := info.Duration
		if duration <= 0 {
			duration = 1.0
		}
		bitrate := int(*opts.TargetSizeMB*8192/duration) - 128
		if bitrate < 100 {
			bitrate = 100
		}
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", bitrate),
			"-maxrate", fmt.Sprintf("%dk", int(float64(bitrate)*1.5)),
			"-bufsize", fmt.Sprintf("%dk", bitrate*2),
		)
	} else {
		args = append(args, "-crf", strconv.Itoa(opts.CRF))
	}
	if opts.AudioBitrate != "" {
		args = append(args, "-b:a", opts.AudioBitrate)
	}

	inv.Args = args
	return inv, nil
}

func (b *Builder) buildExtractAudio(info ffmpeg.VideoInfo) (*Invocation, error) {
	codec := b.audioFormat.Codec()
	outFormat := b.audioFormat.ContainerName()
	duration := info.Duration

	trimEnd := duration
	var trimStart float64
	if b.trim != nil {
		trimStart = b.trim.StartSec
		if b.trim.Duration != nil {
			trimEnd = trimStart + *b.trim.Duration
		} else if b.trim.EndSec >= 0 {
			trimEnd = b.trim.EndSec
		}
	}
	durationSec := duration
	if b.trim != nil {
		durationSec = trimEnd - trimStart
	}

	inv := &Invocation{
		OutputExt:    b.audioFormat.Ext(),
		AudioFormat:  string(b.audioFormat),
		AudioBitrate: b.audioBitrate,
	}

	// No trim and no speed: plain stream extraction.
	if b.trim == nil && len(b.speedSegments) == 0 {
		inv.Args = []string{
			"-i", b.input,
			"-vn",
			"-c:a", codec,
			"-b:a", b.audioBitrate,
			"-f", outFormat,
		}
		return inv, nil
	}

	// Trim only: seek flags, no filter graph.
	if len(b.speedSegments) == 0 {
		args := []string{"-i", b.input, "-vn", "-c:a", codec}
		if trimStart > 0 {
			args = append(args, "-ss", fnum(trimStart))
		}
		args = append(args, "-t", fnum(durationSec))
		args = append(args, "-b:a", b.audioBitrate, "-f", outFormat)
		inv.Args = args
		return inv, nil
	}

	// Speed, with or without trim: audio filter graph.
	audioIn := "[0:a]"
	var parts []string
	if b.trim != nil {
		parts = append(parts, fmt.Sprintf(
			"[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a_trim]",
			fnum(trimStart), fnum(trimEnd)))
		audioIn = "[a_trim]"
	}
	switch {
	case len(b.speedSegments) == 1 && b.speedSegments[0].Speed != 1.0:
		chain, err := atempoChain(b.speedSegments[0].Speed)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf("%s%s,asetpts=PTS-STARTPTS[a_out]", audioIn, chain))
	case len(b.speedSegments) > 1:
		n := len(b.speedSegments)
		var filters []string
		labels := ""
		for i, seg := range b.speedSegments {
			segEnd := resolveEnd(seg.EndSec, durationSec)
			segStart := seg.StartSec
			if b.trim != nil {
				segStart = max(0, seg.StartSec-trimStart)
				segEnd = min(durationSec, segEnd-trimStart)
			}
			chain, err := atempoChain(seg.Speed)
			if err != nil {
				return nil, err
			}
			filters = append(filters, fmt.Sprintf(
				"%satrim=start=%s:end=%s,%s,asetpts=PTS-STARTPTS[a_s%d]",
				audioIn, fnum(segStart), fnum(segEnd), chain, i))
			labels += fmt.Sprintf("[a_s%d]", i)
		}
		parts = append(parts, filters...)
		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[a_out]", labels, n))
	default:
		parts = append(parts, audioIn+"anull[a_out]")
	}

	inv.Args = []string{
		"-i", b.input,
		"-filter_complex", joinStages(parts),
		"-map", "[a_out]",
		"-c:a", codec,
		"-b:a", b.audioBitrate,
		"-f", outFormat,
	}
	return inv, nil
}

func (b *Builder) buildGif() (*Invocation, error) {
	opts := b.gif
	if opts == nil {
		def := newGifOptions()
		opts = &def
	}
	vf := fmt.Sprintf(
		"fps=%d,scale=%d:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		opts.FPS, opts.Scale)
	return &Invocation{
		Args: []string{
			"-ss", opts.StartTime,
			"-t", fnum(opts.Duration),
			"-i", b.input,
			"-vf", vf,
			"-loop", "0",
			"-f", "gif",
		},
		OutputExt:   "gif",
		VideoFormat: "gif",
	}, nil
}

// BuildConcat compiles the static concat utility: a manifest fed over
// stdin to the concat demuxer with stream copy. Requires at least two
// inputs.
func BuildConcat(p ConcatPayload) (*Invocation, error) {
	if len(p.InputPaths) < 2 {
		return nil, fmt.Errorf("%w: concat requires at least 2 input paths", models.ErrInvalidRequest)
	}
	return &Invocation{
		Args: []string{
			"-f", "concat",
			"-safe", "0",
			"-i", "pipe:0",
			"-c", "copy",
			"-f", "mp4",
			"-movflags", "+frag_keyframe+empty_moov",
		},
		Stdin:       buildConcatManifest(p.InputPaths),
		OutputExt:   "mp4",
		VideoFormat: "mp4",
	}, nil
}

// buildConcatManifest builds the concat demuxer manifest, escaping
// single quotes in paths.
func buildConcatManifest(paths []string) []byte {
	var out []byte
	for _, p := range paths {
		escaped := ""
		for _, r := range p {
			if r == '\'' {
				escaped += `'\''`
			} else {
				escaped += string(r)
			}
		}
		out = append(out, []byte("file '"+escaped+"'\n")...)
	}
	return out
}
