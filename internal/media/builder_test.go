package media

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/ffmpeg"
	"github.com/jmylchreest/clipd/internal/models"
)

// canonicalInfo is the standard probe result used across graph tests.
var canonicalInfo = ffmpeg.VideoInfo{
	Duration: 30,
	Width:    1920,
	Height:   1080,
	HasAudio: true,
}

type stubProber struct {
	duration float64
	err      error
}

func (s stubProber) MediaDuration(ctx context.Context, input string) (float64, error) {
	return s.duration, s.err
}

// argValue returns the value following the given flag.
func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildFastPathStreamCopies(t *testing.T) {
	inv, err := NewBuilder("input.mp4").Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	assert.Equal(t, []string{"-i", "input.mp4", "-c", "copy", "-f", "matroska"}, inv.Args)
	assert.Equal(t, "mp4", inv.OutputExt)
}

func TestBuildPlainTrim(t *testing.T) {
	b := NewBuilder("input.mp4").Trim(TrimPayload{StartSec: 0, EndSec: 10})
	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	graph := argValue(inv.Args, "-filter_complex")
	assert.Contains(t, graph, "trim=start=0:end=10")
	assert.Contains(t, graph, "setpts=PTS-STARTPTS")
	assert.Contains(t, graph, "[v_out]")
	assert.Contains(t, graph, "[a_out]")
	assert.Equal(t, "[v_out]", argValue(inv.Args, "-map"))
	assert.Equal(t, "matroska", argValue(inv.Args, "-f"))
}

func TestBuildStageOrdering(t *testing.T) {
	title := newTextSegment()
	title.Text = "Title"
	b := NewBuilder("input.mp4").
		Trim(TrimPayload{StartSec: 0, EndSec: 30}).
		AddText(title).
		SpeedControl(SpeedSegment{StartSec: 0, EndSec: -1, Speed: 1.5}).
		AddWatermark(WatermarkOverlay{Path: "logo.png", Position: PositionSafeBottom, Opacity: 0.7})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	graph := argValue(inv.Args, "-filter_complex")
	trimIdx := strings.Index(graph, "trim=start=0:end=30")
	speedIdx := strings.Index(graph, "setpts=PTS/1.5")
	textIdx := strings.Index(graph, "text='Title'")
	overlayIdx := strings.Index(graph, "overlay=(W-w)/2:H-h-80")
	require.NotEqual(t, -1, trimIdx)
	require.NotEqual(t, -1, speedIdx)
	require.NotEqual(t, -1, textIdx)
	require.NotEqual(t, -1, overlayIdx)
	assert.Less(t, trimIdx, speedIdx)
	assert.Less(t, speedIdx, textIdx)
	assert.Less(t, textIdx, overlayIdx)
	assert.Contains(t, graph, "atempo=1.5")

	var inputs []string
	for i, a := range inv.Args {
		if a == "-i" {
			inputs = append(inputs, inv.Args[i+1])
		}
	}
	assert.Equal(t, []string{"input.mp4", "logo.png"}, inputs)
}

func TestBuildAtempoChaining(t *testing.T) {
	b := NewBuilder("input.mp4").SpeedControl(SpeedSegment{EndSec: -1, Speed: 4.0})
	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "atempo=2.0,atempo=2.0")

	b = NewBuilder("input.mp4").SpeedControl(SpeedSegment{EndSec: -1, Speed: 0.25})
	inv, err = b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(argValue(inv.Args, "-filter_complex"), "atempo=0.5"))
}

func TestBuildBackgroundAudioOutrunsVideo(t *testing.T) {
	b := NewBuilder("input.mp4").
		WithProber(stubProber{duration: 60}).
		AddBackgroundAudio(AudioOverlay{Path: "music.mp3", MixVolume: 1.0})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	graph := argValue(inv.Args, "-filter_complex")
	assert.Contains(t, graph, "tpad=stop_mode=clone:stop_duration=30")
	assert.Contains(t, graph, "duration=longest")
}

func TestBuildOnlyColorCanvasGrowsWithAudio(t *testing.T) {
	b := NewBuilder("input.mp4").
		WithProber(stubProber{duration: 60}).
		AddBackgroundAudio(AudioOverlay{Path: "music.mp3", MixVolume: 1.0}).
		SetBackgroundColor(BackgroundColor{Color: "black", OnlyColor: true})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	graph := argValue(inv.Args, "-filter_complex")
	assert.Contains(t, graph, "color=c=black:s=1920x1080:d=60:r=30[bg]")
}

func TestBuildMuteSourceWithExplicitTrim(t *testing.T) {
	b := NewBuilder("input.mp4").
		Trim(TrimPayload{StartSec: 0, EndSec: 40}).
		AddBackgroundAudio(AudioOverlay{Path: "music.mp3", MixVolume: 0.5, MuteSource: true})

	inv, err := b.Build(context.Background(), ffmpeg.VideoInfo{Duration: 50, Width: 1920, Height: 1080, HasAudio: true})
	require.NoError(t, err)

	graph := argValue(inv.Args, "-filter_complex")
	assert.Contains(t, graph, "[1:a]atrim=start=0:end=40")
	assert.Contains(t, graph, "volume=0.5")
	assert.NotContains(t, graph, "amix")
	assert.NotContains(t, graph, "[a_trim]")
}

func TestBuildWatermarkShiftsAudioInputIndex(t *testing.T) {
	b := NewBuilder("input.mp4").
		AddWatermark(WatermarkOverlay{Path: "logo.png", Position: PositionSafeBottom, Opacity: 0.7}).
		AddBackgroundAudio(AudioOverlay{Path: "music.mp3", MixVolume: 1.0})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "[2:a]amix")

	b = NewBuilder("input.mp4").
		AddBackgroundAudio(AudioOverlay{Path: "music.mp3", MixVolume: 1.0})
	inv, err = b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "[1:a]amix")
}

func TestBuildLoopedAudioAddsStreamLoopFlags(t *testing.T) {
	b := NewBuilder("input.mp4").
		AddBackgroundAudio(AudioOverlay{Path: "music.mp3", MixVolume: 1.0, Loop: true})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	joined := strings.Join(inv.Args, " ")
	assert.Contains(t, joined, "-stream_loop -1 -i music.mp3")

	// The looped track never ends, so the mix must stop with the
	// source audio instead of running until the longest input.
	graph := argValue(inv.Args, "-filter_complex")
	assert.Contains(t, graph, "duration=first")
	assert.NotContains(t, graph, "duration=longest")

	b = NewBuilder("input.mp4").
		AddBackgroundAudio(AudioOverlay{Path: "music.mp3", MixVolume: 1.0, Loop: true, MuteSource: true})
	inv, err = b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "duration=first")
}

func TestBuildTextTimelineProjection(t *testing.T) {
	seg := newTextSegment()
	seg.Text = "Hello"
	seg.StartSec = 5
	seg.EndSec = 15
	b := NewBuilder("input.mp4").
		Trim(TrimPayload{StartSec: 10, EndSec: 20}).
		AddText(seg)

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "enable='between(t,0,5)'")
}

func TestBuildTextEscapesSingleQuotes(t *testing.T) {
	seg := newTextSegment()
	seg.Text = "it's live"
	b := NewBuilder("input.mp4").AddText(seg)

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "text='it''s live'")
}

func TestBuildCompressTargetBitrate(t *testing.T) {
	target := 10.0
	b := NewBuilder("input.mp4").Compress(CompressPayload{TargetSizeMB: &target, Preset: "medium"})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	// 10 MB over 30s: 10*8192/30 - 128 = 2602 kbps.
	assert.Equal(t, "2602k", argValue(inv.Args, "-b:v"))
	assert.Equal(t, "3903k", argValue(inv.Args, "-maxrate"))
	assert.Equal(t, "5204k", argValue(inv.Args, "-bufsize"))
	assert.NotContains(t, inv.Args, "-crf")
}

func TestBuildCompressBitrateFloor(t *testing.T) {
	target := 0.1
	b := NewBuilder("input.mp4").Compress(CompressPayload{TargetSizeMB: &target, Preset: "medium"})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Equal(t, "100k", argValue(inv.Args, "-b:v"))
}

func TestBuildTranscodeUsesCRF(t *testing.T) {
	b := NewBuilder("input.mp4").
		Trim(TrimPayload{StartSec: 0, EndSec: 10}).
		Transcode(TranscodeOptions{Codec: "libx265", Preset: "fast", CRF: 28, AudioCodec: "aac", AudioBitrate: "96k"})

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Equal(t, "libx265", argValue(inv.Args, "-c:v"))
	assert.Equal(t, "28", argValue(inv.Args, "-crf"))
	assert.Equal(t, "96k", argValue(inv.Args, "-b:a"))
}

func TestBuildExtractAudioPlain(t *testing.T) {
	b := NewBuilder("input.mp4").ExtractAudio()
	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	assert.Equal(t, []string{"-i", "input.mp4", "-vn", "-c:a", "libmp3lame", "-b:a", "192k", "-f", "mp3"}, inv.Args)
	assert.Equal(t, "mp3", inv.OutputExt)
}

func TestBuildExtractAudioTrimOnly(t *testing.T) {
	b := NewBuilder("input.mp4").
		SetAudioFormat(AudioFormatAAC, "128k").
		Trim(TrimPayload{StartSec: 5, EndSec: 15}).
		ExtractAudio()

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Equal(t, "5", argValue(inv.Args, "-ss"))
	assert.Equal(t, "10", argValue(inv.Args, "-t"))
	assert.Equal(t, "aac", argValue(inv.Args, "-c:a"))
	assert.Equal(t, "ipod", argValue(inv.Args, "-f"))
	assert.Equal(t, "m4a", inv.OutputExt)
}

func TestBuildExtractAudioTrimAndSpeed(t *testing.T) {
	b := NewBuilder("input.mp4").
		Trim(TrimPayload{StartSec: 0, EndSec: 20}).
		SpeedControl(SpeedSegment{EndSec: -1, Speed: 2.0}).
		ExtractAudio()

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	graph := argValue(inv.Args, "-filter_complex")
	assert.Contains(t, graph, "atrim=start=0:end=20")
	assert.Contains(t, graph, "atempo=2.0")
	assert.Contains(t, graph, "[a_out]")
	assert.Equal(t, "[a_out]", argValue(inv.Args, "-map"))
	assert.NotContains(t, graph, "[v_out]")
}

func TestBuildGif(t *testing.T) {
	b := NewBuilder("input.mp4").CreateGif(GifOptions{StartTime: "00:00:05", Duration: 3, FPS: 15, Scale: 320})
	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)

	assert.Equal(t, "00:00:05", argValue(inv.Args, "-ss"))
	assert.Equal(t, "3", argValue(inv.Args, "-t"))
	vf := argValue(inv.Args, "-vf")
	assert.Contains(t, vf, "fps=15,scale=320:-1:flags=lanczos")
	assert.Contains(t, vf, "palettegen")
	assert.Contains(t, vf, "paletteuse")
	assert.Equal(t, "gif", inv.OutputExt)
}

func TestBuildConcatManifest(t *testing.T) {
	inv, err := BuildConcat(ConcatPayload{InputPaths: []string{"a.mp4", "it's.mp4"}})
	require.NoError(t, err)

	assert.Equal(t, "file 'a.mp4'\nfile 'it'\\''s.mp4'\n", string(inv.Stdin))
	assert.Equal(t, "concat", argValue(inv.Args, "-f"))
	assert.Contains(t, inv.Args, "pipe:0")
	assert.Contains(t, inv.Args, "+frag_keyframe+empty_moov")
}

func TestBuildConcatRejectsSingleInput(t *testing.T) {
	_, err := BuildConcat(ConcatPayload{InputPaths: []string{"a.mp4"}})
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestBuildKaraokeRendersSubtitleFile(t *testing.T) {
	k := newKaraokeText()
	k.Sentence = "hello world"
	k.StartSec = 0
	k.EndSec = 4
	b := NewBuilder("input.mp4").WithWorkDir(t.TempDir()).AddKaraoke(k)
	defer b.Cleanup()

	inv, err := b.Build(context.Background(), canonicalInfo)
	require.NoError(t, err)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "subtitles='")
	require.Len(t, b.scratchDirs, 1)
}

func TestBuildPositiveSpeedRequired(t *testing.T) {
	b := NewBuilder("input.mp4").SpeedControl(SpeedSegment{EndSec: -1, Speed: -1})
	_, err := b.Build(context.Background(), canonicalInfo)
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}
