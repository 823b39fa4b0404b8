// Package media compiles declarative edit recipes into engine
// invocations: typed operation payloads, a filter-graph builder,
// subtitle rendering, and the delivery transmuxer.
package media

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// validate is the shared payload validator.
var validate = validator.New()

// WatermarkPosition selects a fixed overlay position expression.
type WatermarkPosition string

// Watermark positions.
const (
	PositionTopLeft     WatermarkPosition = "TOP_LEFT"
	PositionTopCenter   WatermarkPosition = "TOP_CENTER"
	PositionTopRight    WatermarkPosition = "TOP_RIGHT"
	PositionMiddleLeft  WatermarkPosition = "MIDDLE_LEFT"
	PositionCenter      WatermarkPosition = "CENTER"
	PositionMiddleRight WatermarkPosition = "MIDDLE_RIGHT"
	PositionBottomLeft  WatermarkPosition = "BOTTOM_LEFT"
	PositionBottomCenter WatermarkPosition = "BOTTOM_CENTER"
	PositionBottomRight WatermarkPosition = "BOTTOM_RIGHT"
	// Social-safe margins for reels, shorts, and similar formats.
	PositionSafeTop    WatermarkPosition = "SAFE_TOP"
	PositionSafeBottom WatermarkPosition = "SAFE_BOTTOM"
)

var positionExprs = map[WatermarkPosition]string{
	PositionTopLeft:      "10:10",
	PositionTopCenter:    "(W-w)/2:10",
	PositionTopRight:     "W-w-10:10",
	PositionMiddleLeft:   "10:(H-h)/2",
	PositionCenter:       "(W-w)/2:(H-h)/2",
	PositionMiddleRight:  "W-w-10:(H-h)/2",
	PositionBottomLeft:   "10:H-h-10",
	PositionBottomCenter: "(W-w)/2:H-h-10",
	PositionBottomRight:  "W-w-10:H-h-10",
	PositionSafeTop:      "(W-w)/2:80",
	PositionSafeBottom:   "(W-w)/2:H-h-80",
}

// Expr returns the engine overlay expression for the position.
func (p WatermarkPosition) Expr() string {
	if expr, ok := positionExprs[p]; ok {
		return expr
	}
	return positionExprs[PositionSafeBottom]
}

// Valid reports whether p is a known position.
func (p WatermarkPosition) Valid() bool {
	_, ok := positionExprs[p]
	return ok
}

// AudioFormat selects codec and container for audio extraction.
type AudioFormat string

// Audio extraction formats.
const (
	AudioFormatMP3  AudioFormat = "mp3"
	AudioFormatAAC  AudioFormat = "aac"
	AudioFormatWAV  AudioFormat = "wav"
	AudioFormatFLAC AudioFormat = "flac"
)

// Codec returns the engine audio encoder for the format.
func (f AudioFormat) Codec() string {
	switch f {
	case AudioFormatAAC:
		return "aac"
	case AudioFormatWAV:
		return "pcm_s16le"
	case AudioFormatFLAC:
		return "flac"
	default:
		return "libmp3lame"
	}
}

// ContainerName returns the engine -f value for the format.
func (f AudioFormat) ContainerName() string {
	switch f {
	case AudioFormatAAC:
		return "ipod"
	case AudioFormatWAV:
		return "wav"
	case AudioFormatFLAC:
		return "flac"
	default:
		return "mp3"
	}
}

// Ext returns the output filename extension for the format.
func (f AudioFormat) Ext() string {
	switch f {
	case AudioFormatAAC:
		return "m4a"
	case AudioFormatWAV:
		return "wav"
	case AudioFormatFLAC:
		return "flac"
	default:
		return "mp3"
	}
}

// TrimPayload trims the source. EndSec -1 means until the end of the
// source; Duration, when set, overrides EndSec.
type TrimPayload struct {
	StartSec float64  `json:"start_sec" validate:"gte=0"`
	EndSec   float64  `json:"end_sec"`
	Duration *float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
}

func newTrimPayload() TrimPayload {
	return TrimPayload{EndSec: -1}
}

// TextSegment overlays text for a time range on the source timeline.
// EndSec -1 means until the end of the video.
type TextSegment struct {
	StartSec   float64 `json:"start_sec" validate:"gte=0"`
	EndSec     float64 `json:"end_sec"`
	Text       string  `json:"text" validate:"required"`
	Fontsize   int     `json:"fontsize" validate:"gt=0"`
	X          string  `json:"x"`
	Y          string  `json:"y"`
	Fontfile   string  `json:"fontfile,omitempty"`
	Fontcolor  string  `json:"fontcolor,omitempty"`
	Boxcolor   string  `json:"boxcolor,omitempty"`
	Boxborderw *int    `json:"boxborderw,omitempty"`
	Background bool    `json:"background,omitempty"`
}

func newTextSegment() TextSegment {
	return TextSegment{EndSec: -1, Fontsize: 24, X: "10", Y: "10"}
}

// SpeedSegment overrides playback speed for a time range. EndSec -1
// means until the end of the video.
type SpeedSegment struct {
	StartSec float64 `json:"start_sec" validate:"gte=0"`
	EndSec   float64 `json:"end_sec"`
	Speed    float64 `json:"speed" validate:"gt=0"`
}

func newSpeedSegment() SpeedSegment {
	return SpeedSegment{EndSec: -1, Speed: 1.0}
}

// WatermarkOverlay places an image over the video.
type WatermarkOverlay struct {
	Path     string            `json:"path" validate:"required"`
	Position WatermarkPosition `json:"position"`
	Opacity  float64           `json:"opacity" validate:"gte=0,lte=1"`
}

func newWatermarkOverlay() WatermarkOverlay {
	return WatermarkOverlay{Position: PositionSafeBottom, Opacity: 0.7}
}

// AudioOverlay mixes in a background audio file. MuteSource drops the
// source audio entirely; Loop repeats the file for the whole output.
type AudioOverlay struct {
	Path       string  `json:"path" validate:"required"`
	MixVolume  float64 `json:"mix_volume" validate:"gte=0"`
	Loop       bool    `json:"loop"`
	MuteSource bool    `json:"mute_source"`
}

func newAudioOverlay() AudioOverlay {
	return AudioOverlay{MixVolume: 1.0}
}

// BackgroundColor sets a solid background. OnlyColor replaces the
// source video with the colored canvas entirely.
type BackgroundColor struct {
	Color     string `json:"color"`
	OnlyColor bool   `json:"only_color"`
}

func newBackgroundColor() BackgroundColor {
	return BackgroundColor{Color: "black"}
}

// TranscodeOptions sets encoding parameters for export.
type TranscodeOptions struct {
	Codec        string   `json:"codec"`
	Preset       string   `json:"preset"`
	CRF          int      `json:"crf" validate:"gte=0,lte=51"`
	AudioCodec   string   `json:"audio_codec"`
	AudioBitrate string   `json:"audio_bitrate,omitempty"`
	Movflags     string   `json:"movflags,omitempty"`
	TargetSizeMB *float64 `json:"target_size_mb,omitempty" validate:"omitempty,gt=0"`
	Scale        string   `json:"scale,omitempty"`
}

func newTranscodeOptions() TranscodeOptions {
	return TranscodeOptions{Codec: "libx264", Preset: "medium", CRF: 23, AudioCodec: "aac"}
}

// CompressPayload shrinks the output, optionally to a target size.
type CompressPayload struct {
	TargetSizeMB *float64 `json:"target_size_mb,omitempty" validate:"omitempty,gt=0"`
	Scale        string   `json:"scale,omitempty"`
	Preset       string   `json:"preset"`
}

func newCompressPayload() CompressPayload {
	return CompressPayload{Preset: "medium"}
}

// ConcatPayload joins complete videos back to back. At least two
// inputs are required.
type ConcatPayload struct {
	InputPaths []string `json:"input_paths" validate:"required,min=2,dive,required"`
}

// GifOptions animates a clip of the source into a GIF.
type GifOptions struct {
	StartTime   string  `json:"start_time"`
	Duration    float64 `json:"duration" validate:"gt=0"`
	FPS         int     `json:"fps" validate:"gt=0"`
	Scale       int     `json:"scale" validate:"gt=0"`
	OutputCodec string  `json:"output_codec"`
}

func newGifOptions() GifOptions {
	return GifOptions{StartTime: "00:00:00", Duration: 5, FPS: 10, Scale: 480, OutputCodec: "gif"}
}

// WordTiming pins one karaoke word to a time range.
type WordTiming struct {
	Word     string  `json:"word" validate:"required"`
	StartSec float64 `json:"start_sec" validate:"gte=0"`
	EndSec   float64 `json:"end_sec"`
}

// KaraokeText renders a sentence with per-word highlighting. When
// Words is empty the sentence duration is distributed across tokens by
// character weight, with the last token pinned to the sentence end.
type KaraokeText struct {
	Sentence           string       `json:"sentence" validate:"required"`
	StartSec           float64      `json:"start_sec" validate:"gte=0"`
	EndSec             float64      `json:"end_sec"`
	Words              []WordTiming `json:"words,omitempty" validate:"omitempty,dive"`
	Fontsize           int          `json:"fontsize" validate:"gt=0"`
	X                  string       `json:"x,omitempty"`
	Y                  string       `json:"y,omitempty"`
	Fontcolor          string       `json:"fontcolor"`
	HighlightFontcolor string       `json:"highlight_fontcolor,omitempty"`
	Boxcolor           string       `json:"boxcolor"`
	Boxborderw         int          `json:"boxborderw" validate:"gte=0"`
}

func newKaraokeText() KaraokeText {
	return KaraokeText{
		EndSec:     -1,
		Fontsize:   60,
		Fontcolor:  "white",
		Boxcolor:   "black@1.0",
		Boxborderw: 12,
	}
}

// TimedText is one item of a text sequence.
type TimedText struct {
	Text       string  `json:"text" validate:"required"`
	StartSec   float64 `json:"start_sec" validate:"gte=0"`
	EndSec     float64 `json:"end_sec" validate:"gtfield=StartSec"`
	Fontsize   int     `json:"fontsize" validate:"gt=0"`
	X          string  `json:"x,omitempty"`
	Y          string  `json:"y,omitempty"`
	Fontcolor  string  `json:"fontcolor"`
	Boxcolor   string  `json:"boxcolor,omitempty"`
	Boxborderw int     `json:"boxborderw" validate:"gte=0"`
	Background bool    `json:"background"`
	FadeInMs   int     `json:"fade_in_ms" validate:"gte=0"`
	FadeOutMs  int     `json:"fade_out_ms" validate:"gte=0"`
}

func newTimedText() TimedText {
	return TimedText{Fontsize: 60, Fontcolor: "white", FadeInMs: 200, FadeOutMs: 200}
}

// TextSequence renders a series of timed subtitles.
type TextSequence struct {
	Items []TimedText `json:"items" validate:"required,min=1,dive"`
}

// UnmarshalJSON seeds each item with defaults before decoding, so
// absent fields keep them rather than the zero value.
func (s *TextSequence) UnmarshalJSON(data []byte) error {
	var raw struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Items == nil {
		s.Items = nil
		return nil
	}
	items := make([]TimedText, 0, len(raw.Items))
	for _, r := range raw.Items {
		item := newTimedText()
		if err := json.Unmarshal(r, &item); err != nil {
			return err
		}
		items = append(items, item)
	}
	s.Items = items
	return nil
}

// DownloadOptions controls the external-source download pre-op.
type DownloadOptions struct {
	Quality   string `json:"quality,omitempty"`
	Format    string `json:"format,omitempty"`
	AudioOnly bool   `json:"audio_only"`
}

// NewDownloadOptions returns DownloadOptions with defaults applied.
func NewDownloadOptions() DownloadOptions {
	return DownloadOptions{Quality: "best"}
}

// ConvertToPlatformOptions requests delivery transmuxing after the
// streamable intermediate is produced.
type ConvertToPlatformOptions struct {
	Platform     string `json:"platform,omitempty"`
	Codec        string `json:"codec"`
	Preset       string `json:"preset"`
	CRF          int    `json:"crf" validate:"gte=0,lte=51"`
	AudioCodec   string `json:"audio_codec"`
	AudioBitrate string `json:"audio_bitrate"`
	Scale        string `json:"scale,omitempty"`
}

func newConvertToPlatformOptions() ConvertToPlatformOptions {
	return ConvertToPlatformOptions{
		Codec:        "libx264",
		Preset:       "medium",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}
