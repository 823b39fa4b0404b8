package media

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/models"
)

func op(name, data string) models.Operation {
	return models.Operation{Op: name, Data: json.RawMessage(data)}
}

func TestApplyUnknownOp(t *testing.T) {
	err := Apply(NewBuilder(""), op("explode", `{}`))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestApplyTrimKeepsDefaults(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("trim", `{"start_sec": 5}`)))
	require.NotNil(t, b.trim)
	assert.Equal(t, 5.0, b.trim.StartSec)
	assert.Equal(t, -1.0, b.trim.EndSec, "absent end_sec keeps the till-the-end sentinel")
}

func TestApplyTextAcceptsObjectOrArray(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("text", `{"text": "one"}`)))
	require.NoError(t, Apply(b, op("text", `[{"text": "two"}, {"text": "three", "fontsize": 48}]`)))

	require.Len(t, b.textSegments, 3)
	assert.Equal(t, 24, b.textSegments[0].Fontsize)
	assert.Equal(t, 48, b.textSegments[2].Fontsize)
}

func TestApplyTextRequiresText(t *testing.T) {
	err := Apply(NewBuilder(""), op("text", `{"fontsize": 20}`))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestApplySpeedMany(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("speed", `[{"start_sec":0,"end_sec":10,"speed":2},{"start_sec":10,"end_sec":20,"speed":0.5}]`)))
	require.Len(t, b.speedSegments, 2)
	assert.Equal(t, 2.0, b.speedSegments[0].Speed)
}

func TestApplyConcatRejectsShortList(t *testing.T) {
	err := Apply(NewBuilder(""), op("concat", `{"input_paths": ["a.mp4"]}`))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestApplyWatermarkRejectsUnknownPosition(t *testing.T) {
	err := Apply(NewBuilder(""), op("watermark", `{"path": "logo.png", "position": "UNDER_THE_COUCH"}`))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestApplyWatermarkDefaults(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("watermark", `{"path": "logo.png"}`)))
	require.NotNil(t, b.watermark)
	assert.Equal(t, PositionSafeBottom, b.watermark.Position)
	assert.Equal(t, 0.7, b.watermark.Opacity)
}

func TestApplyExtractAudioFlipsMode(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("extractAudio", ``)))
	assert.Equal(t, ModeExtractAudio, b.Mode())
}

func TestApplyGifFlipsMode(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("gif", `{"duration": 3}`)))
	assert.Equal(t, ModeGif, b.Mode())
}

func TestApplyTextSequenceItemDefaults(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("textSequence",
		`{"items": [{"text": "hi", "start_sec": 0, "end_sec": 2}, {"text": "bye", "start_sec": 2, "end_sec": 4, "fontsize": 90, "fade_in_ms": 0}]}`)))

	require.Len(t, b.sequences, 1)
	items := b.sequences[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, 60, items[0].Fontsize)
	assert.Equal(t, "white", items[0].Fontcolor)
	assert.Equal(t, 200, items[0].FadeInMs)
	assert.Equal(t, 200, items[0].FadeOutMs)
	assert.Equal(t, 90, items[1].Fontsize)
	assert.Equal(t, 0, items[1].FadeInMs)
	assert.Equal(t, 200, items[1].FadeOutMs)
}

func TestApplyTextSequenceRequiresItems(t *testing.T) {
	err := Apply(NewBuilder(""), op("textSequence", `{"items": []}`))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestApplyTextSequenceRequiresOrderedTimes(t *testing.T) {
	err := Apply(NewBuilder(""), op("textSequence",
		`{"items": [{"text": "x", "start_sec": 5, "end_sec": 2}]}`))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestApplyKaraokeRequiresSentence(t *testing.T) {
	err := Apply(NewBuilder(""), op("karaoke", `{"start_sec": 0}`))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestApplyExternalDownloadIsValidatedButNotRouted(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, Apply(b, op("external_download", `{"quality": "720p"}`)))
	assert.Equal(t, ModeExport, b.Mode())
	assert.Nil(t, b.trim)
}

func TestValidateOps(t *testing.T) {
	require.NoError(t, ValidateOps([]models.Operation{
		op("trim", `{"start_sec": 0, "end_sec": 10}`),
		op("text", `{"text": "hi"}`),
		op("convertToPlatform", `{"platform": "instagram"}`),
	}))

	err := ValidateOps(nil)
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	err = ValidateOps([]models.Operation{op("nope", `{}`)})
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}
