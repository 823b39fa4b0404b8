package media

import (
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/clipd/internal/models"
)

// OpExternalDownload is handled by the worker before compilation and
// never reaches the builder.
const OpExternalDownload = "external_download"

// decodePayload fills a defaults-seeded payload from raw JSON and runs
// struct validation. Absent fields keep their defaults.
func decodePayload[T any](op string, data json.RawMessage, seed T) (T, error) {
	out := seed
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("%w: bad %s payload: %v", models.ErrInvalidRequest, op, err)
		}
	}
	if err := validate.Struct(out); err != nil {
		return out, fmt.Errorf("%w: invalid %s payload: %v", models.ErrInvalidRequest, op, err)
	}
	return out, nil
}

// decodeMany accepts either a single payload object or an array of
// them, matching the wire format of ops with many-cardinality.
func decodeMany[T any](op string, data json.RawMessage, seed func() T) ([]T, error) {
	var raws []json.RawMessage
	if len(data) > 0 && json.Unmarshal(data, &raws) == nil {
		out := make([]T, 0, len(raws))
		for _, raw := range raws {
			item, err := decodePayload(op, raw, seed())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: %s payload has no items", models.ErrInvalidRequest, op)
		}
		return out, nil
	}
	item, err := decodePayload(op, data, seed())
	if err != nil {
		return nil, err
	}
	return []T{item}, nil
}

// Apply routes one operation onto the builder. Unknown ops and payloads
// that fail validation are InvalidRequest errors.
func Apply(b *Builder, op models.Operation) error {
	switch op.Op {
	case "trim":
		p, err := decodePayload(op.Op, op.Data, newTrimPayload())
		if err != nil {
			return err
		}
		b.Trim(p)
	case "compress":
		p, err := decodePayload(op.Op, op.Data, newCompressPayload())
		if err != nil {
			return err
		}
		b.Compress(p)
	case "concat":
		p, err := decodePayload(op.Op, op.Data, ConcatPayload{})
		if err != nil {
			return err
		}
		b.ConcatVideos(p)
	case "extractAudio":
		b.ExtractAudio()
	case "text":
		segments, err := decodeMany(op.Op, op.Data, newTextSegment)
		if err != nil {
			return err
		}
		b.AddText(segments...)
	case "karaoke":
		p, err := decodePayload(op.Op, op.Data, newKaraokeText())
		if err != nil {
			return err
		}
		b.AddKaraoke(p)
	case "textSequence":
		p, err := decodePayload(op.Op, op.Data, TextSequence{})
		if err != nil {
			return err
		}
		b.AddTextSequence(p)
	case "speed":
		segments, err := decodeMany(op.Op, op.Data, newSpeedSegment)
		if err != nil {
			return err
		}
		b.SpeedControl(segments...)
	case "watermark":
		p, err := decodePayload(op.Op, op.Data, newWatermarkOverlay())
		if err != nil {
			return err
		}
		if !p.Position.Valid() {
			return fmt.Errorf("%w: unknown watermark position %q", models.ErrInvalidRequest, p.Position)
		}
		b.AddWatermark(p)
	case "audio":
		p, err := decodePayload(op.Op, op.Data, newAudioOverlay())
		if err != nil {
			return err
		}
		b.AddBackgroundAudio(p)
	case "backgroundColor":
		p, err := decodePayload(op.Op, op.Data, newBackgroundColor())
		if err != nil {
			return err
		}
		b.SetBackgroundColor(p)
	case "transcode":
		p, err := decodePayload(op.Op, op.Data, newTranscodeOptions())
		if err != nil {
			return err
		}
		b.Transcode(p)
	case "gif":
		p, err := decodePayload(op.Op, op.Data, newGifOptions())
		if err != nil {
			return err
		}
		b.CreateGif(p)
	case "convertToPlatform":
		p, err := decodePayload(op.Op, op.Data, newConvertToPlatformOptions())
		if err != nil {
			return err
		}
		b.ConvertToPlatform(p)
	case OpExternalDownload:
		// Validated here so recipes fail fast; the worker consumes it
		// before compilation.
		if _, err := decodePayload(op.Op, op.Data, NewDownloadOptions()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", models.ErrInvalidRequest, op.Op)
	}
	return nil
}

// ApplyAll routes a full recipe onto the builder in order.
func ApplyAll(b *Builder, ops []models.Operation) error {
	for _, op := range ops {
		if err := Apply(b, op); err != nil {
			return err
		}
	}
	return nil
}

// ValidateOps dry-runs a recipe against a throwaway builder. Used by
// the API layer to reject bad recipes before any job is enqueued.
func ValidateOps(ops []models.Operation) error {
	if len(ops) == 0 {
		return fmt.Errorf("%w: empty operation list", models.ErrInvalidRequest)
	}
	b := NewBuilder("")
	return ApplyAll(b, ops)
}
