package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// renderSubtitles writes one ASS file per accumulated karaoke sentence
// and text sequence into a fresh scratch directory and returns the file
// paths in emission order. The scratch directory is recorded for
// Cleanup.
func (b *Builder) renderSubtitles(duration float64, trimExplicit bool, trimStart, effectiveDuration float64, width, height int) ([]string, error) {
	if len(b.karaoke) == 0 && len(b.sequences) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp(b.workDir, "subtitles-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("creating subtitle scratch dir: %w", err)
	}
	b.scratchDirs = append(b.scratchDirs, dir)

	project := func(t float64) float64 {
		if !trimExplicit {
			return t
		}
		out := t - trimStart
		if out < 0 {
			out = 0
		}
		if out > effectiveDuration {
			out = effectiveDuration
		}
		return out
	}

	var paths []string
	for i, k := range b.karaoke {
		content := renderKaraokeASS(k, duration, project, width, height)
		path := filepath.Join(dir, fmt.Sprintf("karaoke_%d.ass", i))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("writing karaoke subtitle file: %w", err)
		}
		paths = append(paths, path)
	}
	for i, seq := range b.sequences {
		content := renderSequenceASS(seq, duration, project, width, height)
		path := filepath.Join(dir, fmt.Sprintf("sequence_%d.ass", i))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("writing sequence subtitle file: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func assHeader(width, height int) string {
	return fmt.Sprintf(`[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 2
ScaledBorderAndShadow: yes

`, width, height)
}

func assStyles(name string, fontsize int, fontcolor, boxcolor string, boxborderw int) string {
	borderStyle := 1
	outline := 2
	if boxcolor != "" {
		// BorderStyle 3 renders an opaque box behind the text.
		borderStyle = 3
		outline = boxborderw
	}
	return fmt.Sprintf(`[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: %s,Arial,%d,%s,%s,%s,%s,0,0,0,0,100,100,0,0,%d,%d,0,2,20,20,40,1

`, name, fontsize, assColor(fontcolor, "white"), assColor(fontcolor, "white"), assColor(boxcolor, "black"), assColor(boxcolor, "black"), borderStyle, outline)
}

const assEventsHeader = `[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// renderKaraokeASS emits one dialogue line per word window, each
// repeating the full sentence with the active word recolored.
func renderKaraokeASS(k KaraokeText, duration float64, project func(float64) float64, width, height int) string {
	start := k.StartSec
	end := resolveEnd(k.EndSec, duration)

	words := k.Words
	if len(words) == 0 {
		words = distributeWords(k.Sentence, start, end)
	}

	highlight := k.HighlightFontcolor
	if highlight == "" {
		highlight = "yellow"
	}

	var sb strings.Builder
	sb.WriteString(assHeader(width, height))
	sb.WriteString(assStyles("Karaoke", k.Fontsize, k.Fontcolor, k.Boxcolor, k.Boxborderw))
	sb.WriteString(assEventsHeader)

	pos := assPosOverride(k.X, k.Y)
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = w.Word
	}
	for i, w := range words {
		ws := project(w.StartSec)
		we := project(resolveEnd(w.EndSec, end))
		if we <= ws {
			continue
		}
		line := make([]string, len(tokens))
		copy(line, tokens)
		line[i] = fmt.Sprintf("{\\1c%s}%s{\\1c%s}", assColor(highlight, "yellow"), escapeASS(tokens[i]), assColor(k.Fontcolor, "white"))
		for j := range line {
			if j != i {
				line[j] = escapeASS(line[j])
			}
		}
		sb.WriteString(fmt.Sprintf("Dialogue: 0,%s,%s,Karaoke,,0,0,0,,%s%s\n",
			assTimestamp(ws), assTimestamp(we), pos, strings.Join(line, " ")))
	}
	return sb.String()
}

// renderSequenceASS emits one dialogue line per timed text item with a
// fade macro.
func renderSequenceASS(seq TextSequence, duration float64, project func(float64) float64, width, height int) string {
	var sb strings.Builder
	sb.WriteString(assHeader(width, height))

	first := seq.Items[0]
	sb.WriteString(assStyles("Timed", first.Fontsize, first.Fontcolor, first.Boxcolor, first.Boxborderw))
	sb.WriteString(assEventsHeader)

	for _, item := range seq.Items {
		start := project(item.StartSec)
		end := project(resolveEnd(item.EndSec, duration))
		if end <= start {
			continue
		}
		var overrides strings.Builder
		overrides.WriteString(fmt.Sprintf("{\\fad(%d,%d)}", item.FadeInMs, item.FadeOutMs))
		overrides.WriteString(assPosOverride(item.X, item.Y))
		if item.Fontsize != first.Fontsize {
			overrides.WriteString(fmt.Sprintf("{\\fs%d}", item.Fontsize))
		}
		if item.Fontcolor != "" && item.Fontcolor != first.Fontcolor {
			overrides.WriteString(fmt.Sprintf("{\\1c%s}", assColor(item.Fontcolor, "white")))
		}
		sb.WriteString(fmt.Sprintf("Dialogue: 0,%s,%s,Timed,,0,0,0,,%s%s\n",
			assTimestamp(start), assTimestamp(end), overrides.String(), escapeASS(item.Text)))
	}
	return sb.String()
}

// distributeWords splits the sentence into whitespace tokens and
// distributes the sentence window across them by character weight. The
// last token is pinned to the sentence end so rounding never leaves a
// silent tail.
func distributeWords(sentence string, start, end float64) []WordTiming {
	tokens := strings.Fields(sentence)
	if len(tokens) == 0 {
		return nil
	}
	total := 0
	for _, t := range tokens {
		total += len(t)
	}
	if total == 0 {
		return nil
	}
	span := end - start
	words := make([]WordTiming, 0, len(tokens))
	cursor := start
	for i, t := range tokens {
		wordEnd := cursor + span*float64(len(t))/float64(total)
		if i == len(tokens)-1 {
			wordEnd = end
		}
		words = append(words, WordTiming{Word: t, StartSec: cursor, EndSec: wordEnd})
		cursor = wordEnd
	}
	return words
}

// assTimestamp formats seconds as the H:MM:SS.cc form ASS expects.
func assTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int(seconds*100 + 0.5)
	h := centis / 360000
	m := (centis / 6000) % 60
	s := (centis / 100) % 60
	cs := centis % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// assPosOverride emits a \pos override when both coordinates are plain
// numbers; expression coordinates fall back to the style alignment.
func assPosOverride(x, y string) string {
	if x == "" || y == "" {
		return ""
	}
	xf, errX := strconv.ParseFloat(x, 64)
	yf, errY := strconv.ParseFloat(y, 64)
	if errX != nil || errY != nil {
		return ""
	}
	return fmt.Sprintf("{\\pos(%s,%s)}", fnum(xf), fnum(yf))
}

// escapeASS neutralizes override-block braces and hard linebreak
// sequences in user text.
func escapeASS(s string) string {
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", "\\N")
	return s
}

var namedColors = map[string]string{
	"white":   "FFFFFF",
	"black":   "000000",
	"red":     "FF0000",
	"green":   "00FF00",
	"blue":    "0000FF",
	"yellow":  "FFFF00",
	"cyan":    "00FFFF",
	"magenta": "FF00FF",
	"orange":  "FFA500",
	"gray":    "808080",
	"grey":    "808080",
}

// assColor converts a color name, #RRGGBB, or 0xRRGGBB value with an
// optional @alpha suffix into the &HAABBGGRR& form ASS uses. BB GG RR
// order is reversed relative to RGB; alpha 00 is opaque.
func assColor(color, fallback string) string {
	if color == "" {
		color = fallback
	}
	alpha := 0.0
	if name, alphaStr, found := strings.Cut(color, "@"); found {
		color = name
		if a, err := strconv.ParseFloat(alphaStr, 64); err == nil {
			// Engine alpha is opacity 0..1; ASS alpha is transparency.
			alpha = 1 - max(0, min(1, a))
		}
	}

	hex := ""
	lower := strings.ToLower(strings.TrimSpace(color))
	switch {
	case strings.HasPrefix(lower, "#"):
		hex = strings.TrimPrefix(lower, "#")
	case strings.HasPrefix(lower, "0x"):
		hex = strings.TrimPrefix(lower, "0x")
	default:
		if named, ok := namedColors[lower]; ok {
			hex = named
		}
	}
	if len(hex) != 6 {
		hex = namedColors["white"]
		if named, ok := namedColors[strings.ToLower(fallback)]; ok {
			hex = named
		}
	}
	rgb, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		rgb = 0xFFFFFF
	}
	r := (rgb >> 16) & 0xFF
	g := (rgb >> 8) & 0xFF
	bb := rgb & 0xFF
	return fmt.Sprintf("&H%02X%02X%02X%02X&", int(alpha*255+0.5), bb, g, r)
}
