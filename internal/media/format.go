package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmylchreest/clipd/internal/models"
)

// fnum formats a numeric filter value without a trailing ".0" so that
// integral seconds render as plain integers (trim=start=0:end=10).
func fnum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// fspeed formats a speed factor the way the engine expects in setpts
// and atempo clauses: integral factors keep one decimal (2.0), others
// print their shortest form (1.5).
func fspeed(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// atempoChain builds an atempo filter chain for the given speed factor.
// A single atempo only accepts 0.5 to 2.0, so larger and smaller
// factors are decomposed into a product of clamped stages.
func atempoChain(speed float64) (string, error) {
	if speed <= 0 {
		return "", fmt.Errorf("%w: speed must be positive", models.ErrInvalidRequest)
	}
	var parts []string
	s := speed
	for s > 2.0 {
		parts = append(parts, "atempo=2.0")
		s /= 2.0
	}
	for s < 0.5 {
		parts = append(parts, "atempo=0.5")
		s /= 0.5
	}
	parts = append(parts, "atempo="+fspeed(s))
	return strings.Join(parts, ","), nil
}

// resolveEnd maps the -1 sentinel to the full duration.
func resolveEnd(endSec, duration float64) float64 {
	if endSec < 0 {
		return duration
	}
	return endSec
}

// escapeText escapes single quotes for drawtext text values.
func escapeText(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// escapeFilterPath escapes a file path for use inside a quoted filter
// option such as subtitles='...'.
func escapeFilterPath(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ":", `\:`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return s
}
