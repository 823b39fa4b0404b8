package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(t float64) float64 { return t }

func TestDistributeWordsByCharacterWeight(t *testing.T) {
	words := distributeWords("Create videos now", 0, 6)
	require.Len(t, words, 3)

	// 6+6+3 characters: the first two words each get 2.4s.
	assert.Equal(t, "Create", words[0].Word)
	assert.Equal(t, 0.0, words[0].StartSec)
	assert.InDelta(t, 2.4, words[0].EndSec, 1e-9)
	assert.InDelta(t, 4.8, words[1].EndSec, 1e-9)

	// The last word is pinned to the sentence end.
	assert.Equal(t, 6.0, words[2].EndSec)
	assert.Equal(t, words[1].EndSec, words[2].StartSec)
}

func TestDistributeWordsEmptySentence(t *testing.T) {
	assert.Nil(t, distributeWords("   ", 0, 5))
	assert.Nil(t, distributeWords("", 0, 5))
}

func TestAssTimestamp(t *testing.T) {
	assert.Equal(t, "0:00:00.00", assTimestamp(0))
	assert.Equal(t, "0:00:01.50", assTimestamp(1.5))
	assert.Equal(t, "0:01:01.50", assTimestamp(61.5))
	assert.Equal(t, "1:00:00.00", assTimestamp(3600))
	assert.Equal(t, "0:00:00.00", assTimestamp(-3))
}

func TestAssColor(t *testing.T) {
	assert.Equal(t, "&H00FFFFFF&", assColor("white", "white"))
	assert.Equal(t, "&H0000FFFF&", assColor("yellow", "white"))
	assert.Equal(t, "&H00000000&", assColor("black@1.0", "black"))
	assert.Equal(t, "&H000000FF&", assColor("#FF0000", "white"))
	assert.Equal(t, "&H00FFFFFF&", assColor("", "white"))
}

func TestRenderKaraokeHighlightsEachWord(t *testing.T) {
	k := newKaraokeText()
	k.Sentence = "hello brave world"
	k.StartSec = 0
	k.EndSec = 6
	k.HighlightFontcolor = "yellow"

	ass := renderKaraokeASS(k, 30, identity, 1920, 1080)

	lines := dialogueLines(ass)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "{\\1c&H0000FFFF&}hello{\\1c&H00FFFFFF&} brave world")
	assert.Contains(t, lines[1], "hello {\\1c&H0000FFFF&}brave{\\1c&H00FFFFFF&} world")
	assert.Contains(t, lines[2], "hello brave {\\1c&H0000FFFF&}world{\\1c&H00FFFFFF&}")
}

func TestRenderKaraokeUsesProvidedWordTimings(t *testing.T) {
	k := newKaraokeText()
	k.Sentence = "one two"
	k.StartSec = 0
	k.EndSec = 10
	k.Words = []WordTiming{
		{Word: "one", StartSec: 0, EndSec: 4},
		{Word: "two", StartSec: 4, EndSec: 10},
	}

	ass := renderKaraokeASS(k, 30, identity, 1920, 1080)
	lines := dialogueLines(ass)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "0:00:00.00,0:00:04.00")
	assert.Contains(t, lines[1], "0:00:04.00,0:00:10.00")
}

func TestRenderSequenceEmitsFades(t *testing.T) {
	seq := TextSequence{Items: []TimedText{
		{Text: "Edit locally", StartSec: 1, EndSec: 3, Fontsize: 56, Fontcolor: "white", FadeInMs: 200, FadeOutMs: 300},
		{Text: "Ship fast", StartSec: 3, EndSec: 5, Fontsize: 56, Fontcolor: "white", FadeInMs: 200, FadeOutMs: 300},
	}}

	ass := renderSequenceASS(seq, 30, identity, 1920, 1080)
	lines := dialogueLines(ass)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "{\\fad(200,300)}Edit locally")
	assert.Contains(t, lines[0], "0:00:01.00,0:00:03.00")
	assert.Contains(t, lines[1], "Ship fast")
}

func TestRenderSequenceProjectsThroughTrim(t *testing.T) {
	seq := TextSequence{Items: []TimedText{
		{Text: "late", StartSec: 12, EndSec: 14, Fontsize: 60, Fontcolor: "white"},
	}}
	project := func(t float64) float64 { return max(0, min(10, t-10)) }

	ass := renderSequenceASS(seq, 30, project, 1920, 1080)
	lines := dialogueLines(ass)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "0:00:02.00,0:00:04.00")
}

func TestRenderSequenceDropsZeroDurationItems(t *testing.T) {
	seq := TextSequence{Items: []TimedText{
		{Text: "before the trim", StartSec: 0, EndSec: 5, Fontsize: 60, Fontcolor: "white"},
	}}
	project := func(t float64) float64 { return 0 }

	ass := renderSequenceASS(seq, 30, project, 1920, 1080)
	assert.Empty(t, dialogueLines(ass))
}

func TestEscapeASS(t *testing.T) {
	assert.Equal(t, "(bold) text\\Nnext", escapeASS("{bold} text\nnext"))
}

func TestAssPosOverride(t *testing.T) {
	assert.Equal(t, "{\\pos(10,940)}", assPosOverride("10", "940"))
	assert.Equal(t, "", assPosOverride("(w-text_w)/2", "940"))
	assert.Equal(t, "", assPosOverride("", ""))
}

func dialogueLines(ass string) []string {
	var out []string
	for _, line := range strings.Split(ass, "\n") {
		if strings.HasPrefix(line, "Dialogue:") {
			out = append(out, line)
		}
	}
	return out
}
