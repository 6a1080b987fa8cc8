package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	require.Nil(t, Split("", 1000, 100))
	require.Nil(t, Split("   \n\t  ", 1000, 100))
}

func TestSplitShortInput(t *testing.T) {
	pieces := Split("  hello world  ", 1000, 100)
	require.Len(t, pieces, 1)
	require.Equal(t, "hello world", pieces[0].Text)
	require.Equal(t, 0, pieces[0].Ordinal)
	require.Equal(t, 2, pieces[0].Start)
	require.Equal(t, 13, pieces[0].End)
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	first := Split(text, 500, 50)
	second := Split(text, 500, 50)
	require.Equal(t, first, second)
}

func TestSplitBoundedAndOverlapping(t *testing.T) {
	text := strings.Repeat("abcdefghij", 1200) // 12000 runes, no natural boundaries
	pieces := Split(text, 1000, 100)
	require.Len(t, pieces, 14)

	for i, piece := range pieces {
		require.Equal(t, i, piece.Ordinal)
		require.LessOrEqual(t, len([]rune(piece.Text)), 1000)
		if i > 0 {
			prev := pieces[i-1]
			require.Equal(t, 100, prev.End-piece.Start, "piece %d should overlap its predecessor", i)
		}
	}
	last := pieces[len(pieces)-1]
	require.Equal(t, 12000, last.End)
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("a", 700)
	para2 := strings.Repeat("b", 700)
	text := para1 + "\n\n" + para2
	pieces := Split(text, 1000, 0)
	require.Len(t, pieces, 2)
	require.Equal(t, para1, pieces[0].Text)
	require.NotContains(t, pieces[0].Text, "b")
	require.NotContains(t, pieces[1].Text, "a")
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	sentence := strings.Repeat("x", 80) + ". "
	text := strings.Repeat(sentence, 30)
	pieces := Split(text, 500, 0)
	require.Greater(t, len(pieces), 1)
	for _, piece := range pieces[:len(pieces)-1] {
		require.True(t, strings.HasSuffix(piece.Text, "."), "piece should end at a sentence: %q", piece.Text[len(piece.Text)-10:])
	}
}

func TestSplitOffsetsTraceBack(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)
	runes := []rune(text)
	for _, piece := range Split(text, 300, 30) {
		require.Equal(t, piece.Text, string(runes[piece.Start:piece.End]))
	}
}

func TestSplitCJKSentences(t *testing.T) {
	sentence := strings.Repeat("字", 50) + "。"
	text := strings.Repeat(sentence, 20)
	pieces := Split(text, 200, 20)
	require.Greater(t, len(pieces), 1)
	for _, piece := range pieces[:len(pieces)-1] {
		require.True(t, strings.HasSuffix(piece.Text, "。"))
	}
}

func TestSplitZeroProgressGuard(t *testing.T) {
	// overlap >= targetSize is rejected, the walk must still terminate
	text := strings.Repeat("a", 5000)
	pieces := Split(text, 100, 100)
	require.NotEmpty(t, pieces)
	require.Equal(t, 5000, pieces[len(pieces)-1].End)
}
