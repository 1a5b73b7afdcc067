package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/tokencount"
)

func newProc() *Processor {
	return New(tokencount.New())
}

func TestNormalizeIdempotent(t *testing.T) {
	p := newProc()
	inputs := []string{
		"  Hello   <b>World</b>\n\n\n\nVisit http://example.com or mail me@example.com  ",
		"no special chars here",
		"",
	}
	for _, in := range inputs {
		once := p.Normalize(in)
		twice := p.Normalize(once)
		require.Equal(t, once, twice, "normalize not idempotent for %q", in)
	}
}

func TestNormalizeStripsHTMLURLsEmails(t *testing.T) {
	p := newProc()
	out := p.Normalize("Check <a href='x'>this</a> at http://example.com or email foo@bar.com")
	require.NotContains(t, out, "<a")
	require.NotContains(t, out, "http://")
	require.NotContains(t, out, "@")
}

func TestIsMeaningful(t *testing.T) {
	p := newProc()
	require.False(t, p.IsMeaningful("hi"))
	require.False(t, p.IsMeaningful("aaaaaaaaaaaaaaaa"))
	require.False(t, p.IsMeaningful("12345678901234"))
	require.True(t, p.IsMeaningful("How do I implement binary search in Python efficiently?"))
}

func TestExtractKeywordsCap(t *testing.T) {
	p := newProc()
	kws := p.ExtractKeywords("binary search binary search algorithm python python python implementation", 3)
	require.LessOrEqual(t, len(kws), 3)
	for _, k := range kws {
		require.Greater(t, len(k), 2)
	}
	require.Equal(t, "python", kws[0])
}

func TestSplitIntoChunksRespectsBudgetAndProgress(t *testing.T) {
	p := newProc()
	text := strings.Repeat("word ", 2000)
	chunks := p.SplitIntoChunks(text, 50, 5)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, p.CountTokens(c.Content), 60)
	}
}

func TestTruncateToTokens(t *testing.T) {
	p := newProc()
	text := strings.Repeat("one two three four five six seven eight nine ten ", 50)
	out := p.TruncateToTokens(text, 20, true)
	require.LessOrEqual(t, p.CountTokens(out), 40)
}
