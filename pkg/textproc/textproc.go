// Package textproc implements TextProcessor (spec §4.2): normalize, clean,
// is_meaningful, extract_keywords, truncate_to_tokens and
// split_into_chunks. The sliding-window chunker is adapted from the
// teacher's pkg/rag/chunk.Processor.ChunkText, generalized to operate on
// token counts instead of raw rune counts and wired to a TokenCounter.
package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/claude-memory/claude-memory-go/pkg/tokencount"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	urlRe        = regexp.MustCompile(`\bhttps?://\S+`)
	emailRe      = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	newlinesRe   = regexp.MustCompile(`\n{3,}`)
	tokenRe      = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// stopWords covers common English and a handful of CJK function words; not
// exhaustive, only enough to keep extract_keywords from surfacing pure
// function words.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {},
	"out": {}, "day": {}, "get": {}, "has": {}, "him": {}, "his": {}, "how": {},
	"man": {}, "new": {}, "now": {}, "old": {}, "see": {}, "two": {}, "way": {},
	"who": {}, "boy": {}, "did": {}, "its": {}, "let": {}, "put": {}, "say": {},
	"she": {}, "too": {}, "use": {}, "this": {}, "that": {}, "with": {}, "from": {},
	"have": {}, "were": {}, "been": {}, "their": {}, "what": {}, "which": {},
	"的": {}, "了": {}, "和": {}, "是": {}, "在": {}, "我": {}, "你": {}, "他": {},
}

// Processor implements TextProcessor.
type Processor struct {
	counter *tokencount.Counter
}

// New builds a Processor that delegates token counting to counter.
func New(counter *tokencount.Counter) *Processor {
	return &Processor{counter: counter}
}

// Normalize applies Unicode NFKC normalization, strips HTML tags, URLs, and
// emails, collapses whitespace runs, caps consecutive newlines at 2, and
// trims. Idempotent: Normalize(Normalize(x)) == Normalize(x).
func (p *Processor) Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = htmlTagRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = newlinesRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")

	return strings.TrimSpace(text)
}

// CountTokens delegates to the wired TokenCounter.
func (p *Processor) CountTokens(text string) int {
	return p.counter.Count(text)
}

// IsMeaningful implements the heuristic gate from spec §4.2.
func (p *Processor) IsMeaningful(text string) bool {
	n := norm.NFKC.String(strings.TrimSpace(text))
	runes := []rune(n)
	if len(runes) < 5 {
		return false
	}

	counts := make(map[rune]int, len(runes))
	var digits, nonAlnumNonSpace int
	for _, r := range runes {
		counts[r]++
		switch {
		case unicode.IsDigit(r):
			digits++
		case !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r):
			nonAlnumNonSpace++
		}
	}

	maxRepeat := 0
	for _, c := range counts {
		if c > maxRepeat {
			maxRepeat = c
		}
	}
	if float64(maxRepeat)/float64(len(runes)) > 0.3 {
		return false
	}
	if float64(digits)/float64(len(runes)) > 0.5 {
		return false
	}
	if float64(nonAlnumNonSpace)/float64(len(runes)) > 0.3 {
		return false
	}

	hasRealWord := false
	for _, tok := range tokenRe.FindAllString(n, -1) {
		if len([]rune(tok)) > 2 {
			if _, stop := stopWords[strings.ToLower(tok)]; !stop {
				hasRealWord = true
				break
			}
		}
	}
	return hasRealWord
}

// ExtractKeywords ranks alphanumeric tokens of length > 2 by frequency,
// skipping stop words, and returns at most k, ordered by descending
// frequency then first occurrence.
func (p *Processor) ExtractKeywords(text string, k int) []string {
	if k <= 0 {
		return nil
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, tok := range tokenRe.FindAllString(text, -1) {
		if len([]rune(tok)) <= 2 {
			continue
		}
		lower := strings.ToLower(tok)
		if _, stop := stopWords[lower]; stop {
			continue
		}
		if counts[lower] == 0 {
			order = append(order, lower)
		}
		counts[lower]++
	}

	// stable sort by count desc, preserving first-seen order on ties.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[order[j]] > counts[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	if len(order) > k {
		order = order[:k]
	}
	return order
}

// TruncateToTokens shortens text to at most max tokens, sentence-aware if
// requested, otherwise character-proportional.
func (p *Processor) TruncateToTokens(text string, max int, preserveSentences bool) string {
	if max <= 0 {
		return ""
	}
	if p.CountTokens(text) <= max {
		return text
	}

	if preserveSentences {
		sentences := splitSentences(text)
		var b strings.Builder
		for _, s := range sentences {
			candidate := b.String() + s
			if p.CountTokens(candidate) > max {
				break
			}
			b.WriteString(s)
		}
		if b.Len() > 0 {
			return strings.TrimSpace(b.String())
		}
	}

	// Character-proportional fallback.
	ratio := float64(max) / float64(p.CountTokens(text))
	runes := []rune(text)
	cut := int(float64(len(runes)) * ratio)
	if cut > len(runes) {
		cut = len(runes)
	}
	return strings.TrimSpace(string(runes[:cut]))
}

var sentenceEndRe = regexp.MustCompile(`([.!?。！？])\s+`)

func splitSentences(text string) []string {
	parts := sentenceEndRe.Split(text, -1)
	seps := sentenceEndRe.FindAllString(text, -1)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i < len(seps) {
			out = append(out, part+strings.TrimSpace(seps[i])+" ")
		} else {
			out = append(out, part)
		}
	}
	return out
}

// Chunk is one piece of text::split_into_chunks output.
type Chunk struct {
	Index   int
	Content string
}

// SplitIntoChunks packs whole paragraphs into chunks of at most
// maxChunkTokens tokens, each new chunk starting with an overlapTokens
// token-overlap prefix carried from the end of the previous chunk. A
// paragraph that alone exceeds maxChunkTokens is cut by slidingWindow, a
// rune window sized at four runes per token that ends at nearby whitespace;
// sentence boundaries are not looked for. Adapted from the teacher's
// pkg/rag/chunk.Processor.ChunkText rune sliding window.
func (p *Processor) SplitIntoChunks(text string, maxChunkTokens, overlapTokens int) []Chunk {
	if maxChunkTokens <= 0 {
		maxChunkTokens = 500
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxChunkTokens {
		overlapTokens = maxChunkTokens / 2
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	var cur strings.Builder
	flush := func() {
		content := strings.TrimSpace(cur.String())
		if content != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Content: content})
		}
		cur.Reset()
	}

	for _, para := range paragraphs {
		if p.CountTokens(para) > maxChunkTokens {
			flush()
			for _, sub := range p.slidingWindow(para, maxChunkTokens, overlapTokens) {
				chunks = append(chunks, Chunk{Index: len(chunks), Content: sub})
			}
			continue
		}

		candidate := cur.String()
		if candidate != "" {
			candidate += "\n\n"
		}
		candidate += para

		if p.CountTokens(candidate) > maxChunkTokens {
			prevTail := overlapSuffix(cur.String(), overlapTokens, p)
			flush()
			cur.WriteString(prevTail)
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(para)
			continue
		}
		cur.Reset()
		cur.WriteString(candidate)
	}
	flush()

	return chunks
}

// slidingWindow is the rune-based window with forward-progress guard,
// adapted from the teacher's chunk.Processor.ChunkText, operating on a
// token budget rather than a raw rune count.
func (p *Processor) slidingWindow(text string, maxTokens, overlapTokens int) []string {
	runes := []rune(text)
	totalLen := len(runes)
	if totalLen == 0 {
		return nil
	}

	// Approximate a rune budget per chunk from the token budget so we don't
	// need to binary-search CountTokens on every candidate window.
	approxCharsPerToken := 4
	size := maxTokens * approxCharsPerToken
	overlap := overlapTokens * approxCharsPerToken
	if size <= 0 {
		size = 2000
	}

	var out []string
	start := 0
	for start < totalLen {
		end := start + size
		if end > totalLen {
			end = totalLen
		}
		if end < totalLen {
			if ws := findNearestWhitespace(runes[start:end+1], end-start); ws > 0 {
				end = start + ws
			}
		}

		out = append(out, strings.TrimSpace(string(runes[start:end])))

		if end >= totalLen {
			break
		}
		nextStart := end - overlap
		if nextStart <= start {
			nextStart = start + 1
		}
		for nextStart < totalLen && !isWhitespace(runes[nextStart]) {
			nextStart++
		}
		for nextStart < totalLen && isWhitespace(runes[nextStart]) {
			nextStart++
		}
		start = nextStart
	}
	return out
}

func overlapSuffix(s string, overlapTokens int, p *Processor) string {
	if overlapTokens <= 0 || s == "" {
		return ""
	}
	runes := []rune(s)
	approxChars := overlapTokens * 4
	if approxChars >= len(runes) {
		return s
	}
	return string(runes[len(runes)-approxChars:])
}

func findNearestWhitespace(runes []rune, target int) int {
	maxSearch := len(runes) / 5
	if maxSearch < 50 {
		maxSearch = 50
	}
	if maxSearch > 500 {
		maxSearch = 500
	}
	for i := 0; i < maxSearch && target-i > 0; i++ {
		pos := target - i
		if isWhitespace(runes[pos]) {
			return pos
		}
	}
	for i := 1; i < maxSearch && target+i < len(runes); i++ {
		pos := target + i
		if isWhitespace(runes[pos]) {
			return pos
		}
	}
	return target
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
