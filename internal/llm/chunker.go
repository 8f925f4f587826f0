package llm

import (
	"strings"
	"unicode"
)

// Default chunking budget, in estimated tokens.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 20
)

// Chunker splits document text into pieces small enough for one extraction
// call. Splits fall on sentence boundaries, and each chunk after the first
// repeats up to Overlap tokens of trailing sentences from its predecessor.
type Chunker struct {
	MaxChunkSize int // Maximum chunk size in tokens (default: 512)
	Overlap      int // Overlap size in tokens (default: 20)
}

// NewChunker returns a Chunker, substituting defaults for non-positive sizes.
// Overlap is capped below the chunk size.
func NewChunker(maxChunkSize, overlap int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}
	return &Chunker{MaxChunkSize: maxChunkSize, Overlap: overlap}
}

// Chunk splits content into ordered, de-duplicated chunks. Whitespace-only
// content yields no chunks. A single sentence longer than the budget becomes
// its own oversized chunk rather than being cut mid-sentence.
func (c *Chunker) Chunk(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if EstimateTokens(content) <= c.MaxChunkSize {
		return []string{content}
	}

	var (
		chunks  []string
		current []string
		tokens  int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.TrimSpace(strings.Join(current, "")))
		}
	}

	for _, sentence := range splitSentences(content) {
		st := EstimateTokens(sentence)
		if tokens+st > c.MaxChunkSize && tokens > 0 {
			flush()
			current = overlapTail(current, c.Overlap)
			tokens = 0
			for _, s := range current {
				tokens += EstimateTokens(s)
			}
			if tokens+st > c.MaxChunkSize {
				current, tokens = nil, 0
			}
		}
		current = append(current, sentence)
		tokens += st
	}
	flush()

	return DeduplicateChunks(chunks)
}

// overlapTail returns the longest suffix of sentences fitting in budget tokens.
func overlapTail(sentences []string, budget int) []string {
	used := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		t := EstimateTokens(sentences[i])
		if used+t > budget {
			break
		}
		used += t
		start = i
	}
	return append([]string(nil), sentences[start:]...)
}

// EstimateTokens approximates GPT-style token counts at four characters per
// token, rounding up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// splitSentences splits text after '.', '!' or '?' when followed by
// whitespace and then an uppercase letter or digit. Terminators and the
// following whitespace stay with the sentence they end.
func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if !isTerminator(runes[i]) {
			continue
		}

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			current.WriteRune(runes[j])
			j++
		}
		if j == i+1 && j < len(runes) {
			continue // no whitespace after the terminator, e.g. "3.5"
		}
		i = j - 1

		if j == len(runes) || unicode.IsUpper(runes[j]) || unicode.IsDigit(runes[j]) {
			if s := current.String(); strings.TrimSpace(s) != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := current.String(); strings.TrimSpace(s) != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// DeduplicateChunks removes repeated chunks, keeping the first occurrence.
func DeduplicateChunks(chunks []string) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := chunks[:0]
	for _, chunk := range chunks {
		if _, ok := seen[chunk]; ok {
			continue
		}
		seen[chunk] = struct{}{}
		out = append(out, chunk)
	}
	return out
}
