package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_SmallContentIsOneChunk(t *testing.T) {
	c := NewChunker(512, 20)
	content := "Solar panels convert sunlight. Wind turbines convert wind."
	assert.Equal(t, []string{content}, c.Chunk(content))
}

func TestChunker_EmptyContent(t *testing.T) {
	c := NewChunker(512, 20)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("  \n\t "))
}

func TestChunker_SplitsOnSentences(t *testing.T) {
	c := NewChunker(20, 0)
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("Solar Panels Use Silicon Cells Daily. ")
	}
	b.WriteString("Final Sentence Here.")

	chunks := c.Chunk(b.String())
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.True(t, strings.HasSuffix(chunk, "."), "chunk %q should end on a sentence boundary", chunk)
		assert.LessOrEqual(t, EstimateTokens(chunk), 20)
	}
}

func TestChunker_OverlapRepeatsTrailingSentence(t *testing.T) {
	c := NewChunker(25, 12)
	content := "Alpha Powers The Grid Today. Beta Stores The Energy Well. Gamma Moves The Power Far. Delta Uses The Power Now."

	chunks := c.Chunk(content)
	require.Greater(t, len(chunks), 1)
	// The second chunk starts with the last sentence of the first.
	firstSentences := splitSentences(chunks[0] + " ")
	last := strings.TrimSpace(firstSentences[len(firstSentences)-1])
	assert.True(t, strings.HasPrefix(chunks[1], last), "chunk %q should start with %q", chunks[1], last)
}

func TestChunker_OversizedSentenceStandsAlone(t *testing.T) {
	c := NewChunker(10, 5)
	long := strings.Repeat("word ", 40) + "end."
	chunks := c.Chunk("Short One. " + long + " Short Two.")
	require.NotEmpty(t, chunks)
	found := false
	for _, chunk := range chunks {
		if strings.Contains(chunk, long) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.MaxChunkSize)
	assert.Equal(t, DefaultChunkOverlap, c.Overlap)

	c = NewChunker(100, 100)
	assert.Less(t, c.Overlap, c.MaxChunkSize)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Version 3.5 is out. It Works! Does it? yes. Done")
	assert.Equal(t, []string{"Version 3.5 is out. ", "It Works! ", "Does it? yes. ", "Done"}, got)
}

func TestDeduplicateChunks(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, DeduplicateChunks([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, DeduplicateChunks(nil))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
