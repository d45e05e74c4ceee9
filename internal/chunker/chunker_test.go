package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorat/internal/model"
)

func doc(id, content string) *model.Document {
	return &model.Document{
		ID:      id,
		Content: content,
		Level:   "cinquieme",
		Subject: "mathematiques",
	}
}

func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("Une fraction represente une partie d'un tout divise en parts egales. ")
	}
	return strings.TrimSpace(b.String())
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := New()
	assert.Nil(t, c.Chunk(doc("d1", "")))
	assert.Nil(t, c.Chunk(doc("d1", "   \n\t  ")))
}

func TestChunk_ShortDocumentSingleChunk(t *testing.T) {
	c := New(WithBounds(200, 1200))
	content := "Les fractions sont au programme de cinquieme."
	chunks := c.Chunk(doc("d1", content))
	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, model.ChunkID("d1", 0), chunks[0].ID)
}

func TestChunk_BoundsRespected(t *testing.T) {
	c := New(WithBounds(200, 600), WithOverlapFraction(0.1))
	chunks := c.Chunk(doc("d1", sentences(40)))
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.GreaterOrEqual(t, len(ch.Content), 200, "chunk %d too short", ch.Index)
		assert.LessOrEqual(t, len(ch.Content), 600, "chunk %d too long", ch.Index)
	}
}

func TestChunk_TightBoundsStayWithinBounds(t *testing.T) {
	// maxLen < 2*minLen cannot hold for every document length: a remainder
	// just over maxLen has no split where both halves reach minLen. New
	// widens the lower bound to maxLen/2, and every chunk must respect it.
	c := New(WithBounds(200, 300))
	for n := 4; n <= 12; n++ {
		chunks := c.Chunk(doc("d1", sentences(n)))
		require.NotEmpty(t, chunks, "doc of %d sentences", n)
		for _, ch := range chunks {
			assert.GreaterOrEqual(t, len(ch.Content), 150,
				"doc of %d sentences: chunk %d too short", n, ch.Index)
			assert.LessOrEqual(t, len(ch.Content), 300,
				"doc of %d sentences: chunk %d too long", n, ch.Index)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(WithBounds(150, 500), WithOverlapFraction(0.2))
	d := doc("doc-fractions", sentences(30))
	first := c.Chunk(d)
	second := c.Chunk(d)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].StartOffset, second[i].StartOffset)
		assert.Equal(t, first[i].EndOffset, second[i].EndOffset)
	}
}

func TestChunk_IDsDifferByDocument(t *testing.T) {
	c := New()
	a := c.Chunk(doc("a", sentences(5)))
	b := c.Chunk(doc("b", sentences(5)))
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestChunk_OffsetsMatchContent(t *testing.T) {
	c := New(WithBounds(150, 500))
	content := "   " + sentences(25) + "\n\n"
	d := doc("d1", content)
	for _, ch := range c.Chunk(d) {
		assert.Equal(t, content[ch.StartOffset:ch.EndOffset], ch.Content)
	}
}

func TestChunk_OverlapCarriesContext(t *testing.T) {
	c := New(WithBounds(150, 400), WithOverlapFraction(0.25))
	chunks := c.Chunk(doc("d1", sentences(30)))
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].StartOffset, chunks[i-1].EndOffset,
			"chunk %d should start inside chunk %d", i, i-1)
	}
}

func TestChunk_CutsAtSentenceBoundary(t *testing.T) {
	c := New(WithBounds(150, 400), WithOverlapFraction(0))
	chunks := c.Chunk(doc("d1", sentences(30)))
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks[:len(chunks)-1] {
		assert.Regexp(t, `[.!?]$`, strings.TrimSpace(ch.Content))
	}
}

func TestSentenceTruncate(t *testing.T) {
	t.Run("no-op under budget", func(t *testing.T) {
		assert.Equal(t, "Court.", SentenceTruncate("Court.", 100))
	})

	t.Run("cuts at sentence end", func(t *testing.T) {
		s := "Premiere phrase. Deuxieme phrase. Troisieme phrase."
		out := SentenceTruncate(s, 40)
		assert.Equal(t, "Premiere phrase. Deuxieme phrase.", out)
	})

	t.Run("never mid-word", func(t *testing.T) {
		s := "mot1 mot2 mot3 mot4 mot5 mot6 mot7 mot8"
		out := SentenceTruncate(s, 22)
		assert.LessOrEqual(t, len(out), 22)
		if out != "" {
			for _, w := range strings.Fields(out) {
				assert.Contains(t, s, w)
			}
			assert.True(t, strings.HasPrefix(s, out))
		}
	})
}
