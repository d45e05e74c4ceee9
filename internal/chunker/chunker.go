// Package chunker splits curriculum documents into bounded, deterministically
// identified chunks for indexing.
package chunker

import (
	"log"
	"strings"
	"unicode"

	"tutorat/internal/model"
)

const (
	DefaultMinLen          = 200
	DefaultMaxLen          = 1200
	DefaultOverlapFraction = 0.15
)

// Chunker produces chunks whose length stays within [minLen, maxLen], cutting
// at sentence boundaries where possible and carrying a configurable overlap
// between consecutive chunks. A document shorter than minLen becomes a single
// chunk holding the whole document.
type Chunker struct {
	minLen  int
	maxLen  int
	overlap float64
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithBounds sets the chunk length bounds in bytes.
func WithBounds(minLen, maxLen int) Option {
	return func(c *Chunker) {
		if minLen > 0 {
			c.minLen = minLen
		}
		if maxLen > 0 {
			c.maxLen = maxLen
		}
	}
}

// WithOverlapFraction sets the fraction of maxLen repeated between chunks.
func WithOverlapFraction(f float64) Option {
	return func(c *Chunker) {
		if f >= 0 && f < 1 {
			c.overlap = f
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		minLen:  DefaultMinLen,
		maxLen:  DefaultMaxLen,
		overlap: DefaultOverlapFraction,
	}
	for _, opt := range opts {
		opt(c)
	}
	// The bounds must satisfy maxLen >= 2*minLen: a remainder just over
	// maxLen has to split into two chunks of at least minLen each. Tighter
	// bounds leave some document lengths unsplittable.
	if 2*c.minLen > c.maxLen {
		c.minLen = c.maxLen / 2
	}
	return c
}

// Chunk splits the document. Chunk IDs are a pure function of
// (document ID, chunk index), so re-chunking unchanged content yields
// byte-identical chunks with identical IDs.
func (c *Chunker) Chunk(doc *model.Document) []model.Chunk {
	content := doc.Content
	base := 0
	for base < len(content) && isSpaceByte(content[base]) {
		base++
	}
	end := len(content)
	for end > base && isSpaceByte(content[end-1]) {
		end--
	}
	if base == end {
		log.Printf("chunker: document %q is empty, producing no chunks", doc.ID)
		return nil
	}

	text := content[base:end]
	if len(text) <= c.minLen {
		return []model.Chunk{{
			ID:          model.ChunkID(doc.ID, 0),
			DocumentID:  doc.ID,
			Index:       0,
			Content:     text,
			StartOffset: base,
			EndOffset:   end,
		}}
	}

	overlapChars := int(float64(c.maxLen) * c.overlap)
	var chunks []model.Chunk
	pos := 0
	for pos < len(text) {
		cut := c.cutPoint(text, pos)

		// Avoid stranding a tail shorter than minLen: either absorb it into
		// this chunk or pull the cut back so the tail stays within bounds.
		if rest := len(text) - cut; rest > 0 && rest < c.minLen {
			if len(text)-pos <= c.maxLen {
				cut = len(text)
			} else {
				cut = snapToBoundary(text, pos+c.minLen, len(text)-c.minLen)
			}
		}

		chunks = append(chunks, model.Chunk{
			ID:          model.ChunkID(doc.ID, len(chunks)),
			DocumentID:  doc.ID,
			Index:       len(chunks),
			Content:     text[pos:cut],
			StartOffset: base + pos,
			EndOffset:   base + cut,
		})
		if cut >= len(text) {
			break
		}

		next := cut - overlapChars
		if next <= pos {
			next = pos + 1
		}
		pos = wordStart(text, next)
		if pos <= chunks[len(chunks)-1].StartOffset-base {
			pos = cut
		}
	}
	return chunks
}

// cutPoint finds where the chunk starting at pos should end: the latest
// sentence boundary within [pos+minLen, pos+maxLen], falling back to a word
// boundary, falling back to a hard cut.
func (c *Chunker) cutPoint(text string, pos int) int {
	limit := pos + c.maxLen
	if limit >= len(text) {
		return len(text)
	}
	floor := pos + c.minLen
	return snapToBoundary(text, floor, limit)
}

// snapToBoundary returns the latest cut position in (floor, limit] that ends a
// sentence; failing that, one that ends a word; failing that, limit itself.
func snapToBoundary(text string, floor, limit int) int {
	for i := limit; i > floor; i-- {
		if isSentenceEnd(text, i) {
			return i
		}
	}
	for i := limit; i > floor; i-- {
		if isSpaceByte(text[i-1]) {
			return i
		}
	}
	return limit
}

// isSentenceEnd reports whether position i sits right after terminal
// punctuation followed by whitespace (or a newline).
func isSentenceEnd(text string, i int) bool {
	if i <= 0 || i >= len(text) {
		return i == len(text)
	}
	prev := text[i-1]
	if prev == '\n' {
		return true
	}
	if prev != '.' && prev != '!' && prev != '?' {
		return false
	}
	return isSpaceByte(text[i])
}

// wordStart advances pos to the beginning of the next word so overlap never
// starts mid-word.
func wordStart(text string, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(text) {
		return len(text)
	}
	for pos < len(text) && !isSpaceByte(text[pos]) && !isSpaceByte(text[pos-1]) {
		pos++
	}
	for pos < len(text) && isSpaceByte(text[pos]) {
		pos++
	}
	return pos
}

func isSpaceByte(b byte) bool {
	return b < 0x80 && unicode.IsSpace(rune(b))
}

// SentenceTruncate cuts s at the nearest sentence boundary at or before max
// bytes, falling back to a word boundary. It never cuts mid-word. Shared by the
// retrieval context assembler.
func SentenceTruncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := max; i > 0; i-- {
		if isSentenceEnd(s, i) {
			cut = i
			break
		}
	}
	if cut == 0 {
		for i := max; i > 0; i-- {
			if isSpaceByte(s[i-1]) {
				cut = i
				break
			}
		}
	}
	return strings.TrimRight(s[:cut], " \t\n")
}
