// Package indexer provides document chunking and the ingestion pipeline.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/helpdesk/internal/models"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 20
)

// splitFunc breaks text into pieces whose concatenation equals text.
type splitFunc func(text string) []string

// boundaries are tried in order: paragraph, line, sentence, word. A piece that is still
// longer than the chunk size after the last boundary is cut by runes.
var boundaries = []splitFunc{
	splitAfter("\n\n"),
	splitAfter("\n"),
	splitSentences,
	splitAfter(" "),
}

// Chunker splits text into overlapping chunks of at most chunkSize runes, preferring
// structural boundaries over hard cuts.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in runes).
// Invalid values fall back to the defaults; overlap is kept below size.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into Chunks of docID with contiguous zero-based indices.
// Empty or whitespace-only text yields nil.
func (c *Chunker) Chunk(docID, text string) []*models.Chunk {
	parts := c.Split(text)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]*models.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = &models.Chunk{
			DocumentID: docID,
			Index:      i,
			Text:       p,
			Length:     utf8.RuneCountInString(p),
		}
	}
	return chunks
}

// Split returns the ordered chunk texts for text. The result is deterministic for a
// given text and chunker configuration.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.chunkSize {
		return []string{text}
	}
	return c.split(text, boundaries)
}

func (c *Chunker) split(text string, levels []splitFunc) []string {
	for i, fn := range levels {
		pieces := nonEmpty(fn(text))
		if len(pieces) < 2 {
			continue
		}
		return c.splitPieces(pieces, levels[i+1:])
	}
	return c.hardCut(text)
}

func (c *Chunker) splitPieces(pieces []string, rest []splitFunc) []string {
	var out, fits []string
	for _, p := range pieces {
		if utf8.RuneCountInString(p) <= c.chunkSize {
			fits = append(fits, p)
			continue
		}
		if len(fits) > 0 {
			out = append(out, c.merge(fits)...)
			fits = nil
		}
		out = append(out, c.split(p, rest)...)
	}
	if len(fits) > 0 {
		out = append(out, c.merge(fits)...)
	}
	return out
}

// merge packs pieces into windows of at most chunkSize runes. Each new window starts with
// the trailing pieces of the previous one, up to chunkOverlap runes.
func (c *Chunker) merge(pieces []string) []string {
	var out, window []string
	total := 0
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > c.chunkSize && len(window) > 0 {
			out = appendChunk(out, strings.Join(window, ""))
			for len(window) > 0 && (total > c.chunkOverlap || total+n > c.chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if len(window) > 0 {
		out = appendChunk(out, strings.Join(window, ""))
	}
	return out
}

// hardCut slices text into fixed windows. Surrounding whitespace is dropped first so the
// last window always carries runes the previous one did not.
func (c *Chunker) hardCut(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = appendChunk(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func appendChunk(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}

func nonEmpty(pieces []string) []string {
	out := pieces[:0:0]
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitAfter(sep string) splitFunc {
	return func(text string) []string { return strings.SplitAfter(text, sep) }
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				out = append(out, text[start:i+2])
				start = i + 2
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
