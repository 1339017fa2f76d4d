package rag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

// SplitterConfig bounds chunk sizes in runes.
type SplitterConfig struct {
	Size    int
	Overlap int
	// Tolerance is how far back from the hard limit a cut may move to land
	// on a sentence or word boundary.
	Tolerance int
}

func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{Size: 1000, Overlap: 200, Tolerance: 100}
}

func (c SplitterConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSplitter, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidSplitter, c.Size, c.Overlap)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative, got %d", ErrInvalidSplitter, c.Tolerance)
	}
	return nil
}

// Splitter cuts documents into overlapping chunks no longer than Size runes.
type Splitter struct {
	cfg SplitterConfig
}

func NewSplitter(cfg SplitterConfig) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// SplitAll splits every document, keeping document order.
func (s *Splitter) SplitAll(docs []model.Document) []model.Chunk {
	var out []model.Chunk
	for _, d := range docs {
		out = append(out, s.Split(d)...)
	}
	return out
}

// Split returns the ordered chunks of doc. Every chunk after the first starts
// Overlap runes before the end of its predecessor, so model.JoinChunks gives
// back the original text. Empty documents produce no chunks.
func (s *Splitter) Split(doc model.Document) []model.Chunk {
	runes := []rune(doc.Text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []model.Chunk
	start, prevEnd := 0, 0
	for {
		end := start + s.cfg.Size
		final := end >= n
		if final {
			end = n
		} else {
			end = s.cut(runes, start, end)
		}

		overlap := 0
		if len(chunks) > 0 {
			overlap = prevEnd - start
		}
		chunks = append(chunks, newChunk(doc, len(chunks), runes, start, end, overlap))
		if final {
			return chunks
		}
		prevEnd = end
		start = end - s.cfg.Overlap
	}
}

// cut picks the chunk end in (start, limit]. It prefers a sentence boundary,
// then whitespace, within the tolerance window, and never moves so far back
// that the next chunk would fail to advance.
func (s *Splitter) cut(runes []rune, start, limit int) int {
	lo := limit - s.cfg.Tolerance
	if floor := start + s.cfg.Overlap + 1; lo < floor {
		lo = floor
	}
	for c := limit; c >= lo; c-- {
		if sentenceBreak(runes, start, c) {
			return c
		}
	}
	for c := limit; c >= lo; c-- {
		if unicode.IsSpace(runes[c-1]) {
			return c
		}
	}
	return limit
}

// sentenceBreak reports whether a cut before index c follows a line break or
// the whitespace after terminal punctuation.
func sentenceBreak(runes []rune, start, c int) bool {
	if runes[c-1] == '\n' {
		return true
	}
	return c-2 >= start && unicode.IsSpace(runes[c-1]) && strings.ContainsRune(".!?;", runes[c-2])
}

func newChunk(doc model.Document, index int, runes []rune, start, end, overlap int) model.Chunk {
	meta := make(map[string]string, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[model.MetaChunkIndex] = strconv.Itoa(index)
	meta[model.MetaOverlap] = strconv.Itoa(overlap)

	return model.Chunk{
		ID:         uuid.NewSHA1(chunkNamespace, []byte(doc.ID+":"+strconv.Itoa(index))).String(),
		DocumentID: doc.ID,
		Index:      index,
		Text:       string(runes[start:end]),
		Start:      start,
		End:        end,
		Overlap:    overlap,
		Metadata:   meta,
	}
}
