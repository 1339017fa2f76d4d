package model

import "strings"

// Metadata keys attached to documents and chunks.
const (
	MetaTable      = "table"
	MetaRecordType = "record_type"
	MetaKind       = "kind"
	MetaRecordID   = "record_id"
	MetaStore      = "store"
	MetaDate       = "date"
	MetaChunkIndex = "chunk_index"
	MetaOverlap    = "overlap"
)

// Document kinds.
const (
	KindRecord  = "record"
	KindSummary = "summary"
)

// Document is a unit of retrievable text derived from one or more business records.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Chunk is a bounded slice of a document's text. Overlap counts the leading
// runes shared with the previous chunk of the same document.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"index"`
	Text       string            `json:"text"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Overlap    int               `json:"overlap"`
	Metadata   map[string]string `json:"metadata"`
}

// JoinChunks rebuilds the document text from its ordered chunks by dropping
// each chunk's overlapping prefix.
func JoinChunks(chunks []Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 || c.Overlap <= 0 {
			b.WriteString(c.Text)
			continue
		}
		runes := []rune(c.Text)
		if c.Overlap >= len(runes) {
			continue
		}
		b.WriteString(string(runes[c.Overlap:]))
	}
	return b.String()
}
