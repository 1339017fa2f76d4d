package model

// AnswerStatus tells callers whether the text is a grounded answer.
type AnswerStatus string

const (
	AnswerOK          AnswerStatus = "answered"
	AnswerNotFound    AnswerStatus = "not_found"
	AnswerUnavailable AnswerStatus = "unavailable"
)

// ScoredChunk is a retrieved chunk with its similarity to the question.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Answer is the result of one question.
type Answer struct {
	Question   string        `json:"question"`
	Text       string        `json:"text"`
	Status     AnswerStatus  `json:"status"`
	Sources    []ScoredChunk `json:"sources,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	Generation uint64        `json:"generation"`
	Notices    []string      `json:"notices,omitempty"`
	Cached     bool          `json:"cached"`
}
