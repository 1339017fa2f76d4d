package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samargunners/par-delta-dashboard/internal/ai"
	"github.com/samargunners/par-delta-dashboard/internal/model"
)

const (
	NotFoundText    = "I could not find that information in the available business data."
	UnavailableText = "I could not generate an answer right now because the language model is unavailable. Please try again shortly."
)

const analystPreamble = `You are a business analyst for a multi-store restaurant franchise.
Answer the question using only the business data in the context below.
Quote figures exactly as they appear, including store numbers and dates.
If the context does not contain the answer, say that the information is not in the available data. Never invent numbers.`

// LanguageModel generates a reply for a chat transcript.
type LanguageModel interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

type Composer struct {
	llm     LanguageModel
	retry   ai.RetryPolicy
	timeout time.Duration
}

func NewComposer(llm LanguageModel, retry ai.RetryPolicy, timeout time.Duration) *Composer {
	return &Composer{llm: llm, retry: retry, timeout: timeout}
}

// Compose answers question from chunks. With no chunks it returns the
// not-found answer without calling the model. A model failure returns an
// unavailable answer together with ErrAnswerUnavailable.
func (c *Composer) Compose(ctx context.Context, question string, chunks []model.ScoredChunk) (*model.Answer, error) {
	answer := &model.Answer{Question: question, Sources: chunks}
	if len(chunks) == 0 {
		answer.Status = model.AnswerNotFound
		answer.Text = NotFoundText
		return answer, nil
	}

	text, err := ai.Do(ctx, c.retry, func(ctx context.Context) (string, error) {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		out, err := c.llm.Complete(callCtx, BuildPrompt(question, chunks))
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			return "", ai.ClassifyTransport("llm", err)
		}
		return out, nil
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = &ai.ProviderError{Provider: "llm", Kind: ai.KindServer, Message: "empty completion"}
	}
	if err != nil {
		answer.Status = model.AnswerUnavailable
		answer.Text = UnavailableText
		return answer, fmt.Errorf("%w: %w", ErrAnswerUnavailable, err)
	}

	answer.Status = model.AnswerOK
	answer.Text = strings.TrimSpace(text)
	return answer, nil
}

// BuildPrompt lays out the analyst instructions, the context in rank order,
// then the question.
func BuildPrompt(question string, chunks []model.ScoredChunk) []ai.ChatMessage {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Chunk.Text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return []ai.ChatMessage{
		{Role: "system", Content: analystPreamble},
		{Role: "user", Content: b.String()},
	}
}
