package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/samargunners/par-delta-dashboard/internal/model"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
)

const (
	maxQuestionRunes = 2000
	publishTimeout   = 2 * time.Second
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRAGDisabled  = errors.New("rag pipeline disabled")
)

// Pipeline is the question-answering core; *rag.Orchestrator implements it.
type Pipeline interface {
	Ask(ctx context.Context, question string) (*model.Answer, error)
	Retrieve(ctx context.Context, question string) ([]model.ScoredChunk, *rag.Snapshot, error)
	Refresh(ctx context.Context) (*rag.Snapshot, error)
	Status() rag.Status
}

type AnswerCache interface {
	Get(ctx context.Context, provider string, generation uint64, question string) (*model.Answer, bool, error)
	Set(ctx context.Context, answer *model.Answer) error
}

type AskLogPublisher interface {
	PublishAskLog(ctx context.Context, entry model.AskLog) error
}

type RAGService struct {
	pipeline  Pipeline
	cache     AnswerCache
	publisher AskLogPublisher
	disabled  error
	log       *slog.Logger
}

// NewRAGService wires the pipeline with its optional cache and publisher;
// either may be nil.
func NewRAGService(pipeline Pipeline, cache AnswerCache, publisher AskLogPublisher, log *slog.Logger) *RAGService {
	if log == nil {
		log = slog.Default()
	}
	return &RAGService{
		pipeline:  pipeline,
		cache:     cache,
		publisher: publisher,
		log:       log,
	}
}

// NewDisabledRAGService reports reason on every call. The server keeps its
// other routes up when the pipeline cannot be configured.
func NewDisabledRAGService(reason error) *RAGService {
	return &RAGService{disabled: reason, log: slog.Default()}
}

type AskInput struct {
	UserID         uint
	Question       string
	IncludeSources bool
}

type RetrieveResult struct {
	Question   string              `json:"question"`
	Chunks     []model.ScoredChunk `json:"chunks"`
	Provider   string              `json:"provider"`
	Generation uint64              `json:"generation"`
}

func (s *RAGService) Ask(ctx context.Context, input AskInput) (*model.Answer, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(input.Question)
	if utf8.RuneCountInString(question) > maxQuestionRunes {
		return nil, fmt.Errorf("%w: question longer than %d characters", ErrInvalidInput, maxQuestionRunes)
	}

	if cached := s.cached(ctx, question); cached != nil {
		s.publish(ctx, input.UserID, cached)
		return shape(cached, input.IncludeSources), nil
	}

	answer, err := s.pipeline.Ask(ctx, question)
	if answer != nil {
		s.publish(ctx, input.UserID, answer)
	}
	if err != nil {
		if answer != nil {
			return shape(answer, input.IncludeSources), err
		}
		return nil, err
	}

	if s.cache != nil && answer.Status == model.AnswerOK {
		if err := s.cache.Set(ctx, answer); err != nil {
			s.log.Warn("answer cache set failed", "error", err)
		}
	}
	return shape(answer, input.IncludeSources), nil
}

func (s *RAGService) Retrieve(ctx context.Context, question string) (*RetrieveResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}

	chunks, snap, err := s.pipeline.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	result := &RetrieveResult{Question: question, Chunks: chunks}
	if snap != nil {
		result.Provider = snap.ProviderLabel
		result.Generation = snap.Generation
	}
	return result, nil
}

func (s *RAGService) Refresh(ctx context.Context) (rag.Status, error) {
	if err := s.ready(); err != nil {
		return rag.Status{}, err
	}
	if _, err := s.pipeline.Refresh(ctx); err != nil {
		return s.pipeline.Status(), err
	}
	return s.pipeline.Status(), nil
}

func (s *RAGService) Status() (rag.Status, error) {
	if err := s.ready(); err != nil {
		return rag.Status{}, err
	}
	return s.pipeline.Status(), nil
}

func (s *RAGService) ready() error {
	if s.pipeline != nil {
		return nil
	}
	if s.disabled != nil {
		return fmt.Errorf("%w: %w", ErrRAGDisabled, s.disabled)
	}
	return ErrRAGDisabled
}

// cached returns a stored answer for the index generation being served.
func (s *RAGService) cached(ctx context.Context, question string) *model.Answer {
	if s.cache == nil || question == "" {
		return nil
	}
	st := s.pipeline.Status()
	if !st.Ready || st.Stale {
		return nil
	}
	answer, hit, err := s.cache.Get(ctx, st.ProviderLabel, st.Generation, question)
	if err != nil {
		s.log.Warn("answer cache get failed", "error", err)
		return nil
	}
	if !hit {
		return nil
	}
	answer.Cached = true
	return answer
}

func (s *RAGService) publish(ctx context.Context, userID uint, answer *model.Answer) {
	if s.publisher == nil || answer.Question == "" {
		return
	}
	entry := model.AskLog{
		RequestID:   uuid.NewString(),
		UserID:      userID,
		Question:    answer.Question,
		Answer:      answer.Text,
		Status:      string(answer.Status),
		Provider:    answer.Provider,
		Generation:  answer.Generation,
		SourceCount: len(answer.Sources),
		Cached:      answer.Cached,
		CreatedAt:   time.Now(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishAskLog(pubCtx, entry); err != nil {
		s.log.Warn("publish ask log failed", "request_id", entry.RequestID, "error", err)
	}
}

func shape(answer *model.Answer, includeSources bool) *model.Answer {
	out := *answer
	if !includeSources {
		out.Sources = nil
	}
	return &out
}
