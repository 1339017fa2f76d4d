package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/samargunners/par-delta-dashboard/internal/ai"
	"github.com/samargunners/par-delta-dashboard/internal/model"
)

type Config struct {
	TopK           int
	Threshold      float32
	TTL            time.Duration
	BlockOnRebuild bool

	BatchSize         int
	Concurrency       int
	RequestsPerSecond float64
	ProviderTimeout   time.Duration
	LLMTimeout        time.Duration
	Retry             ai.RetryPolicy
	RebuildTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		TopK:            5,
		Threshold:       0.5,
		TTL:             time.Hour,
		BatchSize:       100,
		Concurrency:     4,
		ProviderTimeout: 30 * time.Second,
		LLMTimeout:      90 * time.Second,
		Retry:           ai.DefaultRetryPolicy(),
		RebuildTimeout:  10 * time.Minute,
	}
}

// Snapshot is one complete, immutable build of the index. Readers that hold
// a snapshot keep a consistent view while a newer one is built.
type Snapshot struct {
	Generation      uint64
	Provider        ProviderKind
	ProviderLabel   string
	Index           *VectorIndex
	Tables          []string
	Documents       int
	Chunks          int
	Warnings        []string
	TablesFetchedAt time.Time
	BuiltAt         time.Time
}

// Status reports the session for health checks and the dashboard.
type Status struct {
	Ready           bool      `json:"ready"`
	Provider        string    `json:"provider"`
	ProviderLabel   string    `json:"provider_label"`
	Degraded        bool      `json:"degraded"`
	FallbackReason  string    `json:"fallback_reason,omitempty"`
	Generation      uint64    `json:"generation"`
	Tables          []string  `json:"tables"`
	Documents       int       `json:"documents"`
	Chunks          int       `json:"chunks"`
	Warnings        []string  `json:"warnings,omitempty"`
	TablesFetchedAt time.Time `json:"tables_fetched_at"`
	BuiltAt         time.Time `json:"built_at"`
	Stale           bool      `json:"stale"`
}

// Orchestrator owns the session: it builds the index on demand, swaps to the
// fallback provider when the primary cannot serve, and answers questions.
type Orchestrator struct {
	cfg       Config
	log       *slog.Logger
	fetcher   *TableFetcher
	builder   *DocumentBuilder
	splitter  *Splitter
	providers Providers
	state     *ProviderState
	retriever *Retriever
	composer  *Composer
	limiter   *rate.Limiter
	now       func() time.Time

	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	rebuildMu  sync.Mutex
	group      singleflight.Group
}

func NewOrchestrator(
	cfg Config,
	fetcher *TableFetcher,
	builder *DocumentBuilder,
	splitter *Splitter,
	providers Providers,
	state *ProviderState,
	llm LanguageModel,
	log *slog.Logger,
) (*Orchestrator, error) {
	if providers.Primary == nil && providers.Fallback == nil {
		return nil, ErrNoProvider
	}
	if providers.Get(state.Active()) == nil {
		return nil, fmt.Errorf("%w: %s provider not configured", ErrNoProvider, state.Active())
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		cfg:       cfg,
		log:       log,
		fetcher:   fetcher,
		builder:   builder,
		splitter:  splitter,
		providers: providers,
		state:     state,
		retriever: NewRetriever(cfg.TopK, cfg.Threshold),
		composer:  NewComposer(llm, cfg.Retry, cfg.LLMTimeout),
		now:       time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return o, nil
}

// Ask answers one question. An empty question gets the not-found answer
// without touching any provider.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*model.Answer, error) {
	ctx, span := tracer.Start(ctx, "rag.ask")
	defer span.End()
	started := o.now()

	question = strings.TrimSpace(question)
	if question == "" {
		answer := &model.Answer{Status: model.AnswerNotFound, Text: NotFoundText}
		if snap := o.current.Load(); snap != nil {
			o.annotate(answer, snap)
		}
		askTotal.WithLabelValues(string(answer.Status)).Inc()
		return answer, nil
	}

	chunks, snap, err := o.retrieve(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		askTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	answer, err := o.composer.Compose(ctx, question, chunks)
	o.annotate(answer, snap)
	askTotal.WithLabelValues(string(answer.Status)).Inc()
	askDuration.Observe(o.now().Sub(started).Seconds())
	span.SetAttributes(
		attribute.String("rag.status", string(answer.Status)),
		attribute.Int("rag.sources", len(chunks)),
		attribute.Int64("rag.generation", int64(snap.Generation)),
	)
	if err != nil {
		span.RecordError(err)
		return answer, err
	}
	return answer, nil
}

// Retrieve returns the chunks that would ground an answer to question.
func (o *Orchestrator) Retrieve(ctx context.Context, question string) ([]model.ScoredChunk, *Snapshot, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, o.current.Load(), nil
	}
	return o.retrieve(ctx, question)
}

func (o *Orchestrator) retrieve(ctx context.Context, question string) ([]model.ScoredChunk, *Snapshot, error) {
	snap, err := o.ensureIndex(ctx)
	if err != nil {
		return nil, nil, err
	}

	chunks, err := o.retriever.Retrieve(ctx, o.embedder(snap.Provider), snap.Index, question)
	if err == nil {
		return chunks, snap, nil
	}
	if snap.Provider != ProviderPrimary || !ai.TriggersFallback(err) || !o.switchToFallback(err) {
		return nil, nil, err
	}

	// the old index cannot be queried with the fallback provider
	snap, err = o.ensureIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	chunks, err = o.retriever.Retrieve(ctx, o.embedder(snap.Provider), snap.Index, question)
	if err != nil {
		return nil, nil, err
	}
	return chunks, snap, nil
}

// Refresh drops cached table data and builds a new index now.
func (o *Orchestrator) Refresh(ctx context.Context) (*Snapshot, error) {
	o.fetcher.Invalidate()
	return o.shared(ctx, "refresh", o.build)
}

// Current returns the snapshot being served, or nil before the first build.
func (o *Orchestrator) Current() *Snapshot {
	return o.current.Load()
}

func (o *Orchestrator) Status() Status {
	active := o.state.Active()
	st := Status{
		Provider:      active.String(),
		ProviderLabel: o.providers.Label(active),
		Degraded:      active == ProviderFallback,
	}
	if st.Degraded {
		st.FallbackReason = o.state.Reason()
	}
	snap := o.current.Load()
	if snap == nil {
		return st
	}
	st.Ready = snap.Provider == active
	st.Generation = snap.Generation
	st.Tables = snap.Tables
	st.Documents = snap.Documents
	st.Chunks = snap.Chunks
	st.Warnings = snap.Warnings
	st.TablesFetchedAt = snap.TablesFetchedAt
	st.BuiltAt = snap.BuiltAt
	st.Stale = o.stale(snap)
	if len(snap.Warnings) > 0 {
		st.Degraded = true
	}
	return st
}

// ensureIndex returns a snapshot usable with the active provider. An expired
// snapshot for the same provider is served while a rebuild runs in the
// background, unless BlockOnRebuild is set.
func (o *Orchestrator) ensureIndex(ctx context.Context) (*Snapshot, error) {
	snap := o.current.Load()
	if snap != nil && snap.Provider == o.state.Active() {
		if !o.stale(snap) {
			return snap, nil
		}
		if !o.cfg.BlockOnRebuild {
			o.rebuildInBackground()
			return snap, nil
		}
	}
	return o.rebuild(ctx)
}

func (o *Orchestrator) rebuild(ctx context.Context) (*Snapshot, error) {
	return o.shared(ctx, "rebuild", func(ctx context.Context) (*Snapshot, error) {
		if snap := o.current.Load(); snap != nil && snap.Provider == o.state.Active() && !o.stale(snap) {
			return snap, nil
		}
		return o.build(ctx)
	})
}

// shared runs fn once per key for all concurrent callers. fn runs detached
// from the caller that started it, bounded by RebuildTimeout, so one caller
// giving up does not fail the others.
func (o *Orchestrator) shared(ctx context.Context, key string, fn func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	ch := o.group.DoChan(key, func() (any, error) {
		buildCtx, cancel := detach(ctx, o.cfg.RebuildTimeout)
		defer cancel()
		return fn(buildCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) rebuildInBackground() {
	go func() {
		if _, err := o.rebuild(context.Background()); err != nil {
			o.log.Error("background index rebuild failed", "error", err)
		}
	}()
}

// build runs one full fetch, split and embed cycle and publishes the result.
// Only one build runs at a time.
func (o *Orchestrator) build(ctx context.Context) (*Snapshot, error) {
	o.rebuildMu.Lock()
	defer o.rebuildMu.Unlock()

	ctx, span := tracer.Start(ctx, "rag.rebuild")
	defer span.End()
	started := o.now()

	tables, err := o.fetcher.FetchAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rebuildTotal.WithLabelValues(o.state.Active().String(), "fetch_error").Inc()
		return nil, err
	}
	docs := o.builder.Build(tables)
	chunks := o.splitter.SplitAll(docs)

	for {
		kind := o.state.Active()
		label := o.providers.Label(kind)
		o.log.Info("index rebuild started", "provider", label, "documents", len(docs), "chunks", len(chunks))

		vectors, err := o.embedChunks(ctx, kind, chunks)
		if err != nil {
			rebuildTotal.WithLabelValues(kind.String(), "embed_error").Inc()
			if kind == ProviderPrimary && ai.TriggersFallback(err) && o.switchToFallback(err) {
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("embed chunks failed: %w", err)
		}

		entries := make([]IndexEntry, len(chunks))
		for i := range chunks {
			entries[i] = IndexEntry{Chunk: chunks[i], Vector: vectors[i]}
		}
		index, err := BuildIndex(label, entries)
		if err != nil {
			rebuildTotal.WithLabelValues(kind.String(), "index_error").Inc()
			return nil, fmt.Errorf("build index failed: %w", err)
		}

		snap := &Snapshot{
			Generation:      o.generation.Add(1),
			Provider:        kind,
			ProviderLabel:   label,
			Index:           index,
			Tables:          tables.Order,
			Documents:       len(docs),
			Chunks:          len(chunks),
			Warnings:        tables.Warnings(),
			TablesFetchedAt: tables.FetchedAt,
			BuiltAt:         o.now(),
		}
		o.current.Store(snap)

		elapsed := o.now().Sub(started)
		rebuildTotal.WithLabelValues(kind.String(), "ok").Inc()
		rebuildDuration.Observe(elapsed.Seconds())
		indexChunks.Set(float64(len(chunks)))
		span.SetAttributes(
			attribute.String("rag.provider", label),
			attribute.Int("rag.chunks", len(chunks)),
			attribute.Int64("rag.generation", int64(snap.Generation)),
		)
		o.log.Info("index rebuild finished",
			"provider", label,
			"generation", snap.Generation,
			"tables", len(tables.Order),
			"documents", len(docs),
			"chunks", len(chunks),
			"duration", elapsed,
		)
		return snap, nil
	}
}

// embedChunks embeds chunk texts in batches, in parallel, keeping order.
func (o *Orchestrator) embedChunks(ctx context.Context, kind ProviderKind, chunks []model.Chunk) ([][]float32, error) {
	embedder := o.embedder(kind)
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for start := 0; start < len(chunks); start += o.cfg.BatchSize {
		end := min(start+o.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			vecs, err := embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (o *Orchestrator) embedder(kind ProviderKind) Embedder {
	return guard(o.providers.Get(kind), o.cfg.Retry, o.cfg.ProviderTimeout, o.limiter)
}

// switchToFallback reports whether the session is now on a usable fallback.
func (o *Orchestrator) switchToFallback(cause error) bool {
	if o.providers.Fallback == nil {
		return false
	}
	if o.state.SwitchToFallback(cause.Error()) {
		providerFallbackTotal.Inc()
		o.log.Warn("embedding provider switched to fallback",
			"from", o.providers.Label(ProviderPrimary),
			"to", o.providers.Label(ProviderFallback),
			"error", cause,
		)
	}
	return o.state.Active() == ProviderFallback
}

func (o *Orchestrator) stale(snap *Snapshot) bool {
	return o.cfg.TTL > 0 && o.now().Sub(snap.TablesFetchedAt) >= o.cfg.TTL
}

func (o *Orchestrator) annotate(answer *model.Answer, snap *Snapshot) {
	answer.Provider = snap.ProviderLabel
	answer.Generation = snap.Generation
	if snap.Provider == ProviderFallback {
		notice := "Answered in degraded mode with the fallback embedding provider " + snap.ProviderLabel
		if reason := o.state.Reason(); reason != "" {
			notice += " (" + reason + ")"
		}
		answer.Notices = append(answer.Notices, notice)
	}
	answer.Notices = append(answer.Notices, snap.Warnings...)
}

// IsUnavailable reports whether err means the pipeline could not produce an answer.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrAnswerUnavailable) || errors.Is(err, ErrDataUnavailable) || errors.Is(err, ErrNoProvider)
}
