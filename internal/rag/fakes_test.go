package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samargunners/par-delta-dashboard/internal/ai"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource serves fixed rows per table and counts reads.
type fakeSource struct {
	mu    sync.Mutex
	rows  map[string][]map[string]any
	fail  map[string]error
	calls map[string]int
	delay time.Duration
	// gate, when set, blocks every read until it is closed.
	gate chan struct{}
}

func newFakeSource(rows map[string][]map[string]any) *fakeSource {
	return &fakeSource{rows: rows, fail: map[string]error{}, calls: map[string]int{}}
}

func (s *fakeSource) FetchRows(ctx context.Context, spec TableSpec) ([]map[string]any, error) {
	s.mu.Lock()
	s.calls[spec.Name]++
	gate, delay := s.gate, s.delay
	err := s.fail[spec.Name]
	rows := s.rows[spec.Name]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *fakeSource) Calls(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[table]
}

func (s *fakeSource) SetGate(gate chan struct{}) {
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
}

func (s *fakeSource) SetFailure(table string, err error) {
	s.mu.Lock()
	s.fail[table] = err
	s.mu.Unlock()
}

// fakeEmbedder wraps the hashing embedder and can be told to fail.
type fakeEmbedder struct {
	*ai.HashingEmbedder
	name    string
	failErr atomic.Pointer[error]
	calls   atomic.Int64
	// hang makes every call block until its ctx is done.
	hang atomic.Bool
}

func newFakeEmbedder(name string, dims int) *fakeEmbedder {
	return &fakeEmbedder{HashingEmbedder: ai.NewHashingEmbedder(dims), name: name}
}

func (e *fakeEmbedder) Name() string { return e.name }

func (e *fakeEmbedder) FailWith(err error) { e.failErr.Store(&err) }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.hang.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p := e.failErr.Load(); p != nil && *p != nil {
		return nil, *p
	}
	return e.HashingEmbedder.EmbedBatch(ctx, texts)
}

// echoLLM answers with the first context line of the prompt.
type echoLLM struct {
	calls atomic.Int64
	err   error
}

func (l *echoLLM) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	l.calls.Add(1)
	if l.err != nil {
		return "", l.err
	}
	user := messages[len(messages)-1].Content
	for _, line := range strings.Split(user, "\n") {
		if strings.HasPrefix(line, "[1] ") {
			return "Based on the data: " + strings.TrimPrefix(line, "[1] "), nil
		}
	}
	return "", errors.New("no context in prompt")
}

var errQuota = &ai.ProviderError{Provider: "fake-primary", Kind: ai.KindQuota, StatusCode: 429, Message: "insufficient_quota"}

var laborWasteSpecs = []TableSpec{
	{Name: "labor_daily", RecordType: "labor", Columns: []string{"pc_number", "date", "labor_cost"}},
	{Name: "waste_daily", RecordType: "waste", Columns: []string{"pc_number", "date", "waste_percent"}},
}

func laborWasteRows() map[string][]map[string]any {
	return map[string][]map[string]any{
		"labor_daily": {{"pc_number": int64(357993), "date": "2024-01-05", "labor_cost": 150.0}},
		"waste_daily": {{"pc_number": int64(357993), "date": "2024-01-05", "waste_percent": 4.2}},
	}
}
