package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samargunners/par-delta-dashboard/internal/model"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
)

type memoryStore struct {
	entries []model.AskLog
	err     error
}

func (s *memoryStore) Create(_ context.Context, entry *model.AskLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *entry)
	return nil
}

type stubRefresher struct {
	calls int
	err   error
}

func (r *stubRefresher) Refresh(context.Context) (*rag.Snapshot, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &rag.Snapshot{Generation: uint64(r.calls), Chunks: 12}, nil
}

func TestAskLogWorkerHandle(t *testing.T) {
	store := &memoryStore{}
	w := NewAskLogWorker(nil, store, "q", slog.Default())

	err := w.handle(context.Background(), []byte(`{"id":9,"request_id":"r-1","question":"labor cost?","status":"answered","source_count":2}`))
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	assert.Equal(t, "r-1", store.entries[0].RequestID)
	assert.Zero(t, store.entries[0].ID)
	assert.Equal(t, 2, store.entries[0].SourceCount)

	assert.Error(t, w.handle(context.Background(), []byte(`not json`)))
	assert.Error(t, w.handle(context.Background(), []byte(`{"question":"no id"}`)))

	store.err = errors.New("db down")
	assert.Error(t, w.handle(context.Background(), []byte(`{"request_id":"r-2","question":"q"}`)))
}

func TestRefreshWorkerHandle(t *testing.T) {
	r := &stubRefresher{}
	w := NewRefreshWorker(nil, r, "q", 0, slog.Default())

	require.NoError(t, w.handle(context.Background(), []byte(`{"requested_by":"etl","reason":"nightly load"}`)))
	require.NoError(t, w.handle(context.Background(), nil))
	assert.Equal(t, 2, r.calls)

	assert.Error(t, w.handle(context.Background(), []byte(`{`)))

	r.err = rag.ErrDataUnavailable
	err := w.handle(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, rag.ErrDataUnavailable)
}
