package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samargunners/par-delta-dashboard/internal/platform/rabbitmq"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
)

type Refresher interface {
	Refresh(ctx context.Context) (*rag.Snapshot, error)
}

// RefreshWorker rebuilds the index when a refresh request arrives, so data
// loads show up without waiting for the cache to expire.
type RefreshWorker struct {
	consumer
	refresher Refresher
	timeout   time.Duration
}

func NewRefreshWorker(conn *amqp.Connection, refresher Refresher, queueName string, timeout time.Duration, log *slog.Logger) *RefreshWorker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	w := &RefreshWorker{refresher: refresher, timeout: timeout}
	w.consumer = consumer{conn: conn, queueName: queueName, handle: w.handle, log: log}
	return w
}

func (w *RefreshWorker) Start(ctx context.Context) error {
	return w.start(ctx)
}

func (w *RefreshWorker) Close() {
	w.close()
}

func (w *RefreshWorker) handle(ctx context.Context, body []byte) error {
	var req rabbitmq.RefreshRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("decode refresh request failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	snap, err := w.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh index failed: %w", err)
	}
	w.log.Info("index refreshed from queue",
		"requested_by", req.RequestedBy,
		"reason", req.Reason,
		"generation", snap.Generation,
		"chunks", snap.Chunks,
	)
	return nil
}
