package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

type AskLogStore interface {
	Create(ctx context.Context, entry *model.AskLog) error
}

// AskLogWorker persists published ask logs.
type AskLogWorker struct {
	consumer
	store AskLogStore
}

func NewAskLogWorker(conn *amqp.Connection, store AskLogStore, queueName string, log *slog.Logger) *AskLogWorker {
	w := &AskLogWorker{store: store}
	w.consumer = consumer{conn: conn, queueName: queueName, handle: w.handle, log: log}
	return w
}

func (w *AskLogWorker) Start(ctx context.Context) error {
	return w.start(ctx)
}

func (w *AskLogWorker) Close() {
	w.close()
}

func (w *AskLogWorker) handle(ctx context.Context, body []byte) error {
	var entry model.AskLog
	if err := json.Unmarshal(body, &entry); err != nil {
		return fmt.Errorf("decode ask log failed: %w", err)
	}
	if entry.RequestID == "" || entry.Question == "" {
		return fmt.Errorf("ask log missing request id or question")
	}
	entry.ID = 0
	return w.store.Create(ctx, &entry)
}
