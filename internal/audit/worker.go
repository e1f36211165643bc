package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"catcher/internal/platform/kafka"
)

const (
	drainInterval = 2 * time.Second
	drainBatch    = 100
)

// Worker drains unpublished outbox rows to Kafka. Rows are locked with SKIP
// LOCKED so multiple instances can run safely; a row is marked published only
// after the broker acknowledges it, giving at-least-once delivery.
type Worker struct {
	db       *sql.DB
	producer *kafka.Producer
	topic    string
	logger   *slog.Logger
}

// NewWorker constructs an outbox worker.
func NewWorker(db *sql.DB, producer *kafka.Producer, topic string, logger *slog.Logger) *Worker {
	return &Worker{db: db, producer: producer, topic: topic, logger: logger}
}

// Run drains the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_type, payload FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, drainBatch)
	if err != nil {
		return err
	}

	type outboxRow struct {
		id        uuid.UUID
		eventType string
		payload   []byte
	}
	var batch []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.eventType, &row.payload); err != nil {
			rows.Close()
			return err
		}
		batch = append(batch, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	for _, row := range batch {
		if err := w.producer.Publish(ctx, w.topic, []byte(row.eventType), row.payload); err != nil {
			// Leave the row unpublished; the next drain retries it.
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET published_at = now() WHERE id = $1`, row.id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
