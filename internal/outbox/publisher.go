package outbox

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	outboxDBTimeout      = 5 * time.Second
	outboxPublishTimeout = 5 * time.Second
	outboxPollInterval   = 1 * time.Second
	outboxBatchSize      = 100
)

// MessageWriter is the part of *kafka.Writer the relay uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher relays unpublished outbox rows to Kafka and marks them published.
// Rows are locked with SKIP LOCKED so several replicas can relay concurrently.
type Publisher struct {
	db               *sql.DB
	writer           MessageWriter
	logger           *slog.Logger
	pollInterval     time.Duration
	onPublishFailure func()
}

func NewPublisher(db *sql.DB, writer MessageWriter, logger *slog.Logger, onPublishFailure func()) *Publisher {
	return &Publisher{
		db:               db,
		writer:           writer,
		logger:           logger,
		pollInterval:     outboxPollInterval,
		onPublishFailure: onPublishFailure,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.relayBatch(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("outbox relay failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type outboxEvent struct {
	ID        int64
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

func (p *Publisher) relayBatch(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	events, err := p.pending(ctx, tx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return tx.Commit()
	}

	for _, event := range events {
		if err := p.relay(ctx, event); err != nil {
			p.logger.Error("failed to publish outbox event", "error", err, "event_id", event.ID, "topic", event.Topic, "key", event.Key)
			if p.onPublishFailure != nil {
				p.onPublishFailure()
			}
			continue
		}

		updateCtx, updateCancel := context.WithTimeout(ctx, outboxDBTimeout)
		_, err = tx.ExecContext(updateCtx,
			"UPDATE outbox_events SET published_at = now() WHERE id = $1",
			event.ID,
		)
		updateCancel()
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *Publisher) pending(ctx context.Context, tx *sql.Tx) ([]outboxEvent, error) {
	dbCtx, cancel := context.WithTimeout(ctx, outboxDBTimeout)
	defer cancel()

	rows, err := tx.QueryContext(dbCtx,
		`SELECT id, topic, key, payload, created_at
		 FROM outbox_events
		 WHERE published_at IS NULL
		 ORDER BY created_at
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		outboxBatchSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outboxEvent
	for rows.Next() {
		var event outboxEvent
		if err := rows.Scan(&event.ID, &event.Topic, &event.Key, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (p *Publisher) relay(ctx context.Context, event outboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, outboxPublishTimeout)
	defer cancel()

	return p.writer.WriteMessages(ctx, message(event))
}

// message keys by object key so every event for one object lands on the
// same partition.
func message(event outboxEvent) kafka.Message {
	return kafka.Message{
		Topic: event.Topic,
		Key:   []byte(event.Key),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeObjectPublished)},
		},
	}
}
