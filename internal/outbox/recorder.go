package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"datavant-style-exchange/datalake/internal/datalake"
)

const recordTimeout = 5 * time.Second

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var _ datalake.Notifier = (*Recorder)(nil)

// Recorder turns published datalake objects into outbox rows that Publisher
// later relays to Kafka.
type Recorder struct {
	db    Execer
	topic string
	now   func() time.Time
	newID func() string
}

func NewRecorder(db Execer, topic string) *Recorder {
	return &Recorder{
		db:    db,
		topic: topic,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// ObjectsPublished inserts one event per object in a single statement.
func (r *Recorder) ObjectsPublished(ctx context.Context, objects []datalake.PublishedObject) error {
	if len(objects) == 0 {
		return nil
	}

	var query strings.Builder
	query.WriteString("INSERT INTO outbox_events (topic, key, payload) VALUES ")
	args := make([]any, 0, len(objects)*3)
	for i, object := range objects {
		payload, err := json.Marshal(r.event(object))
		if err != nil {
			return err
		}
		if i > 0 {
			query.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&query, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, r.topic, object.Key, payload)
	}

	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if _, err := r.db.ExecContext(ctx, query.String(), args...); err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}
	return nil
}

func (r *Recorder) event(object datalake.PublishedObject) ObjectPublishedEvent {
	return ObjectPublishedEvent{
		EventVersion: eventVersion,
		EventType:    EventTypeObjectPublished,
		EventID:      r.newID(),
		OccurredAt:   r.now(),
		TenantID:     object.TenantID,
		Kind:         object.Kind,
		Object: ObjectRef{
			Key: object.Key,
			URL: object.URL,
		},
	}
}
