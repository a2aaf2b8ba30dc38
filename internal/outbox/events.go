package outbox

import "time"

const (
	EventTypeObjectPublished = "datalake.object.published"
	eventVersion             = "1"
)

type ObjectPublishedEvent struct {
	EventVersion string    `json:"event_version"`
	EventType    string    `json:"event_type"`
	EventID      string    `json:"event_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	TenantID     string    `json:"tenant_id"`
	Kind         string    `json:"kind"`
	Object       ObjectRef `json:"object"`
}

type ObjectRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
