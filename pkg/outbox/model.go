package outbox

import "time"

// Status moves pending -> in_progress (leased to one relay) -> sent. A row
// that keeps failing goes back to pending until maxAttempts, then failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

const HeaderEventID = "event_id"

// Event is one outbox row. AggregateID is the Kafka key.
type Event struct {
	ID            int64
	Topic         string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	Status        Status
	Attempts      int
	CreatedAt     time.Time
}

func (e Event) EventID() string { return e.Headers[HeaderEventID] }
