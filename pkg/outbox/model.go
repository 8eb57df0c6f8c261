package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is a leased outbox row. AggregateID is the unique order number and
// becomes the Kafka key; Payload is published unchanged as the value.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	// RetryCount is the number of earlier failed publish attempts.
	RetryCount int
}

// Attempt is the 1-based publish attempt this lease represents.
func (e Event) Attempt() int { return e.RetryCount + 1 }
