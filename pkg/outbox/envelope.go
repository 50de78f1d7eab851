package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/enums"
)

// Collection holds every intent event document.
const Collection = "outbox_events"

// PayloadEnvelope is the stable payload structure stored on each event.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Decode unmarshals the envelope data into dest.
func (p PayloadEnvelope) Decode(dest any) error {
	if len(p.Data) == 0 {
		return fmt.Errorf("event %s has empty payload", p.EventID)
	}
	if err := json.Unmarshal(p.Data, dest); err != nil {
		return fmt.Errorf("decode event %s payload: %w", p.EventID, err)
	}
	return nil
}

// Event is an intent recorded in the same batch as the state change that
// requires follow-up work.
type Event struct {
	ID            string                    `json:"id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	Status        enums.OutboxStatus        `json:"status"`
	AttemptCount  int                       `json:"attempt_count"`
	LastError     *string                   `json:"last_error,omitempty"`
	Payload       PayloadEnvelope           `json:"payload"`
	CreatedAt     time.Time                 `json:"created_at"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty"`

	Version int64 `json:"-"`
}
