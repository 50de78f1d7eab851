package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Data          interface{}
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	logg *logger.Logger
	now  func() time.Time
}

func NewService(logg *logger.Logger) *Service {
	return &Service{logg: logg, now: time.Now}
}

// Emit builds the write that records event as pending. Callers put it in the
// same batch as the state change it describes.
func (s *Service) Emit(ctx context.Context, event DomainEvent) (docstore.Write, Event, error) {
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return docstore.Write{}, Event{}, errors.New("unknown event or aggregate type")
	}
	if event.AggregateID == "" {
		return docstore.Write{}, Event{}, errors.New("aggregate id required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return docstore.Write{}, Event{}, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if event.Version == 0 {
		event.Version = 1
	}

	row := Event{
		ID:            uuid.NewString(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Status:        enums.OutboxStatusPending,
		Payload: PayloadEnvelope{
			Version:    event.Version,
			OccurredAt: event.OccurredAt,
			Data:       payload,
		},
		CreatedAt: event.OccurredAt,
	}
	row.Payload.EventID = row.ID

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
		})
		s.logg.Info(logCtx, "outbox event queued")
	}

	return docstore.Write{
		Collection:    Collection,
		Key:           row.ID,
		Replace:       row,
		ExpectVersion: docstore.Version(0),
	}, row, nil
}

// CompleteWrite marks an existing event completed. Include it in the batch
// that performs the follow-up work so both land together.
func CompleteWrite(eventID string, at time.Time) docstore.Write {
	return docstore.Write{
		Collection: Collection,
		Key:        eventID,
		Fields: map[string]any{
			"status":       enums.OutboxStatusCompleted,
			"completed_at": at.UTC(),
		},
	}
}
