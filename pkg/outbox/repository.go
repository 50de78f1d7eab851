package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
)

type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Pending returns up to limit pending events, oldest first.
func (r *Repository) Pending(ctx context.Context, limit int) ([]Event, error) {
	docs, err := r.store.QueryOldest(ctx, Collection, "status", enums.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	return decodeEvents(docs)
}

// PendingForAggregate returns the pending events recorded for one aggregate.
func (r *Repository) PendingForAggregate(ctx context.Context, aggregateID string) ([]Event, error) {
	docs, err := r.store.QueryByField(ctx, Collection, "aggregate_id", aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", aggregateID, err)
	}
	events, err := decodeEvents(docs)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, event := range events {
		if event.Status == enums.OutboxStatusPending {
			out = append(out, event)
		}
	}
	return out, nil
}

// RecordFailure bumps the attempt count and stores the error. Terminal
// failures move the event to dead so the relay stops picking it up.
func (r *Repository) RecordFailure(ctx context.Context, event Event, cause error, terminal bool) error {
	status := enums.OutboxStatusPending
	if terminal {
		status = enums.OutboxStatusDead
	}
	msg := pkgerrors.Dump(cause).TopMessage
	return r.store.BatchWrite(ctx, []docstore.Write{{
		Collection: Collection,
		Key:        event.ID,
		Fields: map[string]any{
			"status":        status,
			"attempt_count": event.AttemptCount + 1,
			"last_error":    msg,
		},
		ExpectVersion: docstore.Version(event.Version),
	}})
}

// CompletedBefore lists completed events settled before cutoff.
func (r *Repository) CompletedBefore(ctx context.Context, cutoff time.Time) ([]Event, error) {
	docs, err := r.store.QueryByField(ctx, Collection, "status", enums.OutboxStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("query completed events: %w", err)
	}
	events, err := decodeEvents(docs)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, event := range events {
		if event.CompletedAt != nil && event.CompletedAt.Before(cutoff) {
			out = append(out, event)
		}
	}
	return out, nil
}

// Purge deletes events in one batch. An event touched since it was read
// fails the whole batch with a version conflict.
func (r *Repository) Purge(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	writes := make([]docstore.Write, 0, len(events))
	for _, event := range events {
		writes = append(writes, docstore.Write{
			Collection:    Collection,
			Key:           event.ID,
			Delete:        true,
			ExpectVersion: docstore.Version(event.Version),
		})
	}
	return r.store.BatchWrite(ctx, writes)
}

func decodeEvents(docs []docstore.Document) ([]Event, error) {
	events := make([]Event, 0, len(docs))
	for i := range docs {
		var event Event
		if err := docs[i].Decode(&event); err != nil {
			return nil, err
		}
		event.Version = docs[i].Version
		events = append(events, event)
	}
	return events, nil
}
