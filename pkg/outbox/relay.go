package outbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/metrics"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 2 * time.Second
	defaultMaxAttempts = 10
	maxBackoff         = 30 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type relayRepository interface {
	Pending(ctx context.Context, limit int) ([]Event, error)
	RecordFailure(ctx context.Context, event Event, cause error, terminal bool) error
}

type RelayParams struct {
	Logger       *logger.Logger
	Repository   relayRepository
	Registry     *HandlerRegistry
	Metrics      *metrics.CoordinatorMetrics
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
}

// Relay re-drives pending intent events until their handler completes them
// or they exhaust their attempts.
type Relay struct {
	logg         *logger.Logger
	repo         relayRepository
	registry     *HandlerRegistry
	metrics      *metrics.CoordinatorMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("handler registry is required")
	}
	r := &Relay{
		logg:         params.Logger,
		repo:         params.Repository,
		registry:     params.Registry,
		metrics:      params.Metrics,
		batchSize:    params.BatchSize,
		maxAttempts:  params.MaxAttempts,
		pollInterval: params.PollInterval,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPoll
	}
	return r, nil
}

func (r *Relay) Run(ctx context.Context) error {
	backoff := r.pollInterval
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "outbox relay context canceled")
			return ctx.Err()
		default:
		}

		processed, err := r.ProcessBatch(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox relay batch error", err)
			backoff = nextBackoff(backoff, r.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = r.pollInterval

		if processed > 0 && processed == r.batchSize {
			continue
		}
		if err := sleep(ctx, withJitter(r.pollInterval)); err != nil {
			return err
		}
	}
}

// ProcessBatch handles one page of pending events and returns how many were
// looked at. Handler failures are recorded on the event, not returned.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	events, err := r.repo.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	for _, event := range events {
		fields := map[string]any{
			"outbox_id":     event.ID,
			"event_type":    event.EventType,
			"aggregate_id":  event.AggregateID,
			"attempt_count": event.AttemptCount,
		}
		eventCtx := r.logg.WithFields(ctx, fields)

		handler, err := r.registry.Resolve(event.EventType)
		if err != nil {
			if markErr := r.fail(eventCtx, event, err, true); markErr != nil {
				return len(events), markErr
			}
			continue
		}

		if err := handler(eventCtx, event); err != nil {
			attempts := event.AttemptCount + 1
			terminal := attempts >= r.maxAttempts || isPermanent(err)
			if terminal && attempts >= r.maxAttempts {
				err = fmt.Errorf("max attempts reached: %w", err)
			}
			if markErr := r.fail(eventCtx, event, err, terminal); markErr != nil {
				return len(events), markErr
			}
			continue
		}

		r.metrics.IncRelayEvent(string(event.EventType), "completed")
		r.logg.Info(eventCtx, "outbox event completed")
	}
	return len(events), nil
}

func (r *Relay) fail(ctx context.Context, event Event, cause error, terminal bool) error {
	ctx = r.logg.WithFields(ctx, pkgerrors.Dump(cause).Fields())
	outcome := "retry"
	if terminal {
		outcome = "dead"
		r.logg.Warn(ctx, "outbox event will not be retried")
	} else {
		r.logg.Warn(ctx, "outbox event failed")
	}
	r.metrics.IncRelayEvent(string(event.EventType), outcome)

	if err := r.repo.RecordFailure(ctx, event, cause, terminal); err != nil {
		// the handler may have completed the event concurrently
		if errors.Is(err, docstore.ErrVersionConflict) {
			return nil
		}
		return fmt.Errorf("record failure %s: %w", event.ID, err)
	}
	return nil
}

// isPermanent reports errors whose code says repeating cannot help.
func isPermanent(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
