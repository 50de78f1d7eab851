package docstore

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on next. A call that runs past its deadline
// surfaces as a retryable dependency error.
func WithTimeout(next Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: timeout}
}

func (s *timeoutStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc, err := s.next.Get(ctx, collection, key)
	return doc, deadlineError(ctx, err)
}

func (s *timeoutStore) QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	docs, err := s.next.QueryByField(ctx, collection, field, value)
	return docs, deadlineError(ctx, err)
}

func (s *timeoutStore) QueryOldest(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	docs, err := s.next.QueryOldest(ctx, collection, field, value, limit)
	return docs, deadlineError(ctx, err)
}

func (s *timeoutStore) BatchWrite(ctx context.Context, writes []Write) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return deadlineError(ctx, s.next.BatchWrite(ctx, writes))
}

func deadlineError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "document store timed out")
	}
	return err
}

// AppError maps store sentinels onto application error codes. Errors that
// already carry a code pass through.
func AppError(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	case errors.Is(err, ErrVersionConflict):
		return pkgerrors.Wrap(pkgerrors.CodeVersionConflict, err, message)
	case errors.Is(err, ErrInvalidWrite):
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}
