package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubRelay struct{ runs int }

func (r *stubRelay) Run(ctx context.Context) error {
	r.runs++
	return ctx.Err()
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop(), DB: stubPinger{}})
	assert.Error(t, err)
}

func TestRunStopsWhenDatabaseUnavailable(t *testing.T) {
	relay := &stubRelay{}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), DB: stubPinger{err: errors.New("down")}, Relay: relay})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")
	assert.Zero(t, relay.runs)
}

func TestRunDrivesRelay(t *testing.T) {
	relay := &stubRelay{}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), DB: stubPinger{}, Relay: relay})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, relay.runs)
}
