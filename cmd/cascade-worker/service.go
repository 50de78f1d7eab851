package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

const metricsShutdownTimeout = 5 * time.Second

type pinger interface {
	Ping(context.Context) error
}

type relayRunner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	DB           pinger
	Relay        relayRunner
	MetricsAddr  string
	MetricsRoute http.Handler
}

// Service checks its dependencies once and then drives the relay until the
// context ends. A metrics listener runs alongside when an address is set.
type Service struct {
	logg          *logger.Logger
	db            pinger
	relay         relayRunner
	metricsServer *http.Server
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Relay == nil {
		return nil, errors.New("relay is required")
	}
	svc := &Service{logg: params.Logger, db: params.DB, relay: params.Relay}
	if params.MetricsAddr != "" && params.MetricsRoute != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", params.MetricsRoute)
		svc.metricsServer = &http.Server{
			Addr:              params.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return svc, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}

	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logg.Error(ctx, "metrics listener stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = s.metricsServer.Shutdown(shutdownCtx)
		}()
	}

	return s.relay.Run(ctx)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}
