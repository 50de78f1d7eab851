package trips

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tripops-backend/internal/orders"
	"github.com/angelmondragon/tripops-backend/internal/wallets"
	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/outbox"
)

// OrderCascade is the order side of a trip: status cascades and the link.
type OrderCascade interface {
	Synchronize(ctx context.Context, tripID string, tripType enums.TripType, extra ...docstore.Write) (*orders.SyncResult, error)
	ReplaceTripOrders(ctx context.Context, tripID string, tripType enums.TripType, orderIDs []string, extra ...docstore.Write) (*orders.LinkResult, error)
	ReleaseTripOrders(ctx context.Context, tripID string, extra ...docstore.Write) (*orders.LinkResult, error)
}

type pendingEvents interface {
	PendingForAggregate(ctx context.Context, aggregateID string) ([]outbox.Event, error)
}

type Service interface {
	CreateTrip(ctx context.Context, input CreateTripInput) (*Trip, error)
	GetTrip(ctx context.Context, tripID string) (*Trip, error)
	AssignCrew(ctx context.Context, input AssignCrewInput) (*Trip, error)
	RequestTypeChange(ctx context.Context, input TypeChangeInput) (*TypeChangeResult, error)
	RetryCascade(ctx context.Context, tripID string) (*orders.SyncResult, error)
	AttachOrders(ctx context.Context, tripID string, orderIDs []string) (*orders.LinkResult, error)
	UpdateVoucher(ctx context.Context, input VoucherInput) (*wallets.Reconciliation, error)
	DeleteTrip(ctx context.Context, tripID string) error
	HandleTripTypeChanged(ctx context.Context, event outbox.Event) error
}

type ServiceParams struct {
	Repository Repository
	Orders     OrderCascade
	Wallets    wallets.Service
	Outbox     *outbox.Service
	Events     pendingEvents
	Logger     *logger.Logger
}

type service struct {
	repo    Repository
	orders  OrderCascade
	wallets wallets.Service
	outbox  *outbox.Service
	events  pendingEvents
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("trip repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order cascade required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox service required")
	case params.Events == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repository,
		orders:  params.Orders,
		wallets: params.Wallets,
		outbox:  params.Outbox,
		events:  params.Events,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) CreateTrip(ctx context.Context, input CreateTripInput) (*Trip, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip code required")
	}
	if input.StopCount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stop count must not be negative")
	}
	now := s.now().UTC()
	trip := &Trip{
		ID:            uuid.NewString(),
		Code:          code,
		Origin:        strings.TrimSpace(input.Origin),
		Destination:   strings.TrimSpace(input.Destination),
		DriverID:      presentRef(input.DriverID),
		TruckID:       presentRef(input.TruckID),
		StopCount:     input.StopCount,
		StartDate:     input.StartDate.UTC(),
		Type:          enums.TripTypeReadyToShip,
		CurrentStatus: enums.TripStatusNotApplicable,
		Odometer:      input.Odometer,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.repo.Commit(ctx, []docstore.Write{{
		Collection:    Collection,
		Key:           trip.ID,
		Replace:       trip,
		ExpectVersion: docstore.Version(0),
	}})
	if err != nil {
		return nil, docstore.AppError(err, "create trip")
	}
	trip.Version = 1
	s.logg.Info(s.logg.WithTripID(ctx, trip.ID), "trip scheduled")
	return trip, nil
}

func (s *service) GetTrip(ctx context.Context, tripID string) (*Trip, error) {
	if strings.TrimSpace(tripID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip id required")
	}
	trip, err := s.repo.FindTrip(ctx, tripID)
	if err != nil {
		return nil, docstore.AppError(err, "load trip")
	}
	return trip, nil
}

// AssignCrew sets or clears the driver and truck. An active trip cannot lose
// either.
func (s *service) AssignCrew(ctx context.Context, input AssignCrewInput) (*Trip, error) {
	trip, err := s.GetTrip(ctx, input.TripID)
	if err != nil {
		return nil, err
	}
	trip.DriverID = presentRef(input.DriverID)
	trip.TruckID = presentRef(input.TruckID)
	if trip.Type == enums.TripTypeActive && !trip.HasCrew() {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "driver and truck required")
	}
	trip.UpdatedAt = s.now().UTC()
	err = s.repo.Commit(ctx, []docstore.Write{{
		Collection: Collection,
		Key:        trip.ID,
		Fields: map[string]any{
			"driver_id":  trip.DriverID,
			"truck_id":   trip.TruckID,
			"updated_at": trip.UpdatedAt,
		},
		ExpectVersion: docstore.Version(trip.Version),
	}})
	if err != nil {
		return nil, docstore.AppError(err, "assign crew")
	}
	trip.Version++
	return trip, nil
}

// RequestTypeChange moves the trip to a new type and cascades the change onto
// its orders. The trip patch and a pending intent event commit together; the
// cascade then completes the event in its own batch. A failed cascade does
// not undo the type change and is reported through CascadeErr.
func (s *service) RequestTypeChange(ctx context.Context, input TypeChangeInput) (*TypeChangeResult, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid trip type %q", input.Type))
	}
	trip, err := s.GetTrip(ctx, input.TripID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTripID(ctx, trip.ID)

	if trip.Type == input.Type {
		return &TypeChangeResult{Trip: trip}, nil
	}

	status := enums.TripStatusNotApplicable
	if input.Type == enums.TripTypeActive {
		if !trip.HasCrew() {
			return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "driver and truck required")
		}
		if input.SubStatus == nil || !input.SubStatus.IsActiveSubStatus() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "active trips need a delivering or returning status")
		}
		status = *input.SubStatus
	}

	now := s.now().UTC()
	eventWrite, event, err := s.outbox.Emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventTripTypeChanged,
		AggregateType: enums.AggregateTrip,
		AggregateID:   trip.ID,
		Data:          TripTypeChangedEvent{TripID: trip.ID, From: trip.Type, To: input.Type},
		OccurredAt:    now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue cascade event")
	}
	err = s.repo.Commit(ctx, []docstore.Write{
		{
			Collection: Collection,
			Key:        trip.ID,
			Fields: map[string]any{
				"type":           input.Type,
				"current_status": status,
				"updated_at":     now,
			},
			ExpectVersion: docstore.Version(trip.Version),
		},
		eventWrite,
	})
	if err != nil {
		return nil, docstore.AppError(err, "update trip type")
	}
	from := trip.Type
	trip.Type = input.Type
	trip.CurrentStatus = status
	trip.UpdatedAt = now
	trip.Version++

	result := &TypeChangeResult{Trip: trip, Changed: true, EventID: event.ID}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": from, "to": trip.Type}), "trip type changed")

	sync, err := s.orders.Synchronize(ctx, trip.ID, trip.Type, outbox.CompleteWrite(event.ID, s.now()))
	if err != nil {
		result.CascadeErr = pkgerrors.Wrap(pkgerrors.CodeCascadePending, err, "order cascade pending retry").
			WithDetails(map[string]any{"event_id": event.ID, "trip_id": trip.ID})
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order cascade failed after trip type change")
		return result, nil
	}
	result.Cascade = sync
	return result, nil
}

// RetryCascade re-applies the cascade for the trip's current type and settles
// every pending intent event for the trip in the same batch.
func (s *service) RetryCascade(ctx context.Context, tripID string) (*orders.SyncResult, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	pending, err := s.events.PendingForAggregate(ctx, trip.ID)
	if err != nil {
		return nil, docstore.AppError(err, "load pending cascade events")
	}
	now := s.now()
	completes := make([]docstore.Write, 0, len(pending))
	for _, event := range pending {
		if event.EventType == enums.EventTripTypeChanged {
			completes = append(completes, outbox.CompleteWrite(event.ID, now))
		}
	}
	return s.orders.Synchronize(s.logg.WithTripID(ctx, trip.ID), trip.ID, trip.Type, completes...)
}

// HandleTripTypeChanged is the relay handler for cascade intent events. It
// uses the trip's current type, not the one recorded on the event, so a
// stale event never rolls orders back.
func (s *service) HandleTripTypeChanged(ctx context.Context, event outbox.Event) error {
	var payload TripTypeChangedEvent
	if err := event.Payload.Decode(&payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode trip type change")
	}
	tripID := payload.TripID
	if tripID == "" {
		tripID = event.AggregateID
	}
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	_, err = s.orders.Synchronize(s.logg.WithTripID(ctx, trip.ID), trip.ID, trip.Type, outbox.CompleteWrite(event.ID, s.now()))
	return err
}

// AttachOrders replaces the trip's order set. Past trips are closed.
func (s *service) AttachOrders(ctx context.Context, tripID string, orderIDs []string) (*orders.LinkResult, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.Type == enums.TripTypePast {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "orders cannot be attached to a past trip")
	}
	// Touching the trip version serializes link edits against type changes.
	touch := docstore.Write{
		Collection:    Collection,
		Key:           trip.ID,
		Fields:        map[string]any{"updated_at": s.now().UTC()},
		ExpectVersion: docstore.Version(trip.Version),
	}
	return s.orders.ReplaceTripOrders(s.logg.WithTripID(ctx, trip.ID), trip.ID, trip.Type, orderIDs, touch)
}

func (s *service) UpdateVoucher(ctx context.Context, input VoucherInput) (*wallets.Reconciliation, error) {
	trip, err := s.GetTrip(ctx, input.TripID)
	if err != nil {
		return nil, err
	}
	return s.wallets.Reconcile(ctx, wallets.VoucherEdit{
		TripID:            trip.ID,
		TripCode:          trip.Code,
		Previous:          trip.Voucher,
		WalletID:          input.WalletID,
		AdvanceBalance:    input.AdvanceBalance,
		AdditionalBalance: input.AdditionalBalance,
		VoucherWrite: func(v wallets.Voucher) docstore.Write {
			return docstore.Write{
				Collection: Collection,
				Key:        trip.ID,
				Fields: map[string]any{
					"voucher":    v,
					"updated_at": v.UpdatedAt,
				},
				ExpectVersion: docstore.Version(trip.Version),
			}
		},
	})
}

// DeleteTrip removes a trip that has not completed and releases its orders.
func (s *service) DeleteTrip(ctx context.Context, tripID string) error {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.Type == enums.TripTypePast {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "past trips cannot be deleted")
	}
	del := docstore.Write{
		Collection:    Collection,
		Key:           trip.ID,
		Delete:        true,
		ExpectVersion: docstore.Version(trip.Version),
	}
	if _, err := s.orders.ReleaseTripOrders(ctx, trip.ID, del); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithTripID(ctx, trip.ID), "trip deleted")
	return nil
}
