package trips

import (
	"context"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
)

type Repository interface {
	FindTrip(ctx context.Context, tripID string) (*Trip, error)
	Commit(ctx context.Context, writes []docstore.Write) error
}

type repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) Repository {
	return &repository{store: store}
}

func (r *repository) FindTrip(ctx context.Context, tripID string) (*Trip, error) {
	doc, err := r.store.Get(ctx, Collection, tripID)
	if err != nil {
		return nil, err
	}
	var trip Trip
	if err := doc.Decode(&trip); err != nil {
		return nil, err
	}
	trip.ID = doc.Key
	trip.Version = doc.Version
	trip.DriverID = presentRef(trip.DriverID)
	trip.TruckID = presentRef(trip.TruckID)
	return &trip, nil
}

func (r *repository) Commit(ctx context.Context, writes []docstore.Write) error {
	if len(writes) == 0 {
		return nil
	}
	return r.store.BatchWrite(ctx, writes)
}
