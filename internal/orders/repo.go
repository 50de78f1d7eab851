package orders

import (
	"context"
	"sort"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
)

// Repository reads orders and trip links and commits batches for them.
type Repository interface {
	FindOrder(ctx context.Context, orderID string) (*Order, error)
	FindLinkByTrip(ctx context.Context, tripID string) (*TripOrderLink, error)
	Commit(ctx context.Context, writes []docstore.Write) error
}

type repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) Repository {
	return &repository{store: store}
}

func (r *repository) FindOrder(ctx context.Context, orderID string) (*Order, error) {
	doc, err := r.store.Get(ctx, Collection, orderID)
	if err != nil {
		return nil, err
	}
	var order Order
	if err := doc.Decode(&order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		order.ID = doc.Key
	}
	order.Version = doc.Version
	order.PreviousCenterLocation = presentLocation(order.PreviousCenterLocation)
	order.TransferCenterLocation = presentLocation(order.TransferCenterLocation)
	return &order, nil
}

// FindLinkByTrip returns nil without error when the trip carries no orders.
func (r *repository) FindLinkByTrip(ctx context.Context, tripID string) (*TripOrderLink, error) {
	docs, err := r.store.QueryByField(ctx, LinkCollection, "trip_id", tripID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	var link TripOrderLink
	if err := docs[0].Decode(&link); err != nil {
		return nil, err
	}
	link.ID = docs[0].Key
	link.Version = docs[0].Version
	return &link, nil
}

func (r *repository) Commit(ctx context.Context, writes []docstore.Write) error {
	if len(writes) == 0 {
		return nil
	}
	return r.store.BatchWrite(ctx, writes)
}

// presentLocation folds legacy "NA" placeholders into an absent value.
func presentLocation(loc *string) *string {
	if loc == nil {
		return nil
	}
	switch *loc {
	case "", "NA", "N/A", "NotApplicable":
		return nil
	}
	return loc
}
