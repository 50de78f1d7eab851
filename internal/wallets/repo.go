package wallets

import (
	"context"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
)

type Repository interface {
	FindWallet(ctx context.Context, walletID string) (*Wallet, error)
	Commit(ctx context.Context, writes []docstore.Write) error
}

type repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) Repository {
	return &repository{store: store}
}

func (r *repository) FindWallet(ctx context.Context, walletID string) (*Wallet, error) {
	doc, err := r.store.Get(ctx, Collection, walletID)
	if err != nil {
		return nil, err
	}
	var w Wallet
	if err := doc.Decode(&w); err != nil {
		return nil, err
	}
	w.ID = doc.Key
	w.Version = doc.Version
	return &w, nil
}

func (r *repository) Commit(ctx context.Context, writes []docstore.Write) error {
	if len(writes) == 0 {
		return nil
	}
	return r.store.BatchWrite(ctx, writes)
}
