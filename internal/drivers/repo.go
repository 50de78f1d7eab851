package drivers

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
)

type Repository interface {
	FindDriver(ctx context.Context, driverID string) (*Driver, error)
	ListByStatus(ctx context.Context, status enums.DriverStatus) ([]Driver, error)
	Commit(ctx context.Context, writes []docstore.Write) error
}

type repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) Repository {
	return &repository{store: store}
}

func (r *repository) FindDriver(ctx context.Context, driverID string) (*Driver, error) {
	doc, err := r.store.Get(ctx, Collection, driverID)
	if err != nil {
		return nil, err
	}
	return decodeDriver(*doc)
}

func (r *repository) ListByStatus(ctx context.Context, status enums.DriverStatus) ([]Driver, error) {
	docs, err := r.store.QueryByField(ctx, Collection, "status", status)
	if err != nil {
		return nil, err
	}
	out := make([]Driver, 0, len(docs))
	for _, doc := range docs {
		d, err := decodeDriver(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (r *repository) Commit(ctx context.Context, writes []docstore.Write) error {
	if len(writes) == 0 {
		return nil
	}
	return r.store.BatchWrite(ctx, writes)
}

// driverDoc shadows emergency_contact so legacy "NA" strings decode as absent.
type driverDoc struct {
	Driver
	EmergencyContact json.RawMessage `json:"emergency_contact"`
}

func decodeDriver(doc docstore.Document) (*Driver, error) {
	var raw driverDoc
	if err := doc.Decode(&raw); err != nil {
		return nil, err
	}
	d := raw.Driver
	d.ID = doc.Key
	d.Version = doc.Version
	d.EmergencyContact = nil
	if trimmed := bytes.TrimSpace(raw.EmergencyContact); len(trimmed) > 0 && trimmed[0] == '{' {
		var contact EmergencyContact
		if err := json.Unmarshal(trimmed, &contact); err != nil {
			return nil, err
		}
		d.EmergencyContact = &contact
	}
	return &d, nil
}
