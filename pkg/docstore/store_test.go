package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const documentsDDL = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  doc_key TEXT NOT NULL,
  version INTEGER NOT NULL,
  body TEXT NOT NULL,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL,
  PRIMARY KEY (collection, doc_key)
);`

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.Exec(documentsDDL).Error)

	store, err := NewGormStore(conn)
	require.NoError(t, err)
	return store
}

type order struct {
	ID       string `json:"id"`
	TripID   string `json:"trip_id"`
	Status   string `json:"status"`
	Transfer bool   `json:"to_be_transferred"`
}

func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func TestStore_ReplaceThenGet(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.BatchWrite(ctx, []Write{{
			Collection: "orders",
			Key:        "o-1",
			Replace:    order{ID: "o-1", TripID: "t-1", Status: "assigned"},
		}}))

		doc, err := store.Get(ctx, "orders", "o-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)

		var got order
		require.NoError(t, doc.Decode(&got))
		assert.Equal(t, "assigned", got.Status)

		_, err = store.Get(ctx, "orders", "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestStore_FieldsMergeKeepsOtherKeys(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.BatchWrite(ctx, []Write{{
			Collection: "orders", Key: "o-1",
			Replace: order{ID: "o-1", TripID: "t-1", Status: "assigned"},
		}}))
		require.NoError(t, store.BatchWrite(ctx, []Write{{
			Collection: "orders", Key: "o-1",
			Fields: map[string]any{"status": "in_transit"},
		}}))

		doc, err := store.Get(ctx, "orders", "o-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)

		var got order
		require.NoError(t, doc.Decode(&got))
		assert.Equal(t, "in_transit", got.Status)
		assert.Equal(t, "t-1", got.TripID)
	})
}

func TestStore_BatchIsAllOrNothing(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.BatchWrite(ctx, []Write{
			{Collection: "orders", Key: "o-1", Replace: order{ID: "o-1", Status: "assigned"}},
			{Collection: "orders", Key: "o-2", Replace: order{ID: "o-2", Status: "assigned"}},
		}))

		err := store.BatchWrite(ctx, []Write{
			{Collection: "orders", Key: "o-1", Fields: map[string]any{"status": "delivered"}},
			{Collection: "orders", Key: "o-2", Fields: map[string]any{"status": "delivered"}, ExpectVersion: Version(7)},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrVersionConflict))

		for _, key := range []string{"o-1", "o-2"} {
			doc, err := store.Get(ctx, "orders", key)
			require.NoError(t, err)
			var got order
			require.NoError(t, doc.Decode(&got))
			assert.Equal(t, "assigned", got.Status, key)
			assert.Equal(t, int64(1), doc.Version, key)
		}
	})
}

func TestStore_ExpectVersionZeroRequiresAbsence(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		create := Write{Collection: "wallets", Key: "w-1", Replace: map[string]any{"balance": "10"}, ExpectVersion: Version(0)}
		require.NoError(t, store.BatchWrite(ctx, []Write{create}))

		err := store.BatchWrite(ctx, []Write{create})
		assert.True(t, errors.Is(err, ErrVersionConflict))

		update := Write{Collection: "wallets", Key: "w-1", Fields: map[string]any{"balance": "5"}, ExpectVersion: Version(1)}
		require.NoError(t, store.BatchWrite(ctx, []Write{update}))
		// stale version
		err = store.BatchWrite(ctx, []Write{update})
		assert.True(t, errors.Is(err, ErrVersionConflict))
	})
}

func TestStore_QueryByField(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.BatchWrite(ctx, []Write{
			{Collection: "orders", Key: "o-2", Replace: order{ID: "o-2", TripID: "t-1", Transfer: true}},
			{Collection: "orders", Key: "o-1", Replace: order{ID: "o-1", TripID: "t-1"}},
			{Collection: "orders", Key: "o-3", Replace: order{ID: "o-3", TripID: "t-2"}},
			{Collection: "links", Key: "o-9", Replace: order{ID: "o-9", TripID: "t-1"}},
		}))

		docs, err := store.QueryByField(ctx, "orders", "trip_id", "t-1")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "o-1", docs[0].Key)
		assert.Equal(t, "o-2", docs[1].Key)

		docs, err = store.QueryByField(ctx, "orders", "to_be_transferred", true)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "o-2", docs[0].Key)

		_, err = store.QueryByField(ctx, "orders", "trip_id; drop", "x")
		assert.True(t, errors.Is(err, ErrInvalidWrite))
	})
}

func TestStore_Delete(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.BatchWrite(ctx, []Write{{Collection: "trips", Key: "t-1", Replace: map[string]any{"id": "t-1"}}}))
		require.NoError(t, store.BatchWrite(ctx, []Write{{Collection: "trips", Key: "t-1", Delete: true}}))
		_, err := store.Get(ctx, "trips", "t-1")
		assert.True(t, errors.Is(err, ErrNotFound))
		// deleting a missing document is a no-op
		require.NoError(t, store.BatchWrite(ctx, []Write{{Collection: "trips", Key: "t-1", Delete: true}}))
	})
}

func TestWriteValidation(t *testing.T) {
	store := NewMemoryStore()
	err := store.BatchWrite(context.Background(), []Write{{Collection: "trips", Key: "t-1"}})
	assert.True(t, errors.Is(err, ErrInvalidWrite))

	err = store.BatchWrite(context.Background(), []Write{{
		Collection: "trips", Key: "t-1",
		Fields:  map[string]any{"a": 1},
		Replace: map[string]any{"a": 1},
	}})
	assert.True(t, errors.Is(err, ErrInvalidWrite))
}

func TestMemoryStore_FailBatchesLeavesStateUntouched(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.BatchWrite(ctx, []Write{{Collection: "orders", Key: "o-1", Replace: order{Status: "assigned"}}}))

	boom := errors.New("unavailable")
	store.FailBatches(func([]Write) error { return boom })
	err := store.BatchWrite(ctx, []Write{{Collection: "orders", Key: "o-1", Fields: map[string]any{"status": "in_transit"}}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.Batches())

	store.FailBatches(nil)
	doc, err := store.Get(ctx, "orders", "o-1")
	require.NoError(t, err)
	var got order
	require.NoError(t, doc.Decode(&got))
	assert.Equal(t, "assigned", got.Status)
}

type slowStore struct{ Store }

func (s slowStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithTimeoutMapsDeadlineToDependencyError(t *testing.T) {
	store := WithTimeout(slowStore{Store: NewMemoryStore()}, 10*time.Millisecond)
	_, err := store.Get(context.Background(), "trips", "t-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestAppErrorMapping(t *testing.T) {
	assert.True(t, pkgerrors.HasCode(AppError(fmt.Errorf("x: %w", ErrNotFound), "trip"), pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.HasCode(AppError(ErrVersionConflict, "trip"), pkgerrors.CodeVersionConflict))
	assert.True(t, pkgerrors.HasCode(AppError(errors.New("socket closed"), "trip"), pkgerrors.CodeDependency))
	assert.Nil(t, AppError(nil, "trip"))

	typed := pkgerrors.New(pkgerrors.CodePreconditionFailed, "no driver")
	assert.Same(t, typed, AppError(typed, "trip"))
}

func TestVersionConflictDumpCarriesDocument(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.BatchWrite(ctx, []Write{{Collection: "wallets", Key: "w1", Replace: map[string]any{"balance": "10"}}}))

		err := store.BatchWrite(ctx, []Write{{
			Collection:    "wallets",
			Key:           "w1",
			Fields:        map[string]any{"balance": "5"},
			ExpectVersion: Version(7),
		}})
		require.ErrorIs(t, err, ErrVersionConflict)

		d := pkgerrors.Dump(AppError(err, "reconcile voucher"))
		assert.Equal(t, pkgerrors.CodeVersionConflict, d.Code)
		assert.True(t, d.Retryable)
		assert.Equal(t, "wallets", d.Collection)
		assert.Equal(t, "w1", d.DocKey)
		assert.Equal(t, "wallets", d.Fields()["doc_collection"])
	})
}

func TestNotFoundDumpCarriesDocument(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		_, err := store.Get(context.Background(), "trips", "missing")
		require.ErrorIs(t, err, ErrNotFound)

		d := pkgerrors.Dump(err)
		assert.Equal(t, "trips", d.Collection)
		assert.Equal(t, "missing", d.DocKey)
	})
}

func TestStore_QueryOldestOrdersByCreationAndLimits(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		for _, key := range []string{"c", "a", "b"} {
			require.NoError(t, store.BatchWrite(ctx, []Write{{
				Collection: "orders",
				Key:        key,
				Replace:    order{ID: key, Status: "pending"},
			}}))
			time.Sleep(5 * time.Millisecond)
		}
		require.NoError(t, store.BatchWrite(ctx, []Write{{
			Collection: "orders",
			Key:        "d",
			Replace:    order{ID: "d", Status: "done"},
		}}))

		docs, err := store.QueryOldest(ctx, "orders", "status", "pending", 2)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "c", docs[0].Key)
		assert.Equal(t, "a", docs[1].Key)

		all, err := store.QueryOldest(ctx, "orders", "status", "pending", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
