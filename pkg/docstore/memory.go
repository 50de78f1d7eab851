package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type docKey struct {
	collection string
	key        string
}

// MemoryStore is an in-process Store used by tests and local tooling.
// Batches apply to a working copy and are published only when every write
// succeeds.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[docKey]Document
	now     func() time.Time
	batches int

	batchHook func(writes []Write) error
	readHook  func(collection, key string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: map[docKey]Document{},
		now:  time.Now,
	}
}

// SetClock overrides the timestamp source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailBatches installs a hook consulted before each batch; a non-nil return
// aborts the batch with that error and nothing is written.
func (m *MemoryStore) FailBatches(hook func(writes []Write) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchHook = hook
}

// FailReads installs a hook consulted before each Get and QueryByField.
func (m *MemoryStore) FailReads(hook func(collection, key string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readHook = hook
}

// Batches returns how many batches were committed.
func (m *MemoryStore) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readHook != nil {
		if err := m.readHook(collection, key); err != nil {
			return nil, err
		}
	}
	doc, ok := m.docs[docKey{collection, key}]
	if !ok {
		return nil, docError(ErrNotFound, collection, key, "")
	}
	out := cloneDocument(doc)
	return &out, nil
}

func (m *MemoryStore) QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateField(field); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readHook != nil {
		if err := m.readHook(collection, ""); err != nil {
			return nil, err
		}
	}
	var out []Document
	for k, doc := range m.docs {
		if k.collection != collection {
			continue
		}
		ok, err := matchesField(doc.Data, field, value)
		if err != nil {
			return nil, fmt.Errorf("query %s.%s: %w", collection, field, err)
		}
		if ok {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) QueryOldest(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	docs, err := m.QueryByField(ctx, collection, field, value)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MemoryStore) BatchWrite(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, w := range writes {
		if err := w.validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchHook != nil {
		if err := m.batchHook(writes); err != nil {
			return err
		}
	}

	working := make(map[docKey]Document, len(m.docs))
	for k, v := range m.docs {
		working[k] = v
	}
	now := m.now().UTC()

	for _, w := range writes {
		k := docKey{w.Collection, w.Key}
		var current *Document
		if doc, ok := working[k]; ok {
			current = &doc
		}
		if err := w.checkVersion(current); err != nil {
			return err
		}
		if w.Delete {
			delete(working, k)
			continue
		}
		body, err := w.body(current)
		if err != nil {
			return err
		}
		next := Document{Collection: w.Collection, Key: w.Key, Version: 1, Data: body, CreatedAt: now, UpdatedAt: now}
		if current != nil {
			next.Version = current.Version + 1
			next.CreatedAt = current.CreatedAt
		}
		working[k] = next
	}

	m.docs = working
	m.batches++
	return nil
}

func cloneDocument(doc Document) Document {
	out := doc
	out.Data = append([]byte(nil), doc.Data...)
	return out
}
