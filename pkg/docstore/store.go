// Package docstore is a small document database abstraction: keyed JSON
// documents grouped in collections, single-field equality queries and
// atomic multi-document batch writes with optimistic version checks.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version conflict")
	ErrInvalidWrite    = errors.New("invalid document write")
)

// DocumentError ties a store sentinel to the document it concerns.
type DocumentError struct {
	Collection string
	Key        string
	Err        error
	Detail     string
}

func (e *DocumentError) Error() string {
	msg := fmt.Sprintf("%v: %s/%s", e.Err, e.Collection, e.Key)
	if e.Detail != "" {
		msg += " " + e.Detail
	}
	return msg
}

func (e *DocumentError) Unwrap() error { return e.Err }

// DocumentRef exposes the coordinates to error dumps.
func (e *DocumentError) DocumentRef() (string, string) { return e.Collection, e.Key }

func docError(sentinel error, collection, key, detail string) error {
	return &DocumentError{Collection: collection, Key: key, Err: sentinel, Detail: detail}
}

// Document is a stored JSON body plus its bookkeeping columns.
type Document struct {
	Collection string
	Key        string
	Version    int64
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode unmarshals the document body into dest.
func (d *Document) Decode(dest any) error {
	if d == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(d.Data, dest); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.Key, err)
	}
	return nil
}

// Write is one mutation inside a batch. Exactly one of Fields, Replace or
// Delete must be set. Fields merges top-level keys into the stored body and
// creates the document when it is missing.
//
// ExpectVersion guards the write: the batch fails with ErrVersionConflict
// unless the stored version matches. Zero means the document must not exist.
type Write struct {
	Collection    string
	Key           string
	Fields        map[string]any
	Replace       any
	Delete        bool
	ExpectVersion *int64
}

// Version returns a pointer usable as Write.ExpectVersion.
func Version(v int64) *int64 {
	return &v
}

// Store is the persistence surface the coordinator relies on.
type Store interface {
	Get(ctx context.Context, collection, key string) (*Document, error)
	QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error)
	// QueryOldest is QueryByField ordered by creation time, oldest first,
	// and capped at limit documents. A limit of zero or less means no cap.
	QueryOldest(ctx context.Context, collection, field string, value any, limit int) ([]Document, error)
	BatchWrite(ctx context.Context, writes []Write) error
}

var fieldNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func validateField(field string) error {
	if !fieldNameRe.MatchString(field) {
		return fmt.Errorf("%w: field %q", ErrInvalidWrite, field)
	}
	return nil
}

func (w Write) validate() error {
	if w.Collection == "" || w.Key == "" {
		return fmt.Errorf("%w: collection and key required", ErrInvalidWrite)
	}
	set := 0
	if w.Fields != nil {
		set++
	}
	if w.Replace != nil {
		set++
	}
	if w.Delete {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: %s/%s needs exactly one of fields, replace or delete", ErrInvalidWrite, w.Collection, w.Key)
	}
	for field := range w.Fields {
		if err := validateField(field); err != nil {
			return err
		}
	}
	return nil
}

func (w Write) checkVersion(current *Document) error {
	if w.ExpectVersion == nil {
		return nil
	}
	var have int64
	if current != nil {
		have = current.Version
	}
	if have != *w.ExpectVersion {
		return docError(ErrVersionConflict, w.Collection, w.Key, fmt.Sprintf("expected version %d, found %d", *w.ExpectVersion, have))
	}
	return nil
}

// body computes the post-write JSON body given the current document (nil
// when absent).
func (w Write) body(current *Document) (json.RawMessage, error) {
	if w.Replace != nil {
		raw, err := json.Marshal(w.Replace)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", w.Collection, w.Key, err)
		}
		return raw, nil
	}

	merged := map[string]json.RawMessage{}
	if current != nil && len(current.Data) > 0 {
		if err := json.Unmarshal(current.Data, &merged); err != nil {
			return nil, fmt.Errorf("decode %s/%s for merge: %w", w.Collection, w.Key, err)
		}
	}
	for field, value := range w.Fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode field %s on %s/%s: %w", field, w.Collection, w.Key, err)
		}
		merged[field] = raw
	}
	return json.Marshal(merged)
}

// matchesField reports whether the document body holds value under field.
func matchesField(data json.RawMessage, field string, value any) (bool, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return false, err
	}
	stored, ok := body[field]
	if !ok {
		return false, nil
	}
	want, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	var a, b bytes.Buffer
	if err := json.Compact(&a, stored); err != nil {
		return false, err
	}
	if err := json.Compact(&b, want); err != nil {
		return false, err
	}
	return bytes.Equal(a.Bytes(), b.Bytes()), nil
}
