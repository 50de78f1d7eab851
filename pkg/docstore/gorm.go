package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/db"
	"github.com/angelmondragon/tripops-backend/pkg/db/models"
	"gorm.io/gorm"
)

// GormStore persists documents in a single table keyed by (collection, doc_key).
// Works on postgres (jsonb) and sqlite (json1).
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(conn *gorm.DB) (*GormStore, error) {
	if conn == nil {
		return nil, fmt.Errorf("gorm connection required")
	}
	return &GormStore{db: conn, now: time.Now}, nil
}

func (s *GormStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	var row models.Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_key = ?", collection, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, docError(ErrNotFound, collection, key, "")
	}
	if err != nil {
		return nil, err
	}
	doc := fromRow(row)
	return &doc, nil
}

func (s *GormStore) QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	return s.query(ctx, collection, field, value, "doc_key ASC", 0)
}

func (s *GormStore) QueryOldest(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	return s.query(ctx, collection, field, value, "created_at ASC, doc_key ASC", limit)
}

func (s *GormStore) query(ctx context.Context, collection, field string, value any, order string, limit int) ([]Document, error) {
	if err := validateField(field); err != nil {
		return nil, err
	}
	predicate, args, err := s.fieldPredicate(field, value)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Where(predicate, args...).
		Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Document
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (s *GormStore) BatchWrite(ctx context.Context, writes []Write) error {
	for _, w := range writes {
		if err := w.validate(); err != nil {
			return err
		}
	}
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			if err := s.apply(tx, w, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) apply(tx *gorm.DB, w Write, now time.Time) error {
	var current *Document
	var row models.Document
	err := tx.Where("collection = ? AND doc_key = ?", w.Collection, w.Key).Take(&row).Error
	switch {
	case err == nil:
		doc := fromRow(row)
		current = &doc
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	if err := w.checkVersion(current); err != nil {
		return err
	}

	if w.Delete {
		if current == nil {
			return nil
		}
		res := tx.Where("collection = ? AND doc_key = ? AND version = ?", w.Collection, w.Key, current.Version).
			Delete(&models.Document{})
		return conditionalResult(res, w)
	}

	body, err := w.body(current)
	if err != nil {
		return err
	}

	if current == nil {
		err := tx.Create(&models.Document{
			Collection: w.Collection,
			Key:        w.Key,
			Version:    1,
			Body:       string(body),
			CreatedAt:  now,
			UpdatedAt:  now,
		}).Error
		if db.IsUniqueViolation(err, "") {
			return docError(ErrVersionConflict, w.Collection, w.Key, "created concurrently")
		}
		return err
	}

	res := tx.Model(&models.Document{}).
		Where("collection = ? AND doc_key = ? AND version = ?", w.Collection, w.Key, current.Version).
		Updates(map[string]any{
			"body":       string(body),
			"version":    current.Version + 1,
			"updated_at": now,
		})
	return conditionalResult(res, w)
}

func conditionalResult(res *gorm.DB, w Write) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return docError(ErrVersionConflict, w.Collection, w.Key, "changed during write")
	}
	return nil
}

func (s *GormStore) fieldPredicate(field string, value any) (string, []any, error) {
	if s.db.Dialector.Name() == "sqlite" {
		arg := value
		if b, ok := value.(bool); ok {
			arg = 0
			if b {
				arg = 1
			}
		}
		return "json_extract(body, ?) = ?", []any{"$." + field, arg}, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "", nil, fmt.Errorf("encode query value: %w", err)
	}
	text := string(raw)
	if strings.HasPrefix(text, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return "", nil, err
		}
		text = unquoted
	}
	return "body ->> ? = ?", []any{field, text}, nil
}

func fromRow(row models.Document) Document {
	return Document{
		Collection: row.Collection,
		Key:        row.Key,
		Version:    row.Version,
		Data:       json.RawMessage(row.Body),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}
