package models

import "time"

// Document is one row of the shared documents table backing every collection.
type Document struct {
	Collection string    `gorm:"column:collection;primaryKey"`
	Key        string    `gorm:"column:doc_key;primaryKey"`
	Version    int64     `gorm:"column:version;not null"`
	Body       string    `gorm:"column:body;type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (Document) TableName() string { return "documents" }
