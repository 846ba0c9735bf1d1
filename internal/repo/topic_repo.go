// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Topic
// catalog.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
)

// CreateTopic inserts a catalog entry. Duplicate labels map to ErrDuplicate
// via the unique index, which keeps seeding idempotent.
func CreateTopic(ctx context.Context, db *gorm.DB, label string) (*domain.Topic, error) {
	t := &domain.Topic{
		ID:        uuid.NewString(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// GetTopic fetches a topic by ID, or ErrNotFound.
func GetTopic(ctx context.Context, db *gorm.DB, id string) (*domain.Topic, error) {
	var t domain.Topic
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTopics returns the whole catalog in insertion order. The catalog is a
// small fixed set, so loading it for a random pick is cheap.
func ListTopics(ctx context.Context, db *gorm.DB) ([]domain.Topic, error) {
	var out []domain.Topic
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
