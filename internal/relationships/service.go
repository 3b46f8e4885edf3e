package relationships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service maintains the customer/provider relationship aggregate. The
// aggregate feeds the recurrence reminder sweep and is only advanced when an
// engagement reaches a terminal status.
type Service struct {
	tx txRunner
}

func NewService(tx txRunner) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{tx: tx}, nil
}

// RecordInput carries the per-engagement facts folded into the aggregate.
type RecordInput struct {
	EngagementID uuid.UUID
	CustomerID   uuid.UUID
	ProviderID   uuid.UUID
	Categories   []string
	CompletedAt  time.Time
}

// RecordCompletedEngagement bumps the pair's service count, merges the
// engagement's categories, and advances last_service_at. Each engagement
// counts once: a relationship entry row unique on engagement_id is written in
// the same transaction, so a redelivered close event leaves the aggregate
// untouched.
func (s *Service) RecordCompletedEngagement(ctx context.Context, in RecordInput) error {
	if in.EngagementID == uuid.Nil {
		return fmt.Errorf("engagement id required")
	}
	if in.CustomerID == uuid.Nil || in.ProviderID == uuid.Nil {
		return fmt.Errorf("customer and provider ids required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rel, err := findOrCreate(ctx, tx, in.CustomerID, in.ProviderID)
		if err != nil {
			return fmt.Errorf("load relationship: %w", err)
		}

		var counted int64
		err = tx.WithContext(ctx).
			Model(&models.RelationshipEntry{}).
			Where("engagement_id = ?", in.EngagementID).
			Count(&counted).Error
		if err != nil {
			return fmt.Errorf("check prior entry: %w", err)
		}
		if counted > 0 {
			return nil
		}

		entry := models.RelationshipEntry{
			ID:             uuid.New(),
			RelationshipID: rel.ID,
			EngagementID:   in.EngagementID,
		}
		if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
			// The unique index closes the race between two deliveries.
			if dbpkg.IsUniqueViolation(err, "ux_relationship_entries_engagement") {
				return nil
			}
			return fmt.Errorf("record relationship entry: %w", err)
		}

		if rel.Categories == nil {
			rel.Categories = types.JSONMap{}
		}
		for _, category := range in.Categories {
			rel.Categories[category] = true
		}

		rel.ServiceCount++
		if rel.LastServiceAt == nil || in.CompletedAt.After(*rel.LastServiceAt) {
			completedAt := in.CompletedAt
			rel.LastServiceAt = &completedAt
		}

		// Struct update so the JSON serializer on Categories applies.
		err = tx.WithContext(ctx).
			Model(rel).
			Select("service_count", "categories", "last_service_at").
			Updates(rel).Error
		if err != nil {
			return fmt.Errorf("update relationship: %w", err)
		}
		return nil
	})
}

// Find returns the aggregate for a pair, or nil when they have no history.
func (s *Service) Find(ctx context.Context, db *gorm.DB, customerID, providerID uuid.UUID) (*models.Relationship, error) {
	var rel models.Relationship
	err := db.WithContext(ctx).
		Where("customer_id = ? AND provider_id = ?", customerID, providerID).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

func findOrCreate(ctx context.Context, tx *gorm.DB, customerID, providerID uuid.UUID) (*models.Relationship, error) {
	var rel models.Relationship
	err := tx.WithContext(ctx).
		Where("customer_id = ? AND provider_id = ?", customerID, providerID).
		First(&rel).Error
	if err == nil {
		return &rel, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rel = models.Relationship{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProviderID: providerID,
		Categories: types.JSONMap{},
	}
	if err := tx.WithContext(ctx).Create(&rel).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_relationships_customer_provider") {
			reread := tx.WithContext(ctx).
				Where("customer_id = ? AND provider_id = ?", customerID, providerID).
				First(&rel)
			return &rel, reread.Error
		}
		return nil, err
	}
	return &rel, nil
}
