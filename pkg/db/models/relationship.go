package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/types"
)

// Relationship aggregates a customer's history with one provider. Updated the
// first time an engagement reaches a terminal status; fed into the recurrence
// reminder sweep.
type Relationship struct {
	ID            uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID    uuid.UUID     `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:ux_relationships_customer_provider"`
	ProviderID    uuid.UUID     `gorm:"column:provider_id;type:uuid;not null;uniqueIndex:ux_relationships_customer_provider"`
	ServiceCount  int           `gorm:"column:service_count;not null;default:0"`
	Categories    types.JSONMap `gorm:"column:categories;type:jsonb;serializer:json"`
	LastServiceAt *time.Time    `gorm:"column:last_service_at"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// RelationshipEntry pins one engagement to the aggregate that counted it.
// The unique engagement index makes a replayed close event a no-op.
type RelationshipEntry struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RelationshipID uuid.UUID `gorm:"column:relationship_id;type:uuid;not null;index"`
	EngagementID   uuid.UUID `gorm:"column:engagement_id;type:uuid;not null;uniqueIndex:ux_relationship_entries_engagement"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
