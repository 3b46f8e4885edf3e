package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// DisputeClaim is the parallel mini state machine that freezes an engagement's
// payment until an administrator resolves it. Warranty claims share the table,
// distinguished by category.
type DisputeClaim struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EngagementID uuid.UUID             `gorm:"column:engagement_id;type:uuid;not null;index"`
	ReporterID   uuid.UUID             `gorm:"column:reporter_id;type:uuid;not null"`
	ReporterRole enums.ActorRole       `gorm:"column:reporter_role;type:text;not null"`
	ReportedID   uuid.UUID             `gorm:"column:reported_id;type:uuid;not null"`
	ReportedRole enums.ActorRole       `gorm:"column:reported_role;type:text;not null"`
	Category     enums.DisputeCategory `gorm:"column:category;type:text;not null"`
	Description  string                `gorm:"column:description;type:text;not null"`
	State        enums.DisputeState    `gorm:"column:state;type:text;not null;default:'pending_review'"`
	Resolution   *string               `gorm:"column:resolution;type:text"`
	ResolvedByID *uuid.UUID            `gorm:"column:resolved_by_id;type:uuid"`
	ResolvedAt   *time.Time            `gorm:"column:resolved_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
