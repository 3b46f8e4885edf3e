package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// CancellationRecord is append-only; an engagement carries at most one
// non-retracted record.
type CancellationRecord struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EngagementID   uuid.UUID       `gorm:"column:engagement_id;type:uuid;not null;uniqueIndex:ux_cancellation_records_engagement,where:retracted_at IS NULL"`
	ActorID        uuid.UUID       `gorm:"column:actor_id;type:uuid;not null"`
	ActorRole      enums.ActorRole `gorm:"column:actor_role;type:text;not null"`
	PenaltyAmount  decimal.Decimal `gorm:"column:penalty_amount;type:numeric(12,2);not null"`
	PenaltyPct     decimal.Decimal `gorm:"column:penalty_pct;type:numeric(5,4);not null"`
	PlatformShare  decimal.Decimal `gorm:"column:platform_share;type:numeric(12,2);not null"`
	ProviderShare  decimal.Decimal `gorm:"column:provider_share;type:numeric(12,2);not null"`
	CustomerRefund decimal.Decimal `gorm:"column:customer_refund;type:numeric(12,2);not null"`
	RetractedAt    *time.Time      `gorm:"column:retracted_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
