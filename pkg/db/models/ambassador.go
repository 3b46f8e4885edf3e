package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmbassadorCommission is the accumulated total per referring ambassador.
type AmbassadorCommission struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AmbassadorID uuid.UUID       `gorm:"column:ambassador_id;type:uuid;not null;uniqueIndex:ux_ambassador_commissions_ambassador"`
	Total        decimal.Decimal `gorm:"column:total;type:numeric(14,2);not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// AmbassadorCommissionEntry is append-only; at most one entry exists per
// (engagement, provider) pair.
type AmbassadorCommissionEntry struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CommissionID uuid.UUID       `gorm:"column:commission_id;type:uuid;not null;index"`
	EngagementID uuid.UUID       `gorm:"column:engagement_id;type:uuid;not null;uniqueIndex:ux_commission_entries_engagement_provider"`
	ProviderID   uuid.UUID       `gorm:"column:provider_id;type:uuid;not null;uniqueIndex:ux_commission_entries_engagement_provider"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// AmbassadorReferral links a provider to the ambassador who referred them.
type AmbassadorReferral struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID   uuid.UUID `gorm:"column:provider_id;type:uuid;not null;uniqueIndex:ux_ambassador_referrals_provider"`
	AmbassadorID uuid.UUID `gorm:"column:ambassador_id;type:uuid;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
