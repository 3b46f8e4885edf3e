package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// LoyaltyAccount is the per-customer points balance.
type LoyaltyAccount struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:ux_loyalty_accounts_customer"`
	Balance    int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// LoyaltyEntry is an append-only signed point delta. A given engagement ID may
// appear at most once as an earned entry (the award idempotency key).
type LoyaltyEntry struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID    uuid.UUID              `gorm:"column:account_id;type:uuid;not null;index"`
	Type         enums.LoyaltyEntryType `gorm:"column:type;type:text;not null"`
	Delta        int64                  `gorm:"column:delta;not null"`
	EngagementID *uuid.UUID             `gorm:"column:engagement_id;type:uuid"`
	PromotionID  *uuid.UUID             `gorm:"column:promotion_id;type:uuid"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}
