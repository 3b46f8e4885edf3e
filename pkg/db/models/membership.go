package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Membership records a premium subscription. Premium customers get the
// extended warranty window; premium providers get a commission discount.
type Membership struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Plan               string           `gorm:"column:plan;type:text;not null"`
	Active             bool             `gorm:"column:active;not null;default:false"`
	CommissionDiscount *decimal.Decimal `gorm:"column:commission_discount;type:numeric(5,4)"`
	CurrentPeriodEnd   *time.Time       `gorm:"column:current_period_end"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// PlanPremium is the paid tier.
const PlanPremium = "premium"

// IsPremium reports whether the membership is on the paid tier.
func (m *Membership) IsPremium() bool {
	return m != nil && m.Plan == PlanPremium
}

// IsCurrent reports whether the membership is active at the given instant.
func (m *Membership) IsCurrent(now time.Time) bool {
	if m == nil || !m.Active {
		return false
	}
	return m.CurrentPeriodEnd == nil || m.CurrentPeriodEnd.After(now)
}
