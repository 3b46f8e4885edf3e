package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

// Engagement is one commercial transaction between a customer and a provider.
// Status and payment status are only ever written together, inside the same
// transaction, tagged with the acting party.
type Engagement struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`
	ProviderID uuid.UUID `gorm:"column:provider_id;type:uuid;not null"`

	Status        enums.EngagementStatus `gorm:"column:status;type:engagement_status;not null;default:'scheduled'"`
	PaymentStatus enums.PaymentStatus    `gorm:"column:payment_status;type:payment_status;not null;default:'not_applicable'"`
	LastActorID   *uuid.UUID             `gorm:"column:last_actor_id;type:uuid"`
	LastActorRole enums.ActorRole        `gorm:"column:last_actor_role;type:text"`

	Currency      enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	PricingMode   enums.PricingMode  `gorm:"column:pricing_mode;type:text;not null;default:'fixed'"`
	HourlyRate    *decimal.Decimal   `gorm:"column:hourly_rate;type:numeric(12,2)"`
	DurationHours *decimal.Decimal   `gorm:"column:duration_hours;type:numeric(6,2)"`
	Amount        decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	ServiceItems  types.ServiceItems `gorm:"column:service_items;type:jsonb;serializer:json"`

	AppointmentAt *time.Time      `gorm:"column:appointment_at"`
	Location      *types.GeoPoint `gorm:"column:location;type:jsonb;serializer:json"`
	StartedAt     *time.Time      `gorm:"column:started_at"`

	CustomerRating        *types.Rating `gorm:"column:customer_rating;type:jsonb;serializer:json"`
	ProviderRating        *types.Rating `gorm:"column:provider_rating;type:jsonb;serializer:json"`
	RatingEnabled         bool          `gorm:"column:rating_enabled;not null;default:false"`
	MutualRatingCompleted bool          `gorm:"column:mutual_rating_completed;not null;default:false"`
	CustomerConfirmedAt   *time.Time    `gorm:"column:customer_confirmed_at"`
	RatingWindowExpiresAt *time.Time    `gorm:"column:rating_window_expires_at"`
	WarrantyExpiresAt     *time.Time    `gorm:"column:warranty_expires_at"`

	// Embedded financial breakdown, written at most once per engagement.
	GrossAmount             *decimal.Decimal `gorm:"column:gross_amount;type:numeric(12,2)"`
	ProcessorFee            *decimal.Decimal `gorm:"column:processor_fee;type:numeric(12,2)"`
	PlatformCommission      *decimal.Decimal `gorm:"column:platform_commission;type:numeric(12,2)"`
	LoyaltyFundContribution *decimal.Decimal `gorm:"column:loyalty_fund_contribution;type:numeric(12,2)"`
	ProviderGross           *decimal.Decimal `gorm:"column:provider_gross;type:numeric(12,2)"`
	FinalReleasedAmount     *decimal.Decimal `gorm:"column:final_released_amount;type:numeric(12,2)"`
	ReleasedAt              *time.Time       `gorm:"column:released_at"`

	ActiveDisputeID *uuid.UUID `gorm:"column:active_dispute_id;type:uuid"`

	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	FinalizedAt *time.Time `gorm:"column:finalized_at"`
}

// Released reports whether the escrow has already been settled.
func (e *Engagement) Released() bool {
	return e != nil && e.FinalReleasedAmount != nil
}

// IsParticipant reports whether the user is one of the two parties.
func (e *Engagement) IsParticipant(userID uuid.UUID) bool {
	return e != nil && (e.CustomerID == userID || e.ProviderID == userID)
}
