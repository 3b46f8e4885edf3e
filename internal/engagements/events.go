package engagements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// Event payloads are closed types: every consumer decodes into the same
// struct the producer emitted, never an untyped map.

// LifecycleEvent is the common payload for plain status transitions.
type LifecycleEvent struct {
	EngagementID  uuid.UUID              `json:"engagementId"`
	CustomerID    uuid.UUID              `json:"customerId"`
	ProviderID    uuid.UUID              `json:"providerId"`
	Status        enums.EngagementStatus `json:"status"`
	PaymentStatus enums.PaymentStatus    `json:"paymentStatus"`
	AppointmentAt *time.Time             `json:"appointmentAt,omitempty"`
	Categories    []string               `json:"categories,omitempty"`
}

// ChargeEvent reports the outcome of a payment capture attempt.
type ChargeEvent struct {
	LifecycleEvent
	Amount    decimal.Decimal `json:"amount"`
	Currency  enums.Currency  `json:"currency"`
	Reference string          `json:"reference,omitempty"`
	Succeeded bool            `json:"succeeded"`
}

// FundsReleasedEvent carries the full settlement for downstream projections.
type FundsReleasedEvent struct {
	LifecycleEvent
	GrossAmount             decimal.Decimal `json:"grossAmount"`
	ProcessorFee            decimal.Decimal `json:"processorFee"`
	PlatformCommission      decimal.Decimal `json:"platformCommission"`
	LoyaltyFundContribution decimal.Decimal `json:"loyaltyFundContribution"`
	FinalReleasedAmount     decimal.Decimal `json:"finalReleasedAmount"`
	AmbassadorCommission    decimal.Decimal `json:"ambassadorCommission"`
	LoyaltyPoints           int64           `json:"loyaltyPoints"`
	AmbassadorID            *uuid.UUID      `json:"ambassadorId,omitempty"`
	AutoReleased            bool            `json:"autoReleased"`
}

// RatedEvent is emitted per rating submission.
type RatedEvent struct {
	LifecycleEvent
	RaterID               uuid.UUID       `json:"raterId"`
	RaterRole             enums.ActorRole `json:"raterRole"`
	Stars                 int             `json:"stars"`
	MutualRatingCompleted bool            `json:"mutualRatingCompleted"`
}

// CancelledEvent carries the penalty split applied on cancellation.
type CancelledEvent struct {
	LifecycleEvent
	CancelledBy    enums.ActorRole `json:"cancelledBy"`
	PenaltyAmount  decimal.Decimal `json:"penaltyAmount"`
	PlatformShare  decimal.Decimal `json:"platformShare"`
	ProviderShare  decimal.Decimal `json:"providerShare"`
	CustomerRefund decimal.Decimal `json:"customerRefund"`
}

// DisputeEvent covers claim opening and resolution for both categories.
type DisputeEvent struct {
	LifecycleEvent
	ClaimID      uuid.UUID             `json:"claimId"`
	Category     enums.DisputeCategory `json:"category"`
	State        enums.DisputeState    `json:"state"`
	ReporterID   uuid.UUID             `json:"reporterId"`
	ReporterRole enums.ActorRole       `json:"reporterRole"`
	Resolution   string                `json:"resolution,omitempty"`
}
