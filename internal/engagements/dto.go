package engagements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

// Actor identifies who is performing an operation. Role comes from the
// session token, never from the request body.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// CreateInput captures a customer booking a provider.
type CreateInput struct {
	Actor         Actor
	ProviderID    uuid.UUID
	Currency      enums.Currency
	PricingMode   enums.PricingMode
	Amount        decimal.Decimal
	HourlyRate    *decimal.Decimal
	DurationHours *decimal.Decimal
	ServiceItems  types.ServiceItems
	AppointmentAt *time.Time
	Location      *types.GeoPoint
	// RequestNow skips the draft stage and submits to the provider directly.
	RequestNow bool
}

// ProviderDecision is the provider's answer to a pending request.
type ProviderDecision string

const (
	ProviderDecisionAccept ProviderDecision = "accept"
	ProviderDecisionReject ProviderDecision = "reject"
)

// ProviderDecisionInput carries the decision on a pending engagement.
type ProviderDecisionInput struct {
	Actor        Actor
	EngagementID uuid.UUID
	Decision     ProviderDecision
}

// RateInput records one party's rating of the other.
type RateInput struct {
	Actor        Actor
	EngagementID uuid.UUID
	Stars        int
	Aspects      map[string]int
	Comment      string
}

// ReportProblemInput opens a dispute on a completed engagement.
type ReportProblemInput struct {
	Actor        Actor
	EngagementID uuid.UUID
	Description  string
}

// ResolveDisputeInput is the admin ruling on an open claim.
type ResolveDisputeInput struct {
	Actor        Actor
	EngagementID uuid.UUID
	ClaimID      uuid.UUID
	Outcome      enums.DisputeState
	Resolution   string
}

// CancelInput is a party cancelling a confirmed or paid engagement.
type CancelInput struct {
	Actor        Actor
	EngagementID uuid.UUID
	Reason       string
}

// WarrantyRequestInput opens a warranty claim on a closed engagement.
type WarrantyRequestInput struct {
	Actor        Actor
	EngagementID uuid.UUID
	Description  string
}

// ResolveWarrantyInput is the admin ruling on a warranty claim.
type ResolveWarrantyInput struct {
	Actor        Actor
	EngagementID uuid.UUID
	ClaimID      uuid.UUID
	Outcome      enums.DisputeState
	Resolution   string
}

// EngagementList is one page of a user's engagements.
type EngagementList struct {
	Items      []models.Engagement
	NextCursor string
}
