package engagements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/outbox"
	"github.com/servigo-app/servigo-backend/pkg/pagination"
)

// Repository defines persistence operations for engagement rows and their
// satellite records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, engagement *models.Engagement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Engagement, error)
	// FindByIDForUpdate locks the row for the remainder of the transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Engagement, error)
	Save(ctx context.Context, engagement *models.Engagement) error
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EngagementList, error)
	CountProviderSlotConflicts(ctx context.Context, providerID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) (int64, error)
	FindAutoReleasable(ctx context.Context, confirmedBefore time.Time, limit int) ([]models.Engagement, error)
	FindFallbackReleasable(ctx context.Context, limit int) ([]models.Engagement, error)
	FindFrozenBefore(ctx context.Context, frozenBefore time.Time) ([]models.Engagement, error)
	CreateCancellationRecord(ctx context.Context, record *models.CancellationRecord) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// DisputeWriter records claims created by the report-problem and warranty
// paths inside the engagement transaction.
type DisputeWriter interface {
	CreateClaim(ctx context.Context, tx *gorm.DB, claim *models.DisputeClaim) error
	FindClaimByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.DisputeClaim, error)
	SaveClaim(ctx context.Context, tx *gorm.DB, claim *models.DisputeClaim) error
}

// MembershipReader answers point-in-time premium checks for warranty windows
// and commission discounts.
type MembershipReader interface {
	CurrentPlan(ctx context.Context, tx *gorm.DB, userID uuid.UUID, at time.Time) (*models.Membership, error)
}

// Charger runs the payment capture. The production implementation simulates
// the processor; a failed capture is a business outcome, not an error.
type Charger interface {
	Charge(ctx context.Context, engagement *models.Engagement) (ok bool, reference string, err error)
}
