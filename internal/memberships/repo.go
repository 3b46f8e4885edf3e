package memberships

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
)

// Repository answers point-in-time membership reads. It implements the
// MembershipReader consumed by the engagement state machine.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CurrentPlan returns the user's active membership at the given instant, or
// nil when none is current. The tx argument keeps the read inside the
// caller's transaction when one is open.
func (r *Repository) CurrentPlan(ctx context.Context, tx *gorm.DB, userID uuid.UUID, at time.Time) (*models.Membership, error) {
	db := r.db
	if tx != nil {
		db = tx
	}

	var membership models.Membership
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("active = ?", true).
		Where("current_period_end IS NULL OR current_period_end > ?", at).
		Order("created_at DESC").
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}
