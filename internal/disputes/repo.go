package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// Repository persists dispute and warranty claims. Writes always run inside
// the engagement transaction that triggered them, so every method takes the
// caller's tx.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) pick(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *Repository) CreateClaim(ctx context.Context, tx *gorm.DB, claim *models.DisputeClaim) error {
	return r.pick(tx).WithContext(ctx).Create(claim).Error
}

func (r *Repository) FindClaimByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.DisputeClaim, error) {
	var claim models.DisputeClaim
	err := r.pick(tx).WithContext(ctx).Where("id = ?", id).First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *Repository) SaveClaim(ctx context.Context, tx *gorm.DB, claim *models.DisputeClaim) error {
	return r.pick(tx).WithContext(ctx).Save(claim).Error
}

// ListByEngagement returns every claim on the engagement, newest first.
func (r *Repository) ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]models.DisputeClaim, error) {
	var claims []models.DisputeClaim
	err := r.db.WithContext(ctx).
		Where("engagement_id = ?", engagementID).
		Order("created_at DESC").
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ListPending returns unresolved claims for the admin review queue.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.DisputeClaim, error) {
	var claims []models.DisputeClaim
	err := r.db.WithContext(ctx).
		Where("state = ?", enums.DisputeStatePendingReview).
		Order("created_at ASC").
		Limit(limit).
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}
