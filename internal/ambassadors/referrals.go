package ambassadors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
)

// Referrals resolves provider referral links at release time.
type Referrals struct{}

func NewReferrals() *Referrals {
	return &Referrals{}
}

// AmbassadorFor returns the ambassador who referred the provider, or nil when
// the provider was not referred.
func (r *Referrals) AmbassadorFor(ctx context.Context, tx *gorm.DB, providerID uuid.UUID) (*uuid.UUID, error) {
	var referral models.AmbassadorReferral
	err := tx.WithContext(ctx).Where("provider_id = ?", providerID).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ambassadorID := referral.AmbassadorID
	return &ambassadorID, nil
}

// Link registers a referral for a provider. A provider can only ever be
// referred once.
func (r *Referrals) Link(ctx context.Context, tx *gorm.DB, providerID, ambassadorID uuid.UUID) error {
	referral := &models.AmbassadorReferral{
		ID:           uuid.New(),
		ProviderID:   providerID,
		AmbassadorID: ambassadorID,
	}
	return tx.WithContext(ctx).Create(referral).Error
}
