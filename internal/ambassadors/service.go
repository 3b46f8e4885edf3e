package ambassadors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service accrues referral commissions for ambassadors. Credits are a
// projection of funds-released events and must absorb redeliveries.
type Service struct {
	tx txRunner
}

func NewService(tx txRunner) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{tx: tx}, nil
}

// CreditForEngagement adds the referral commission earned on one engagement
// to the ambassador's running total. The (engagement, provider) pair is the
// idempotency key; a second delivery is a silent no-op.
func (s *Service) CreditForEngagement(ctx context.Context, ambassadorID, providerID, engagementID uuid.UUID, amount decimal.Decimal) error {
	if ambassadorID == uuid.Nil || providerID == uuid.Nil || engagementID == uuid.Nil {
		return fmt.Errorf("ambassador, provider and engagement ids required")
	}
	if !amount.IsPositive() {
		return nil
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		commission, err := findOrCreateCommission(ctx, tx, ambassadorID)
		if err != nil {
			return fmt.Errorf("load commission account: %w", err)
		}

		entry := &models.AmbassadorCommissionEntry{
			ID:           uuid.New(),
			CommissionID: commission.ID,
			EngagementID: engagementID,
			ProviderID:   providerID,
			Amount:       amount,
		}
		if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_commission_entries_engagement_provider") {
				return nil
			}
			return fmt.Errorf("append commission entry: %w", err)
		}

		err = tx.WithContext(ctx).
			Model(&models.AmbassadorCommission{}).
			Where("id = ?", commission.ID).
			UpdateColumn("total", gorm.Expr("total + ?", amount)).Error
		if err != nil {
			return fmt.Errorf("increment commission total: %w", err)
		}
		return nil
	})
}

// Total returns the ambassador's accumulated commission.
func (s *Service) Total(ctx context.Context, db *gorm.DB, ambassadorID uuid.UUID) (decimal.Decimal, error) {
	var commission models.AmbassadorCommission
	err := db.WithContext(ctx).Where("ambassador_id = ?", ambassadorID).First(&commission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return commission.Total, nil
}

func findOrCreateCommission(ctx context.Context, tx *gorm.DB, ambassadorID uuid.UUID) (*models.AmbassadorCommission, error) {
	var commission models.AmbassadorCommission
	err := tx.WithContext(ctx).Where("ambassador_id = ?", ambassadorID).First(&commission).Error
	if err == nil {
		return &commission, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	commission = models.AmbassadorCommission{ID: uuid.New(), AmbassadorID: ambassadorID, Total: decimal.Zero}
	if err := tx.WithContext(ctx).Create(&commission).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_ambassador_commissions_ambassador") {
			reread := tx.WithContext(ctx).Where("ambassador_id = ?", ambassadorID).First(&commission)
			return &commission, reread.Error
		}
		return nil, err
	}
	return &commission, nil
}
