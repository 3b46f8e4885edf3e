package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service maintains loyalty balances. The award path is a projection of the
// funds-released event and must absorb redeliveries.
type Service struct {
	tx   txRunner
	logg *logger.Logger
}

func NewService(tx txRunner, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{tx: tx, logg: logg}, nil
}

// AwardForEngagement credits points to the customer for a settled
// engagement. Balance increment and history entry land in one transaction;
// a second delivery for the same engagement is a silent no-op.
func (s *Service) AwardForEngagement(ctx context.Context, customerID, engagementID uuid.UUID, points int64) error {
	if customerID == uuid.Nil || engagementID == uuid.Nil {
		return fmt.Errorf("customer and engagement ids required")
	}
	if points <= 0 {
		return nil
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := findOrCreateAccount(ctx, tx, customerID)
		if err != nil {
			return fmt.Errorf("load loyalty account: %w", err)
		}

		var existing int64
		err = tx.WithContext(ctx).
			Model(&models.LoyaltyEntry{}).
			Where("engagement_id = ? AND type = ?", engagementID, enums.LoyaltyEntryTypeEarned).
			Count(&existing).Error
		if err != nil {
			return fmt.Errorf("check prior award: %w", err)
		}
		if existing > 0 {
			return nil
		}

		entry := &models.LoyaltyEntry{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Type:         enums.LoyaltyEntryTypeEarned,
			Delta:        points,
			EngagementID: &engagementID,
		}
		if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
			// The partial unique index closes the race between two
			// deliveries; losing it means the award already landed.
			if dbpkg.IsUniqueViolation(err, "ux_loyalty_entries_earned_engagement") {
				return nil
			}
			return fmt.Errorf("append loyalty entry: %w", err)
		}

		err = tx.WithContext(ctx).
			Model(&models.LoyaltyAccount{}).
			Where("id = ?", account.ID).
			UpdateColumn("balance", gorm.Expr("balance + ?", points)).Error
		if err != nil {
			return fmt.Errorf("increment balance: %w", err)
		}
		return nil
	})
}

// Redeem burns points from the customer's balance.
func (s *Service) Redeem(ctx context.Context, customerID uuid.UUID, points int64) error {
	if points <= 0 {
		return fmt.Errorf("points must be positive")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := findOrCreateAccount(ctx, tx, customerID)
		if err != nil {
			return fmt.Errorf("load loyalty account: %w", err)
		}
		if account.Balance < points {
			return fmt.Errorf("insufficient balance: have %d, need %d", account.Balance, points)
		}

		entry := &models.LoyaltyEntry{
			ID:        uuid.New(),
			AccountID: account.ID,
			Type:      enums.LoyaltyEntryTypeRedeemed,
			Delta:     -points,
		}
		if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
			return fmt.Errorf("append loyalty entry: %w", err)
		}
		return tx.WithContext(ctx).
			Model(&models.LoyaltyAccount{}).
			Where("id = ? AND balance >= ?", account.ID, points).
			UpdateColumn("balance", gorm.Expr("balance - ?", points)).Error
	})
}

// Balance returns the customer's current point balance.
func (s *Service) Balance(ctx context.Context, db *gorm.DB, customerID uuid.UUID) (int64, error) {
	var account models.LoyaltyAccount
	err := db.WithContext(ctx).Where("customer_id = ?", customerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

func findOrCreateAccount(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	err := tx.WithContext(ctx).Where("customer_id = ?", customerID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account = models.LoyaltyAccount{ID: uuid.New(), CustomerID: customerID}
	if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_loyalty_accounts_customer") {
			// Concurrent creation; re-read the winner.
			reread := tx.WithContext(ctx).Where("customer_id = ?", customerID).First(&account)
			return &account, reread.Error
		}
		return nil, err
	}
	return &account, nil
}
