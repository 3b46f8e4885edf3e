package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service opens chat rooms between the two sides of an engagement. Room
// creation hangs off the confirmation event and is idempotent per engagement.
type Service struct {
	tx txRunner
}

func NewService(tx txRunner) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{tx: tx}, nil
}

// OpenRoom creates the room for an engagement. A redelivered confirmation
// event finds the existing room and returns it.
func (s *Service) OpenRoom(ctx context.Context, engagementID, customerID, providerID uuid.UUID) (*models.ChatRoom, error) {
	if engagementID == uuid.Nil || customerID == uuid.Nil || providerID == uuid.Nil {
		return nil, fmt.Errorf("engagement, customer and provider ids required")
	}

	var room *models.ChatRoom
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := findByEngagement(ctx, tx, engagementID)
		if err != nil {
			return err
		}
		if existing != nil {
			room = existing
			return nil
		}

		created := &models.ChatRoom{
			ID:           uuid.New(),
			EngagementID: engagementID,
			CustomerID:   customerID,
			ProviderID:   providerID,
		}
		if err := tx.WithContext(ctx).Create(created).Error; err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_chat_rooms_engagement") {
				existing, rereadErr := findByEngagement(ctx, tx, engagementID)
				if rereadErr != nil {
					return rereadErr
				}
				room = existing
				return nil
			}
			return fmt.Errorf("create chat room: %w", err)
		}
		room = created
		return nil
	})
	return room, err
}

// RoomForEngagement returns the engagement's room, or nil when none exists.
func (s *Service) RoomForEngagement(ctx context.Context, db *gorm.DB, engagementID uuid.UUID) (*models.ChatRoom, error) {
	return findByEngagement(ctx, db, engagementID)
}

func findByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := tx.WithContext(ctx).Where("engagement_id = ?", engagementID).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}
