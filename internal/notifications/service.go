package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/pagination"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Draft is a notification before it is persisted for a recipient.
type Draft struct {
	RecipientID   uuid.UUID
	RecipientRole enums.ActorRole
	Type          enums.NotificationType
	Title         string
	Message       string
	Metadata      types.JSONMap
}

// NotificationList is one page of a recipient's notifications.
type NotificationList struct {
	Items      []models.Notification
	NextCursor string
}

// Service stores and serves in-app notifications. Writes are best-effort
// projections; a failed insert never blocks the transition that produced it.
type Service struct {
	db *gorm.DB
	tx txRunner
}

func NewService(db *gorm.DB, tx txRunner) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{db: db, tx: tx}, nil
}

// Deliver persists a batch of drafts in one transaction.
func (s *Service) Deliver(ctx context.Context, drafts []Draft) error {
	if len(drafts) == 0 {
		return nil
	}

	rows := make([]models.Notification, 0, len(drafts))
	for _, draft := range drafts {
		if draft.RecipientID == uuid.Nil {
			return fmt.Errorf("draft recipient id required")
		}
		rows = append(rows, models.Notification{
			ID:            uuid.New(),
			RecipientID:   draft.RecipientID,
			RecipientRole: draft.RecipientRole,
			Type:          draft.Type,
			Title:         draft.Title,
			Message:       draft.Message,
			Metadata:      draft.Metadata,
		})
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
			return fmt.Errorf("insert notifications: %w", err)
		}
		return nil
	})
}

// ListForUser returns the recipient's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, recipientID uuid.UUID, params pagination.Params) (*NotificationList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var items []models.Notification
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}

	list := &NotificationList{Items: items}
	pageSize := pagination.NormalizeLimit(params.Limit)
	if len(items) > pageSize {
		list.Items = items[:pageSize]
		last := list.Items[pageSize-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}

// UnreadCount returns how many notifications the recipient has not read.
func (s *Service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	return count, err
}

// MarkRead stamps one notification as read. Only the recipient can do so;
// an unknown or foreign notification reports false.
func (s *Service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, at time.Time) (bool, error) {
	var marked bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).
			Model(&models.Notification{}).
			Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, recipientID).
			UpdateColumn("read_at", at)
		if res.Error != nil {
			return fmt.Errorf("mark notification read: %w", res.Error)
		}
		marked = res.RowsAffected == 1
		return nil
	})
	return marked, err
}

// MarkAllRead stamps every unread notification for the recipient.
func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	var affected int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).
			Model(&models.Notification{}).
			Where("recipient_id = ? AND read_at IS NULL", recipientID).
			UpdateColumn("read_at", at)
		if res.Error != nil {
			return fmt.Errorf("mark notifications read: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}
