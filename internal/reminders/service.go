package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/internal/policy"
	dbpkg "github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service schedules wall-clock reminders and hands due ones to the sweep.
// At most one reminder exists per (engagement, kind) pair.
type Service struct {
	tx     txRunner
	policy policy.Policy
	now    func() time.Time
}

func NewService(tx txRunner, pol policy.Policy) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{tx: tx, policy: pol, now: time.Now}, nil
}

// ScheduleAppointmentReminder queues a nudge ahead of the appointment. When
// the appointment is already inside the lead window nothing is scheduled.
func (s *Service) ScheduleAppointmentReminder(ctx context.Context, engagementID, recipientID uuid.UUID, appointmentAt time.Time) error {
	if engagementID == uuid.Nil || recipientID == uuid.Nil {
		return fmt.Errorf("engagement and recipient ids required")
	}

	dueAt := appointmentAt.Add(-s.policy.ReminderLeadTime)
	if !dueAt.After(s.now()) {
		return nil
	}
	return s.schedule(ctx, engagementID, recipientID, enums.ReminderKindAppointment, dueAt)
}

// ScheduleRecurrenceReminder queues a repeat-service nudge for a customer
// with established history with the provider.
func (s *Service) ScheduleRecurrenceReminder(ctx context.Context, engagementID, recipientID uuid.UUID, dueAt time.Time) error {
	if engagementID == uuid.Nil || recipientID == uuid.Nil {
		return fmt.Errorf("engagement and recipient ids required")
	}
	return s.schedule(ctx, engagementID, recipientID, enums.ReminderKindRecurrence, dueAt)
}

func (s *Service) schedule(ctx context.Context, engagementID, recipientID uuid.UUID, kind enums.ReminderKind, dueAt time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reminder := &models.Reminder{
			ID:           uuid.New(),
			EngagementID: engagementID,
			Kind:         kind,
			RecipientID:  recipientID,
			DueAt:        dueAt,
		}
		if err := tx.WithContext(ctx).Create(reminder).Error; err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_reminders_engagement_kind") {
				return nil
			}
			return fmt.Errorf("schedule %s reminder: %w", kind, err)
		}
		return nil
	})
}

// FindDue returns unsent reminders whose due time has passed, oldest first.
func (s *Service) FindDue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]models.Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	var due []models.Reminder
	err := db.WithContext(ctx).
		Where("sent_at IS NULL AND due_at <= ?", asOf).
		Order("due_at ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	return due, nil
}

// MarkSent stamps a reminder as delivered. Returns false when another worker
// already sent it.
func (s *Service) MarkSent(ctx context.Context, reminderID uuid.UUID, sentAt time.Time) (bool, error) {
	var claimed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var innerErr error
		claimed, innerErr = s.MarkSentTx(ctx, tx, reminderID, sentAt)
		return innerErr
	})
	return claimed, err
}

// MarkSentTx claims a reminder inside the caller's transaction so the claim
// commits atomically with whatever the caller does next.
func (s *Service) MarkSentTx(ctx context.Context, tx *gorm.DB, reminderID uuid.UUID, sentAt time.Time) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.Reminder{}).
		Where("id = ? AND sent_at IS NULL", reminderID).
		UpdateColumn("sent_at", sentAt)
	if res.Error != nil {
		return false, fmt.Errorf("mark reminder sent: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CancelForEngagement removes unsent reminders when the engagement leaves
// the states they were scheduled for.
func (s *Service) CancelForEngagement(ctx context.Context, engagementID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).
			Where("engagement_id = ? AND sent_at IS NULL", engagementID).
			Delete(&models.Reminder{}).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("cancel reminders: %w", err)
		}
		return nil
	})
}
