package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// Reminder is a wall-clock scheduled nudge delivered by the reminder sweep.
type Reminder struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EngagementID uuid.UUID          `gorm:"column:engagement_id;type:uuid;not null;uniqueIndex:ux_reminders_engagement_kind"`
	Kind         enums.ReminderKind `gorm:"column:kind;type:text;not null;uniqueIndex:ux_reminders_engagement_kind"`
	RecipientID  uuid.UUID          `gorm:"column:recipient_id;type:uuid;not null"`
	DueAt        time.Time          `gorm:"column:due_at;not null;index"`
	SentAt       *time.Time         `gorm:"column:sent_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}
