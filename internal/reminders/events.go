package reminders

import (
	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// DueEvent is emitted when the dispatch sweep claims a due reminder.
type DueEvent struct {
	ReminderID   uuid.UUID          `json:"reminderId"`
	EngagementID uuid.UUID          `json:"engagementId"`
	RecipientID  uuid.UUID          `json:"recipientId"`
	Kind         enums.ReminderKind `json:"kind"`
}
