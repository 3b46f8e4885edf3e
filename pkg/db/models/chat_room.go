package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRoom is the communication channel opened when an engagement is
// confirmed. The unique engagement index makes creation idempotent.
type ChatRoom struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EngagementID uuid.UUID `gorm:"column:engagement_id;type:uuid;not null;uniqueIndex:ux_chat_rooms_engagement"`
	CustomerID   uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`
	ProviderID   uuid.UUID `gorm:"column:provider_id;type:uuid;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
