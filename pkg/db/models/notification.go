package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

// Notification stores in-app notification payloads per recipient. Delivery is
// best-effort; the state transition that produced one never depends on it.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientID   uuid.UUID              `gorm:"column:recipient_id;type:uuid;not null;index"`
	RecipientRole enums.ActorRole        `gorm:"column:recipient_role;type:text;not null"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title         string                 `gorm:"column:title;type:text;not null"`
	Message       string                 `gorm:"column:message;type:text;not null"`
	Metadata      types.JSONMap          `gorm:"column:metadata;type:jsonb;serializer:json"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
