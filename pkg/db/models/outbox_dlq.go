package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// OutboxDLQ holds outbox rows that exhausted retries or failed permanently.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null;index"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage            `gorm:"column:payload;type:jsonb;not null"`
	Reason        enums.OutboxDLQErrorReason `gorm:"column:reason;type:text;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message;type:text"`
	FailedAt      time.Time                  `gorm:"column:failed_at;autoCreateTime"`
}
