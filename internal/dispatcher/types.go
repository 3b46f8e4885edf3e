package dispatcher

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// Envelope is the decoded form of one outbox message on the domain topic.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OccurredAt    time.Time
	Payload       json.RawMessage
}
