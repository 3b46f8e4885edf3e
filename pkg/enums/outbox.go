package enums

import "fmt"

// OutboxEventType enumerates the domain events appended to the outbox.
type OutboxEventType string

const (
	EventEngagementCreated       OutboxEventType = "engagement.created"
	EventEngagementRequested     OutboxEventType = "engagement.requested"
	EventEngagementConfirmed     OutboxEventType = "engagement.confirmed"
	EventEngagementRejected      OutboxEventType = "engagement.rejected"
	EventEngagementCharged       OutboxEventType = "engagement.charged"
	EventEngagementChargeFailed  OutboxEventType = "engagement.charge_failed"
	EventEngagementEnRoute       OutboxEventType = "engagement.provider_en_route"
	EventEngagementStarted       OutboxEventType = "engagement.started"
	EventEngagementCompleted     OutboxEventType = "engagement.completed_by_provider"
	EventEngagementConfirmedDone OutboxEventType = "engagement.completed_by_customer"
	EventEngagementRated         OutboxEventType = "engagement.rated"
	EventEngagementClosed        OutboxEventType = "engagement.closed"
	EventEngagementCancelled     OutboxEventType = "engagement.cancelled"
	EventFundsReleased           OutboxEventType = "engagement.funds_released"
	EventDisputeOpened           OutboxEventType = "dispute.opened"
	EventDisputeResolved         OutboxEventType = "dispute.resolved"
	EventWarrantyRequested       OutboxEventType = "warranty.requested"
	EventWarrantyResolved        OutboxEventType = "warranty.resolved"
	EventReminderDue             OutboxEventType = "reminder.due"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEngagementCreated,
	EventEngagementRequested,
	EventEngagementConfirmed,
	EventEngagementRejected,
	EventEngagementCharged,
	EventEngagementChargeFailed,
	EventEngagementEnRoute,
	EventEngagementStarted,
	EventEngagementCompleted,
	EventEngagementConfirmedDone,
	EventEngagementRated,
	EventEngagementClosed,
	EventEngagementCancelled,
	EventFundsReleased,
	EventDisputeOpened,
	EventDisputeResolved,
	EventWarrantyRequested,
	EventWarrantyResolved,
	EventReminderDue,
}

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType identifies the aggregate the event belongs to.
type OutboxAggregateType string

const (
	AggregateEngagement   OutboxAggregateType = "engagement"
	AggregateDisputeClaim OutboxAggregateType = "dispute_claim"
	AggregateReminder     OutboxAggregateType = "reminder"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	AggregateEngagement,
	AggregateDisputeClaim,
	AggregateReminder,
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (o OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == o {
			return true
		}
	}
	return false
}
