package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/internal/notifications"
	"github.com/servigo-app/servigo-backend/internal/relationships"
	"github.com/servigo-app/servigo-backend/internal/reminders"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

// ErrUnsupportedEventType marks envelopes no projection listens to.
var ErrUnsupportedEventType = errors.New("unsupported event type")

type loyaltyAwarder interface {
	AwardForEngagement(ctx context.Context, customerID, engagementID uuid.UUID, points int64) error
}

type commissionCrediter interface {
	CreditForEngagement(ctx context.Context, ambassadorID, providerID, engagementID uuid.UUID, amount decimal.Decimal) error
}

type roomOpener interface {
	OpenRoom(ctx context.Context, engagementID, customerID, providerID uuid.UUID) (*models.ChatRoom, error)
}

type reminderScheduler interface {
	ScheduleAppointmentReminder(ctx context.Context, engagementID, recipientID uuid.UUID, appointmentAt time.Time) error
	CancelForEngagement(ctx context.Context, engagementID uuid.UUID) error
}

type relationshipRecorder interface {
	RecordCompletedEngagement(ctx context.Context, in relationships.RecordInput) error
}

type notificationSink interface {
	Deliver(ctx context.Context, drafts []notifications.Draft) error
}

// RouterDeps collects the projections the router fans events out to.
type RouterDeps struct {
	Loyalty       loyaltyAwarder
	Commissions   commissionCrediter
	Chat          roomOpener
	Reminders     reminderScheduler
	Relationships relationshipRecorder
	Notifications notificationSink
	Logger        *logger.Logger
}

// Router fans one domain event out to every projection that consumes it.
// Projection failures propagate so the message is redelivered; notification
// writes are best-effort and only logged.
type Router struct {
	deps RouterDeps
}

func NewRouter(deps RouterDeps) (*Router, error) {
	if deps.Loyalty == nil {
		return nil, errors.New("loyalty projection required")
	}
	if deps.Commissions == nil {
		return nil, errors.New("commission projection required")
	}
	if deps.Chat == nil {
		return nil, errors.New("chat projection required")
	}
	if deps.Reminders == nil {
		return nil, errors.New("reminder projection required")
	}
	if deps.Relationships == nil {
		return nil, errors.New("relationship projection required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("notification sink required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Router{deps: deps}, nil
}

// Handle dispatches the envelope to the projections for its event type.
func (r *Router) Handle(ctx context.Context, envelope Envelope) error {
	switch envelope.EventType {
	case enums.EventEngagementConfirmed:
		return r.handleConfirmed(ctx, envelope)
	case enums.EventEngagementCharged, enums.EventEngagementChargeFailed:
		return r.handleCharge(ctx, envelope)
	case enums.EventFundsReleased:
		return r.handleFundsReleased(ctx, envelope)
	case enums.EventEngagementClosed:
		return r.handleClosed(ctx, envelope)
	case enums.EventEngagementCancelled:
		return r.handleCancelled(ctx, envelope)
	case enums.EventDisputeOpened, enums.EventDisputeResolved,
		enums.EventWarrantyRequested, enums.EventWarrantyResolved:
		return r.handleDispute(ctx, envelope)
	case enums.EventEngagementCreated, enums.EventEngagementRequested,
		enums.EventEngagementRejected, enums.EventEngagementEnRoute,
		enums.EventEngagementStarted, enums.EventEngagementCompleted,
		enums.EventEngagementConfirmedDone:
		return r.handleLifecycle(ctx, envelope)
	case enums.EventReminderDue:
		return r.handleReminderDue(ctx, envelope)
	case enums.EventEngagementRated:
		// Ratings have no projection; the mutual-rating close settles through
		// the funds-released event.
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
}

func (r *Router) handleConfirmed(ctx context.Context, envelope Envelope) error {
	var ev engagements.LifecycleEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}

	if _, err := r.deps.Chat.OpenRoom(ctx, ev.EngagementID, ev.CustomerID, ev.ProviderID); err != nil {
		return fmt.Errorf("open chat room: %w", err)
	}
	if ev.AppointmentAt != nil {
		if err := r.deps.Reminders.ScheduleAppointmentReminder(ctx, ev.EngagementID, ev.CustomerID, *ev.AppointmentAt); err != nil {
			return fmt.Errorf("schedule appointment reminder: %w", err)
		}
	}

	r.notify(ctx, envelope, notifications.FromLifecycle(envelope.EventType, ev))
	return nil
}

func (r *Router) handleCharge(ctx context.Context, envelope Envelope) error {
	var ev engagements.ChargeEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}
	r.notify(ctx, envelope, notifications.FromCharge(ev))
	return nil
}

func (r *Router) handleFundsReleased(ctx context.Context, envelope Envelope) error {
	var ev engagements.FundsReleasedEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}

	if err := r.deps.Loyalty.AwardForEngagement(ctx, ev.CustomerID, ev.EngagementID, ev.LoyaltyPoints); err != nil {
		return fmt.Errorf("award loyalty points: %w", err)
	}
	if ev.AmbassadorID != nil && ev.AmbassadorCommission.IsPositive() {
		if err := r.deps.Commissions.CreditForEngagement(ctx, *ev.AmbassadorID, ev.ProviderID, ev.EngagementID, ev.AmbassadorCommission); err != nil {
			return fmt.Errorf("credit ambassador commission: %w", err)
		}
	}

	// Funds only release on a terminal close, so the rated, dispute-release,
	// and sweep closes all land the relationship update here. The aggregate
	// dedupes per engagement, so the auto-close path recording twice is safe.
	if err := r.recordRelationship(ctx, ev.LifecycleEvent, envelope.OccurredAt); err != nil {
		return err
	}

	r.notify(ctx, envelope, notifications.FromFundsReleased(ev))
	return nil
}

func (r *Router) handleClosed(ctx context.Context, envelope Envelope) error {
	var ev engagements.LifecycleEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}

	if err := r.recordRelationship(ctx, ev, envelope.OccurredAt); err != nil {
		return err
	}

	r.notify(ctx, envelope, notifications.FromLifecycle(envelope.EventType, ev))
	return nil
}

func (r *Router) recordRelationship(ctx context.Context, ev engagements.LifecycleEvent, completedAt time.Time) error {
	err := r.deps.Relationships.RecordCompletedEngagement(ctx, relationships.RecordInput{
		EngagementID: ev.EngagementID,
		CustomerID:   ev.CustomerID,
		ProviderID:   ev.ProviderID,
		Categories:   ev.Categories,
		CompletedAt:  completedAt,
	})
	if err != nil {
		return fmt.Errorf("record relationship: %w", err)
	}
	return nil
}

func (r *Router) handleCancelled(ctx context.Context, envelope Envelope) error {
	var ev engagements.CancelledEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}

	if err := r.deps.Reminders.CancelForEngagement(ctx, ev.EngagementID); err != nil {
		return fmt.Errorf("cancel reminders: %w", err)
	}

	r.notify(ctx, envelope, notifications.FromCancelled(ev))
	return nil
}

func (r *Router) handleDispute(ctx context.Context, envelope Envelope) error {
	var ev engagements.DisputeEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}

	// A refund resolution closes the engagement without releasing funds, so
	// this is its only chance to reach the relationship aggregate.
	if envelope.EventType == enums.EventDisputeResolved &&
		ev.Status == enums.EngagementStatusClosedDisputeResolved {
		if err := r.recordRelationship(ctx, ev.LifecycleEvent, envelope.OccurredAt); err != nil {
			return err
		}
	}

	r.notify(ctx, envelope, notifications.FromDispute(envelope.EventType, ev))
	return nil
}

func (r *Router) handleLifecycle(ctx context.Context, envelope Envelope) error {
	var ev engagements.LifecycleEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}
	r.notify(ctx, envelope, notifications.FromLifecycle(envelope.EventType, ev))
	return nil
}

func (r *Router) handleReminderDue(ctx context.Context, envelope Envelope) error {
	var ev reminders.DueEvent
	if err := decode(envelope, &ev); err != nil {
		return err
	}
	r.notify(ctx, envelope, notifications.FromReminder(ev.RecipientID, ev.Kind, ev.EngagementID))
	return nil
}

func (r *Router) notify(ctx context.Context, envelope Envelope, drafts []notifications.Draft) {
	if len(drafts) == 0 {
		return
	}
	if err := r.deps.Notifications.Deliver(ctx, drafts); err != nil {
		logCtx := r.deps.Logger.WithFields(ctx, map[string]any{
			"event_id":   envelope.EventID,
			"event_type": envelope.EventType,
		})
		r.deps.Logger.Error(logCtx, "notification delivery failed", err)
	}
}

func decode(envelope Envelope, target any) error {
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	if err := json.Unmarshal(envelope.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return nil
}
