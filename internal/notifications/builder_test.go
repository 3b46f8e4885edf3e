package notifications

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/pkg/enums"
)

func lifecycleEvent() engagements.LifecycleEvent {
	return engagements.LifecycleEvent{
		EngagementID:  uuid.New(),
		CustomerID:    uuid.New(),
		ProviderID:    uuid.New(),
		Status:        enums.EngagementStatusConfirmed,
		PaymentStatus: enums.PaymentStatusPendingCharge,
	}
}

func TestFromLifecycleRoutesByEventType(t *testing.T) {
	ev := lifecycleEvent()

	accepted := FromLifecycle(enums.EventEngagementConfirmed, ev)
	require.Len(t, accepted, 1)
	assert.Equal(t, ev.CustomerID, accepted[0].RecipientID)
	assert.Equal(t, enums.NotificationTypeEngagement, accepted[0].Type)

	requested := FromLifecycle(enums.EventEngagementCreated, ev)
	require.Len(t, requested, 1)
	assert.Equal(t, ev.ProviderID, requested[0].RecipientID)

	closed := FromLifecycle(enums.EventEngagementClosed, ev)
	require.Len(t, closed, 2)

	assert.Nil(t, FromLifecycle(enums.EventFundsReleased, ev))
}

func TestFromChargeFailedNotifiesCustomerOnly(t *testing.T) {
	ev := engagements.ChargeEvent{
		LifecycleEvent: lifecycleEvent(),
		Amount:         decimal.RequireFromString("1000"),
		Currency:       enums.CurrencyUSD,
		Succeeded:      false,
	}

	drafts := FromCharge(ev)
	require.Len(t, drafts, 1)
	assert.Equal(t, ev.CustomerID, drafts[0].RecipientID)
	assert.Equal(t, enums.NotificationTypePayment, drafts[0].Type)
	assert.Contains(t, drafts[0].Title, "failed")
}

func TestFromFundsReleasedIncludesLoyaltyAndAmbassador(t *testing.T) {
	ambassadorID := uuid.New()
	ev := engagements.FundsReleasedEvent{
		LifecycleEvent:       lifecycleEvent(),
		FinalReleasedAmount:  decimal.RequireFromString("904.00"),
		AmbassadorCommission: decimal.RequireFromString("50.00"),
		LoyaltyPoints:        100,
		AmbassadorID:         &ambassadorID,
	}

	drafts := FromFundsReleased(ev)
	require.Len(t, drafts, 3)

	recipients := map[uuid.UUID]enums.NotificationType{}
	for _, d := range drafts {
		recipients[d.RecipientID] = d.Type
	}
	assert.Equal(t, enums.NotificationTypePayment, recipients[ev.ProviderID])
	assert.Equal(t, enums.NotificationTypeLoyalty, recipients[ev.CustomerID])
	assert.Equal(t, enums.NotificationTypeCommission, recipients[ambassadorID])
}

func TestFromFundsReleasedSkipsAbsentExtras(t *testing.T) {
	ev := engagements.FundsReleasedEvent{
		LifecycleEvent:      lifecycleEvent(),
		FinalReleasedAmount: decimal.RequireFromString("904.00"),
	}

	drafts := FromFundsReleased(ev)
	require.Len(t, drafts, 1)
	assert.Equal(t, ev.ProviderID, drafts[0].RecipientID)
}

func TestFromCancelledNotifiesBothSides(t *testing.T) {
	ev := engagements.CancelledEvent{
		LifecycleEvent: lifecycleEvent(),
		CancelledBy:    enums.ActorRoleCustomer,
		PenaltyAmount:  decimal.RequireFromString("250.00"),
		PlatformShare:  decimal.RequireFromString("100.00"),
		ProviderShare:  decimal.RequireFromString("150.00"),
		CustomerRefund: decimal.RequireFromString("750.00"),
	}

	drafts := FromCancelled(ev)
	require.Len(t, drafts, 2)
	assert.Contains(t, drafts[0].Message, "750.00")
	assert.Contains(t, drafts[1].Message, "150.00")
}

func TestFromDisputeOpenedFreezeWording(t *testing.T) {
	ev := engagements.DisputeEvent{
		LifecycleEvent: lifecycleEvent(),
		ClaimID:        uuid.New(),
		Category:       enums.DisputeCategoryServiceProblem,
		State:          enums.DisputeStatePendingReview,
	}

	drafts := FromDispute(enums.EventDisputeOpened, ev)
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.Equal(t, enums.NotificationTypeDispute, d.Type)
		assert.Contains(t, d.Message, "frozen")
	}
}

func TestFromReminderKinds(t *testing.T) {
	recipientID := uuid.New()

	appointment := FromReminder(recipientID, enums.ReminderKindAppointment, uuid.New())
	require.Len(t, appointment, 1)
	assert.Equal(t, enums.NotificationTypeReminder, appointment[0].Type)
	assert.Contains(t, appointment[0].Title, "appointment")

	recurrence := FromReminder(recipientID, enums.ReminderKindRecurrence, uuid.New())
	require.Len(t, recurrence, 1)
	assert.Contains(t, recurrence[0].Title, "next service")
}
