package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

// FromLifecycle maps a plain status transition to the in-app notifications it
// produces. Unknown event types yield no drafts.
func FromLifecycle(eventType enums.OutboxEventType, ev engagements.LifecycleEvent) []Draft {
	meta := lifecycleMeta(ev)

	switch eventType {
	case enums.EventEngagementCreated, enums.EventEngagementRequested:
		return []Draft{toProvider(ev, enums.NotificationTypeEngagement,
			"New service request",
			"A customer requested a service from you. Review and respond.", meta)}
	case enums.EventEngagementConfirmed:
		return []Draft{toCustomer(ev, enums.NotificationTypeEngagement,
			"Request accepted",
			"Your provider accepted the request. Payment will be captured next.", meta)}
	case enums.EventEngagementRejected:
		return []Draft{toCustomer(ev, enums.NotificationTypeEngagement,
			"Request declined",
			"The provider declined your request.", meta)}
	case enums.EventEngagementEnRoute:
		return []Draft{toCustomer(ev, enums.NotificationTypeEngagement,
			"Provider on the way",
			"Your provider is en route to the appointment.", meta)}
	case enums.EventEngagementStarted:
		return []Draft{toCustomer(ev, enums.NotificationTypeEngagement,
			"Service started",
			"Your provider marked the service as started.", meta)}
	case enums.EventEngagementCompleted:
		return []Draft{toCustomer(ev, enums.NotificationTypeEngagement,
			"Service finished",
			"Your provider marked the service as finished. Please confirm completion.", meta)}
	case enums.EventEngagementConfirmedDone:
		return []Draft{toProvider(ev, enums.NotificationTypeEngagement,
			"Completion confirmed",
			"The customer confirmed completion. Funds are held pending ratings.", meta)}
	case enums.EventEngagementClosed:
		return []Draft{
			toCustomer(ev, enums.NotificationTypeEngagement,
				"Engagement closed",
				"Your engagement is now closed.", meta),
			toProvider(ev, enums.NotificationTypeEngagement,
				"Engagement closed",
				"The engagement is now closed.", meta),
		}
	}
	return nil
}

// FromCharge maps a capture outcome to its notifications.
func FromCharge(ev engagements.ChargeEvent) []Draft {
	meta := lifecycleMeta(ev.LifecycleEvent)
	meta["amount"] = ev.Amount.String()
	meta["currency"] = ev.Currency.String()

	if !ev.Succeeded {
		return []Draft{toCustomer(ev.LifecycleEvent, enums.NotificationTypePayment,
			"Payment failed",
			"We could not capture your payment. Update your payment method and retry.", meta)}
	}
	return []Draft{
		toCustomer(ev.LifecycleEvent, enums.NotificationTypePayment,
			"Payment captured",
			fmt.Sprintf("We captured %s %s. Funds stay in escrow until the service completes.", ev.Amount.StringFixed(2), ev.Currency), meta),
		toProvider(ev.LifecycleEvent, enums.NotificationTypePayment,
			"Engagement paid",
			"The customer's payment was captured. The appointment is confirmed.", meta),
	}
}

// FromFundsReleased maps a settlement to its notifications.
func FromFundsReleased(ev engagements.FundsReleasedEvent) []Draft {
	meta := lifecycleMeta(ev.LifecycleEvent)
	meta["finalReleasedAmount"] = ev.FinalReleasedAmount.String()

	drafts := []Draft{
		toProvider(ev.LifecycleEvent, enums.NotificationTypePayment,
			"Funds released",
			fmt.Sprintf("%s was released to your balance.", ev.FinalReleasedAmount.StringFixed(2)), meta),
	}
	if ev.LoyaltyPoints > 0 {
		drafts = append(drafts, toCustomer(ev.LifecycleEvent, enums.NotificationTypeLoyalty,
			"Points earned",
			fmt.Sprintf("You earned %d loyalty points on your last service.", ev.LoyaltyPoints), meta))
	}
	if ev.AmbassadorID != nil && ev.AmbassadorCommission.IsPositive() {
		drafts = append(drafts, Draft{
			RecipientID:   *ev.AmbassadorID,
			RecipientRole: enums.ActorRoleProvider,
			Type:          enums.NotificationTypeCommission,
			Title:         "Referral commission earned",
			Message:       fmt.Sprintf("You earned %s from a referred provider's engagement.", ev.AmbassadorCommission.StringFixed(2)),
			Metadata:      meta,
		})
	}
	return drafts
}

// FromCancelled maps a cancellation to its notifications.
func FromCancelled(ev engagements.CancelledEvent) []Draft {
	meta := lifecycleMeta(ev.LifecycleEvent)
	meta["penaltyAmount"] = ev.PenaltyAmount.String()
	meta["customerRefund"] = ev.CustomerRefund.String()

	customerMsg := "Your engagement was cancelled."
	if ev.CustomerRefund.IsPositive() {
		customerMsg = fmt.Sprintf("Your engagement was cancelled. %s will be refunded.", ev.CustomerRefund.StringFixed(2))
	}
	providerMsg := "The engagement was cancelled."
	if ev.ProviderShare.IsPositive() {
		providerMsg = fmt.Sprintf("The engagement was cancelled. You receive %s in compensation.", ev.ProviderShare.StringFixed(2))
	}

	return []Draft{
		toCustomer(ev.LifecycleEvent, enums.NotificationTypeEngagement, "Engagement cancelled", customerMsg, meta),
		toProvider(ev.LifecycleEvent, enums.NotificationTypeEngagement, "Engagement cancelled", providerMsg, meta),
	}
}

// FromDispute maps claim openings and resolutions to their notifications.
func FromDispute(eventType enums.OutboxEventType, ev engagements.DisputeEvent) []Draft {
	meta := lifecycleMeta(ev.LifecycleEvent)
	meta["claimId"] = ev.ClaimID.String()
	meta["category"] = ev.Category
	meta["state"] = ev.State

	var title, customerMsg, providerMsg string
	switch eventType {
	case enums.EventDisputeOpened:
		title = "Problem reported"
		customerMsg = "Your report was received. Funds are frozen while we review it."
		providerMsg = "The customer reported a problem. Funds are frozen while we review it."
	case enums.EventWarrantyRequested:
		title = "Warranty claim opened"
		customerMsg = "Your warranty claim was received and is under review."
		providerMsg = "The customer opened a warranty claim on a closed engagement."
	case enums.EventDisputeResolved, enums.EventWarrantyResolved:
		title = "Claim resolved"
		customerMsg = fmt.Sprintf("Your claim was resolved: %s.", ev.State)
		providerMsg = fmt.Sprintf("The claim on your engagement was resolved: %s.", ev.State)
	default:
		return nil
	}

	return []Draft{
		toCustomer(ev.LifecycleEvent, enums.NotificationTypeDispute, title, customerMsg, meta),
		toProvider(ev.LifecycleEvent, enums.NotificationTypeDispute, title, providerMsg, meta),
	}
}

// FromReminder maps a due reminder to its notification.
func FromReminder(recipientID uuid.UUID, kind enums.ReminderKind, engagementID uuid.UUID) []Draft {
	meta := types.JSONMap{"engagementId": engagementID.String(), "kind": kind.String()}

	title := "Upcoming appointment"
	message := "You have a service appointment coming up within a day."
	if kind == enums.ReminderKindRecurrence {
		title = "Time for your next service"
		message = "It has been a while since your last service with this provider. Book again?"
	}

	return []Draft{{
		RecipientID:   recipientID,
		RecipientRole: enums.ActorRoleCustomer,
		Type:          enums.NotificationTypeReminder,
		Title:         title,
		Message:       message,
		Metadata:      meta,
	}}
}

func lifecycleMeta(ev engagements.LifecycleEvent) types.JSONMap {
	return types.JSONMap{
		"engagementId":  ev.EngagementID.String(),
		"status":        ev.Status,
		"paymentStatus": ev.PaymentStatus,
	}
}

func toCustomer(ev engagements.LifecycleEvent, typ enums.NotificationType, title, message string, meta types.JSONMap) Draft {
	return Draft{
		RecipientID:   ev.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Type:          typ,
		Title:         title,
		Message:       message,
		Metadata:      meta,
	}
}

func toProvider(ev engagements.LifecycleEvent, typ enums.NotificationType, title, message string, meta types.JSONMap) Draft {
	return Draft{
		RecipientID:   ev.ProviderID,
		RecipientRole: enums.ActorRoleProvider,
		Type:          typ,
		Title:         title,
		Message:       message,
		Metadata:      meta,
	}
}
