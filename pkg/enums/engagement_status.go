package enums

import "fmt"

// EngagementStatus tracks the lifecycle of a commercial engagement.
type EngagementStatus string

const (
	EngagementStatusScheduled             EngagementStatus = "scheduled"
	EngagementStatusPendingProvider       EngagementStatus = "pending_provider_confirmation"
	EngagementStatusConfirmed             EngagementStatus = "confirmed"
	EngagementStatusPaid                  EngagementStatus = "paid"
	EngagementStatusProviderEnRoute       EngagementStatus = "provider_en_route"
	EngagementStatusInProgress            EngagementStatus = "in_progress"
	EngagementStatusCompletedByProvider   EngagementStatus = "completed_by_provider"
	EngagementStatusCompletedByCustomer   EngagementStatus = "completed_by_customer"
	EngagementStatusClosedAutomatically   EngagementStatus = "closed_automatically"
	EngagementStatusClosedWithRating      EngagementStatus = "closed_with_rating"
	EngagementStatusClosedDisputeResolved EngagementStatus = "closed_with_dispute_resolved"
	EngagementStatusRejectedByProvider    EngagementStatus = "rejected_by_provider"
	EngagementStatusCancelledByCustomer   EngagementStatus = "cancelled_by_customer"
	EngagementStatusCancelledByProvider   EngagementStatus = "cancelled_by_provider"
	EngagementStatusCancelledByAdmin      EngagementStatus = "cancelled_by_admin"
	EngagementStatusInDispute             EngagementStatus = "in_dispute"
)

var validEngagementStatuses = []EngagementStatus{
	EngagementStatusScheduled,
	EngagementStatusPendingProvider,
	EngagementStatusConfirmed,
	EngagementStatusPaid,
	EngagementStatusProviderEnRoute,
	EngagementStatusInProgress,
	EngagementStatusCompletedByProvider,
	EngagementStatusCompletedByCustomer,
	EngagementStatusClosedAutomatically,
	EngagementStatusClosedWithRating,
	EngagementStatusClosedDisputeResolved,
	EngagementStatusRejectedByProvider,
	EngagementStatusCancelledByCustomer,
	EngagementStatusCancelledByProvider,
	EngagementStatusCancelledByAdmin,
	EngagementStatusInDispute,
}

var terminalEngagementStatuses = map[EngagementStatus]bool{
	EngagementStatusClosedAutomatically:   true,
	EngagementStatusClosedWithRating:      true,
	EngagementStatusClosedDisputeResolved: true,
	EngagementStatusRejectedByProvider:    true,
	EngagementStatusCancelledByCustomer:   true,
	EngagementStatusCancelledByProvider:   true,
	EngagementStatusCancelledByAdmin:      true,
}

// String implements fmt.Stringer.
func (e EngagementStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EngagementStatus.
func (e EngagementStatus) IsValid() bool {
	for _, candidate := range validEngagementStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status closes the engagement.
func (e EngagementStatus) IsTerminal() bool {
	return terminalEngagementStatuses[e]
}

// ParseEngagementStatus converts raw input into an EngagementStatus.
func ParseEngagementStatus(value string) (EngagementStatus, error) {
	for _, candidate := range validEngagementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid engagement status %q", value)
}
