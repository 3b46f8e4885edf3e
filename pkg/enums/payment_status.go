package enums

import "fmt"

// PaymentStatus tracks the escrow side of an engagement.
type PaymentStatus string

const (
	PaymentStatusNotApplicable       PaymentStatus = "not_applicable"
	PaymentStatusPendingConfirmation PaymentStatus = "pending_customer_confirmation"
	PaymentStatusPendingCharge       PaymentStatus = "pending_charge"
	PaymentStatusChargedSuccessfully PaymentStatus = "charged_successfully"
	PaymentStatusFailed              PaymentStatus = "failed"
	PaymentStatusHeldForRelease      PaymentStatus = "held_for_release"
	PaymentStatusReleasedToProvider  PaymentStatus = "released_to_provider"
	PaymentStatusFrozenByDispute     PaymentStatus = "frozen_by_dispute"
	PaymentStatusPartiallyRefunded   PaymentStatus = "partially_refunded"
	PaymentStatusFullyRefunded       PaymentStatus = "fully_refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusNotApplicable,
	PaymentStatusPendingConfirmation,
	PaymentStatusPendingCharge,
	PaymentStatusChargedSuccessfully,
	PaymentStatusFailed,
	PaymentStatusHeldForRelease,
	PaymentStatusReleasedToProvider,
	PaymentStatusFrozenByDispute,
	PaymentStatusPartiallyRefunded,
	PaymentStatusFullyRefunded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
