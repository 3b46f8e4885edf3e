package ledger

import (
	"fmt"
	"time"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
)

// ApplyRelease writes the settlement breakdown onto the engagement row.
// The breakdown is written at most once: a second call against an already
// released engagement returns false and leaves the row untouched, which is
// what makes the release sweep and the confirmation path safe to race.
//
// The caller holds the row lock and persists the mutation in its own
// transaction.
func ApplyRelease(e *models.Engagement, b ReleaseBreakdown, now time.Time) (bool, error) {
	if e == nil {
		return false, fmt.Errorf("engagement is required")
	}
	if e.Released() {
		return false, nil
	}
	if e.PaymentStatus != enums.PaymentStatusHeldForRelease {
		return false, fmt.Errorf("cannot release funds from payment status %q", e.PaymentStatus)
	}

	gross := b.GrossAmount
	fee := b.ProcessorFee
	commission := b.PlatformCommission
	loyaltyFund := b.LoyaltyFundContribution
	net := b.ProviderNet
	released := now

	e.GrossAmount = &gross
	e.ProcessorFee = &fee
	e.PlatformCommission = &commission
	e.LoyaltyFundContribution = &loyaltyFund
	e.ProviderGross = &net
	e.FinalReleasedAmount = &net
	e.ReleasedAt = &released
	e.PaymentStatus = enums.PaymentStatusReleasedToProvider

	return true, nil
}
