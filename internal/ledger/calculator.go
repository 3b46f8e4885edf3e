package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/internal/policy"
)

// Calculator derives every monetary split from the injected policy. It holds
// no state and touches no storage, so the same instance is shared by the API
// service, the dispatcher, and the reconciliation jobs.
type Calculator struct {
	policy policy.Policy
}

func NewCalculator(p policy.Policy) (*Calculator, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &Calculator{policy: p}, nil
}

// ReleaseBreakdown is the full settlement of an escrowed amount. Every field
// is rounded to 2 decimal places exactly once; ProviderNet absorbs the
// residue so the split always conserves the gross.
type ReleaseBreakdown struct {
	GrossAmount             decimal.Decimal
	ProcessorFee            decimal.Decimal
	PlatformCommission      decimal.Decimal
	LoyaltyFundContribution decimal.Decimal
	ProviderNet             decimal.Decimal
	AmbassadorCommission    decimal.Decimal
	LoyaltyPoints           int64
}

// ReleaseInput carries the per-engagement modifiers the policy alone cannot
// know.
type ReleaseInput struct {
	Gross decimal.Decimal
	// CommissionDiscount is the membership discount on the platform
	// commission, a fraction of one. Nil means no discount.
	CommissionDiscount *decimal.Decimal
	// AmbassadorLinked enables the platform-funded ambassador commission.
	AmbassadorLinked bool
}

// decimal.Round rounds half away from zero, which is half up for the
// non-negative amounts handled here.
const two = int32(2)

// ReleaseSplit computes the settlement for a successful engagement.
//
// The processor fee and the platform commission are each a percentage of the
// gross, rounded independently. The provider net is the remainder, never
// rounded again, so fee + commission + net equals the gross to the cent. The
// loyalty fund contribution is carved out of the commission and the
// ambassador commission is funded by the platform on top, so neither affects
// the provider's amount.
func (c *Calculator) ReleaseSplit(in ReleaseInput) (ReleaseBreakdown, error) {
	if in.Gross.LessThanOrEqual(decimal.Zero) {
		return ReleaseBreakdown{}, fmt.Errorf("gross amount must be positive, got %s", in.Gross)
	}

	commissionPct := c.policy.PlatformCommissionPct
	if in.CommissionDiscount != nil {
		d := *in.CommissionDiscount
		if d.LessThan(decimal.Zero) || d.GreaterThan(decimal.NewFromInt(1)) {
			return ReleaseBreakdown{}, fmt.Errorf("commission discount %s out of range [0,1]", d)
		}
		commissionPct = commissionPct.Mul(decimal.NewFromInt(1).Sub(d))
	}

	fee := in.Gross.Mul(c.policy.ProcessorFeePct).Round(two)
	commission := in.Gross.Mul(commissionPct).Round(two)
	loyaltyFund := commission.Mul(c.policy.LoyaltyFundSharePct).Round(two)
	providerNet := in.Gross.Sub(fee).Sub(commission)

	ambassador := decimal.Zero
	if in.AmbassadorLinked {
		ambassador = in.Gross.Mul(c.policy.AmbassadorCommissionPct).Round(two)
	}

	points := in.Gross.Div(c.policy.PointsConversionFactor).Floor().IntPart()

	return ReleaseBreakdown{
		GrossAmount:             in.Gross,
		ProcessorFee:            fee,
		PlatformCommission:      commission,
		LoyaltyFundContribution: loyaltyFund,
		ProviderNet:             providerNet,
		AmbassadorCommission:    ambassador,
		LoyaltyPoints:           points,
	}, nil
}

// CancellationBreakdown is the penalty split for a customer cancellation
// after the charge. PlatformShare + ProviderShare = Penalty and
// Penalty + CustomerRefund = Gross, to the cent.
type CancellationBreakdown struct {
	GrossAmount    decimal.Decimal
	PenaltyPct     decimal.Decimal
	Penalty        decimal.Decimal
	PlatformShare  decimal.Decimal
	ProviderShare  decimal.Decimal
	CustomerRefund decimal.Decimal
	LateTier       bool
}

// CancellationSplit computes the penalty for a customer cancelling at
// untilAppointment before the booked slot.
//
// Outside the late cutoff the early tier applies and the platform keeps the
// whole penalty. At or inside the cutoff the late tier applies: the platform
// keeps the early-tier portion and the provider receives the rest as
// compensation for the lost slot.
func (c *Calculator) CancellationSplit(gross decimal.Decimal, untilAppointment time.Duration) (CancellationBreakdown, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return CancellationBreakdown{}, fmt.Errorf("gross amount must be positive, got %s", gross)
	}

	late := untilAppointment <= c.policy.LateCancellationCutoff

	if !late {
		penalty := gross.Mul(c.policy.EarlyCancellationPct).Round(two)
		return CancellationBreakdown{
			GrossAmount:    gross,
			PenaltyPct:     c.policy.EarlyCancellationPct,
			Penalty:        penalty,
			PlatformShare:  penalty,
			ProviderShare:  decimal.Zero,
			CustomerRefund: gross.Sub(penalty),
		}, nil
	}

	platformShare := gross.Mul(c.policy.LateCancellationPct.Sub(c.policy.LateCancelProviderPct)).Round(two)
	providerShare := gross.Mul(c.policy.LateCancelProviderPct).Round(two)
	penalty := platformShare.Add(providerShare)
	return CancellationBreakdown{
		GrossAmount:    gross,
		PenaltyPct:     c.policy.LateCancellationPct,
		Penalty:        penalty,
		PlatformShare:  platformShare,
		ProviderShare:  providerShare,
		CustomerRefund: gross.Sub(penalty),
		LateTier:       true,
	}, nil
}

// HourlyGross derives the gross for an hourly engagement. Fixed-price
// engagements pass their amount through untouched.
func (c *Calculator) HourlyGross(rate decimal.Decimal, hours decimal.Decimal) (decimal.Decimal, error) {
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("hourly rate must be positive, got %s", rate)
	}
	if hours.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("duration hours must be positive, got %s", hours)
	}
	return rate.Mul(hours).Round(two), nil
}
