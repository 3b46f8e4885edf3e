package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/pkg/config"
)

// Policy is the versioned commercial policy injected into the ledger
// calculator and the engagement service. All percentage values are fractions
// of one (0.06 = 6%).
type Policy struct {
	Version int

	ProcessorFeePct         decimal.Decimal
	PlatformCommissionPct   decimal.Decimal
	LoyaltyFundSharePct     decimal.Decimal
	AmbassadorCommissionPct decimal.Decimal
	PointsConversionFactor  decimal.Decimal

	EarlyCancellationPct  decimal.Decimal
	LateCancellationPct   decimal.Decimal
	LateCancelProviderPct decimal.Decimal
	// Cancellations closer to the appointment than this cutoff pay the late tier.
	LateCancellationCutoff time.Duration

	RatingWindow             time.Duration
	StandardWarrantyDuration time.Duration
	PremiumWarrantyDuration  time.Duration
	ReminderLeadTime         time.Duration
}

// FromConfig materializes a Policy from environment configuration.
func FromConfig(cfg config.PolicyConfig) (Policy, error) {
	p := Policy{
		Version:                  cfg.Version,
		ProcessorFeePct:          decimal.NewFromFloat(cfg.ProcessorFeePct),
		PlatformCommissionPct:    decimal.NewFromFloat(cfg.PlatformCommissionPct),
		LoyaltyFundSharePct:      decimal.NewFromFloat(cfg.LoyaltyFundSharePct),
		AmbassadorCommissionPct:  decimal.NewFromFloat(cfg.AmbassadorCommissionPct),
		PointsConversionFactor:   decimal.NewFromFloat(cfg.PointsConversionFactor),
		EarlyCancellationPct:     decimal.NewFromFloat(cfg.EarlyCancellationPct),
		LateCancellationPct:      decimal.NewFromFloat(cfg.LateCancellationPct),
		LateCancelProviderPct:    decimal.NewFromFloat(cfg.LateCancelProviderPct),
		LateCancellationCutoff:   cfg.LateCancellationCutoff,
		RatingWindow:             cfg.RatingWindow,
		StandardWarrantyDuration: cfg.StandardWarrantyDuration,
		PremiumWarrantyDuration:  cfg.PremiumWarrantyDuration,
		ReminderLeadTime:         cfg.ReminderLeadTime,
	}
	return p, p.Validate()
}

// Default returns the reference policy used by the simulator and tests.
func Default() Policy {
	p, err := FromConfig(config.PolicyConfig{
		Version:                  1,
		ProcessorFeePct:          0.036,
		PlatformCommissionPct:    0.06,
		LoyaltyFundSharePct:      0.10,
		AmbassadorCommissionPct:  0.05,
		PointsConversionFactor:   10,
		EarlyCancellationPct:     0.10,
		LateCancellationPct:      0.25,
		LateCancelProviderPct:    0.15,
		LateCancellationCutoff:   2 * time.Hour,
		RatingWindow:             72 * time.Hour,
		StandardWarrantyDuration: 72 * time.Hour,
		PremiumWarrantyDuration:  168 * time.Hour,
		ReminderLeadTime:         24 * time.Hour,
	})
	if err != nil {
		panic(err)
	}
	return p
}

// Validate rejects policies that could corrupt the split math.
func (p Policy) Validate() error {
	one := decimal.NewFromInt(1)
	zero := decimal.Zero
	for name, pct := range map[string]decimal.Decimal{
		"processor fee":        p.ProcessorFeePct,
		"platform commission":  p.PlatformCommissionPct,
		"loyalty fund share":   p.LoyaltyFundSharePct,
		"ambassador":           p.AmbassadorCommissionPct,
		"early cancellation":   p.EarlyCancellationPct,
		"late cancellation":    p.LateCancellationPct,
		"late cancel provider": p.LateCancelProviderPct,
	} {
		if pct.LessThan(zero) || pct.GreaterThan(one) {
			return fmt.Errorf("%s percentage %s out of range [0,1]", name, pct)
		}
	}
	if p.ProcessorFeePct.Add(p.PlatformCommissionPct).GreaterThanOrEqual(one) {
		return fmt.Errorf("processor fee plus platform commission must stay below 100%%")
	}
	if p.LateCancelProviderPct.GreaterThan(p.LateCancellationPct) {
		return fmt.Errorf("provider share of a late cancellation cannot exceed the total penalty")
	}
	if p.PointsConversionFactor.LessThanOrEqual(zero) {
		return fmt.Errorf("points conversion factor must be positive")
	}
	if p.RatingWindow <= 0 {
		return fmt.Errorf("rating window must be positive")
	}
	if p.PremiumWarrantyDuration < p.StandardWarrantyDuration {
		return fmt.Errorf("premium warranty cannot be shorter than standard warranty")
	}
	return nil
}
