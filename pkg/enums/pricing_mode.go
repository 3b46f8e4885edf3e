package enums

import "fmt"

// PricingMode states how an engagement's amount was derived.
type PricingMode string

const (
	PricingModeFixed  PricingMode = "fixed"
	PricingModeHourly PricingMode = "hourly"
)

// IsValid reports whether the value is a known PricingMode.
func (p PricingMode) IsValid() bool {
	return p == PricingModeFixed || p == PricingModeHourly
}

// ParsePricingMode converts raw input into a PricingMode.
func ParsePricingMode(value string) (PricingMode, error) {
	switch PricingMode(value) {
	case PricingModeFixed:
		return PricingModeFixed, nil
	case PricingModeHourly:
		return PricingModeHourly, nil
	}
	return "", fmt.Errorf("invalid pricing mode %q", value)
}
