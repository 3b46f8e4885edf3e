package enums

import "fmt"

// LoyaltyEntryType classifies signed point deltas on a loyalty account.
type LoyaltyEntryType string

const (
	LoyaltyEntryTypeEarned   LoyaltyEntryType = "earned"
	LoyaltyEntryTypeRedeemed LoyaltyEntryType = "redeemed"
	LoyaltyEntryTypePromo    LoyaltyEntryType = "promotion"
	LoyaltyEntryTypeAdjusted LoyaltyEntryType = "adjustment"
)

var validLoyaltyEntryTypes = []LoyaltyEntryType{
	LoyaltyEntryTypeEarned,
	LoyaltyEntryTypeRedeemed,
	LoyaltyEntryTypePromo,
	LoyaltyEntryTypeAdjusted,
}

// String implements fmt.Stringer.
func (l LoyaltyEntryType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoyaltyEntryType.
func (l LoyaltyEntryType) IsValid() bool {
	for _, candidate := range validLoyaltyEntryTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLoyaltyEntryType converts raw input into a LoyaltyEntryType.
func ParseLoyaltyEntryType(value string) (LoyaltyEntryType, error) {
	for _, candidate := range validLoyaltyEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty entry type %q", value)
}
