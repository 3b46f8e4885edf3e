package types

import "github.com/shopspring/decimal"

// ServiceItem is one line of the commercial terms agreed for an engagement.
type ServiceItem struct {
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ServiceItems is the jsonb collection stored on the engagement row.
type ServiceItems []ServiceItem

// Categories returns the distinct non-empty categories across items.
func (s ServiceItems) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range s {
		if item.Category == "" || seen[item.Category] {
			continue
		}
		seen[item.Category] = true
		out = append(out, item.Category)
	}
	return out
}
