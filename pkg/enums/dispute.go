package enums

import "fmt"

// DisputeState tracks a dispute or warranty claim through review.
type DisputeState string

const (
	DisputeStatePendingReview          DisputeState = "pending_review"
	DisputeStateApprovedCompensation   DisputeState = "approved_compensation"
	DisputeStateApprovedReservice      DisputeState = "approved_reservice"
	DisputeStateResolvedNoCompensation DisputeState = "resolved_without_compensation"
	DisputeStateRejected               DisputeState = "rejected"
)

var validDisputeStates = []DisputeState{
	DisputeStatePendingReview,
	DisputeStateApprovedCompensation,
	DisputeStateApprovedReservice,
	DisputeStateResolvedNoCompensation,
	DisputeStateRejected,
}

// String implements fmt.Stringer.
func (d DisputeState) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeState.
func (d DisputeState) IsValid() bool {
	for _, candidate := range validDisputeStates {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the claim has been resolved.
func (d DisputeState) IsTerminal() bool {
	return d != DisputeStatePendingReview && d.IsValid()
}

// ParseDisputeState converts raw input into a DisputeState.
func ParseDisputeState(value string) (DisputeState, error) {
	for _, candidate := range validDisputeStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute state %q", value)
}

// DisputeCategory distinguishes dispute claims from warranty claims.
type DisputeCategory string

const (
	DisputeCategoryServiceProblem DisputeCategory = "service_problem"
	DisputeCategoryWarranty       DisputeCategory = "warranty"
)

// IsValid reports whether the value is a known DisputeCategory.
func (d DisputeCategory) IsValid() bool {
	return d == DisputeCategoryServiceProblem || d == DisputeCategoryWarranty
}
