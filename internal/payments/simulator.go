package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

// Simulator stands in for the card processor. Captures succeed unless the
// amount exceeds the configured ceiling, which gives the state machine a
// deterministic decline path to exercise.
type Simulator struct {
	declineAbove decimal.Decimal
	logg         *logger.Logger
}

// NewSimulator builds the simulated processor. A zero ceiling means every
// capture succeeds.
func NewSimulator(declineAbove decimal.Decimal, logg *logger.Logger) *Simulator {
	return &Simulator{declineAbove: declineAbove, logg: logg}
}

// Charge simulates a capture against the engagement's amount.
func (s *Simulator) Charge(ctx context.Context, engagement *models.Engagement) (bool, string, error) {
	if engagement == nil {
		return false, "", fmt.Errorf("engagement is required")
	}

	reference := fmt.Sprintf("sim-%s", uuid.NewString())
	if !s.declineAbove.IsZero() && engagement.Amount.GreaterThan(s.declineAbove) {
		if s.logg != nil {
			ctx = s.logg.WithFields(ctx, map[string]any{
				"engagement_id": engagement.ID.String(),
				"amount":        engagement.Amount.String(),
			})
			s.logg.Warn(ctx, "simulated capture declined")
		}
		return false, reference, nil
	}
	return true, reference, nil
}
