package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/metrics"
)

const defaultDisputeAgeAlert = 30 * 24 * time.Hour

type frozenFinder interface {
	FindFrozenBefore(ctx context.Context, frozenBefore time.Time) ([]models.Engagement, error)
}

// DisputeAgeJobParams configure the stale-dispute alert sweep.
type DisputeAgeJobParams struct {
	Logger  *logger.Logger
	Finder  frozenFinder
	Metrics *metrics.CronJobMetrics
	MaxAge  time.Duration
}

// NewDisputeAgeJob surfaces engagements frozen by a dispute for longer than
// the alert threshold. Disputes never time out on their own; an admin has to
// resolve each one, so the sweep only raises visibility.
func NewDisputeAgeJob(params DisputeAgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("engagement finder required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultDisputeAgeAlert
	}
	return &disputeAgeJob{
		logg:    params.Logger,
		finder:  params.Finder,
		metrics: params.Metrics,
		maxAge:  maxAge,
		now:     time.Now,
	}, nil
}

type disputeAgeJob struct {
	logg    *logger.Logger
	finder  frozenFinder
	metrics *metrics.CronJobMetrics
	maxAge  time.Duration
	now     func() time.Time
}

func (j *disputeAgeJob) Name() string { return "dispute-age" }

func (j *disputeAgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	stale, err := j.finder.FindFrozenBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale disputes: %w", err)
	}

	for _, engagement := range stale {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"engagement_id": engagement.ID.String(),
			"frozen_since":  engagement.UpdatedAt,
		})
		j.logg.Warn(logCtx, "dispute frozen past alert threshold")
	}

	if j.metrics != nil {
		j.metrics.AddRecords(j.Name(), "stale", len(stale))
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff": cutoff,
		"stale":  len(stale),
	})
	j.logg.Info(logCtx, "dispute age sweep complete")
	return nil
}
