package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/servigo-app/servigo-backend/internal/policy"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/metrics"
)

const autoReleaseBatchSize = 200

type autoReleasableFinder interface {
	FindAutoReleasable(ctx context.Context, confirmedBefore time.Time, limit int) ([]models.Engagement, error)
}

type autoCloser interface {
	AutoClose(ctx context.Context, engagementID uuid.UUID) (bool, error)
}

// AutoReleaseJobParams configure the escrow auto-release sweep.
type AutoReleaseJobParams struct {
	Logger      *logger.Logger
	Finder      autoReleasableFinder
	Engagements autoCloser
	Policy      policy.Policy
	Metrics     *metrics.CronJobMetrics
	BatchSize   int
}

// NewAutoReleaseJob closes engagements whose rating window expired with funds
// still held, releasing escrow to the provider.
func NewAutoReleaseJob(params AutoReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("engagement finder required")
	}
	if params.Engagements == nil {
		return nil, fmt.Errorf("engagement service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = autoReleaseBatchSize
	}
	return &autoReleaseJob{
		logg:    params.Logger,
		finder:  params.Finder,
		svc:     params.Engagements,
		window:  params.Policy.RatingWindow,
		metrics: params.Metrics,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type autoReleaseJob struct {
	logg    *logger.Logger
	finder  autoReleasableFinder
	svc     autoCloser
	window  time.Duration
	metrics *metrics.CronJobMetrics
	batch   int
	now     func() time.Time
}

func (j *autoReleaseJob) Name() string { return "auto-release" }

func (j *autoReleaseJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	candidates, err := j.finder.FindAutoReleasable(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find auto-releasable engagements: %w", err)
	}

	var errs error
	released := 0
	skipped := 0
	for _, engagement := range candidates {
		acted, err := j.svc.AutoClose(ctx, engagement.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("auto-close %s: %w", engagement.ID, err))
			continue
		}
		if acted {
			released++
		} else {
			skipped++
		}
	}

	if j.metrics != nil {
		j.metrics.AddRecords(j.Name(), "released", released)
		j.metrics.AddRecords(j.Name(), "skipped", skipped)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(candidates),
		"released":   released,
		"skipped":    skipped,
	})
	j.logg.Info(logCtx, "auto-release sweep complete")
	return errs
}
