package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/metrics"
)

const fallbackReleaseBatchSize = 200

type fallbackReleasableFinder interface {
	FindFallbackReleasable(ctx context.Context, limit int) ([]models.Engagement, error)
}

type fallbackReleaser interface {
	FallbackRelease(ctx context.Context, engagementID uuid.UUID) (bool, error)
}

// FallbackReleaseJobParams configure the stranded-escrow sweep.
type FallbackReleaseJobParams struct {
	Logger      *logger.Logger
	Finder      fallbackReleasableFinder
	Engagements fallbackReleaser
	Metrics     *metrics.CronJobMetrics
	BatchSize   int
}

// NewFallbackReleaseJob releases escrow on engagements that closed with
// ratings but whose release was never applied.
func NewFallbackReleaseJob(params FallbackReleaseJobParams) (Job, error) {
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
		batch = fallbackReleaseBatchSize
	}
	return &fallbackReleaseJob{
		logg:    params.Logger,
		finder:  params.Finder,
		svc:     params.Engagements,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

type fallbackReleaseJob struct {
	logg    *logger.Logger
	finder  fallbackReleasableFinder
	svc     fallbackReleaser
	metrics *metrics.CronJobMetrics
	batch   int
}

func (j *fallbackReleaseJob) Name() string { return "fallback-release" }

func (j *fallbackReleaseJob) Run(ctx context.Context) error {
	candidates, err := j.finder.FindFallbackReleasable(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("find fallback-releasable engagements: %w", err)
	}

	var errs error
	released := 0
	skipped := 0
	for _, engagement := range candidates {
		acted, err := j.svc.FallbackRelease(ctx, engagement.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fallback release %s: %w", engagement.ID, err))
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
		"candidates": len(candidates),
		"released":   released,
		"skipped":    skipped,
	})
	j.logg.Info(logCtx, "fallback release sweep complete")
	return errs
}
