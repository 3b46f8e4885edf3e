package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servigo-app/servigo-backend/internal/policy"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

type stubAutoFinder struct {
	engagements    []models.Engagement
	err            error
	gotCutoff      time.Time
	gotLimit       int
	fallbackRows   []models.Engagement
	gotFallbackCap int
}

func (s *stubAutoFinder) FindAutoReleasable(_ context.Context, confirmedBefore time.Time, limit int) ([]models.Engagement, error) {
	s.gotCutoff = confirmedBefore
	s.gotLimit = limit
	return s.engagements, s.err
}

func (s *stubAutoFinder) FindFallbackReleasable(_ context.Context, limit int) ([]models.Engagement, error) {
	s.gotFallbackCap = limit
	return s.fallbackRows, s.err
}

type stubCloser struct {
	acted  map[uuid.UUID]bool
	errs   map[uuid.UUID]error
	closed []uuid.UUID
}

func (s *stubCloser) AutoClose(_ context.Context, engagementID uuid.UUID) (bool, error) {
	s.closed = append(s.closed, engagementID)
	return s.acted[engagementID], s.errs[engagementID]
}

func (s *stubCloser) FallbackRelease(_ context.Context, engagementID uuid.UUID) (bool, error) {
	s.closed = append(s.closed, engagementID)
	return s.acted[engagementID], s.errs[engagementID]
}

func engagementRow() models.Engagement {
	return models.Engagement{ID: uuid.New()}
}

func TestAutoReleaseJobUsesRatingWindowCutoff(t *testing.T) {
	finder := &stubAutoFinder{}
	closer := &stubCloser{acted: map[uuid.UUID]bool{}, errs: map[uuid.UUID]error{}}
	job, err := NewAutoReleaseJob(AutoReleaseJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test"}),
		Finder:      finder,
		Engagements: closer,
		Policy:      policy.Default(),
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.(*autoReleaseJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, finder.gotCutoff.Equal(now.Add(-72*time.Hour)))
	assert.Equal(t, autoReleaseBatchSize, finder.gotLimit)
}

func TestAutoReleaseJobClosesEachCandidate(t *testing.T) {
	first := engagementRow()
	second := engagementRow()
	finder := &stubAutoFinder{engagements: []models.Engagement{first, second}}
	closer := &stubCloser{
		acted: map[uuid.UUID]bool{first.ID: true, second.ID: false},
		errs:  map[uuid.UUID]error{},
	}
	job, err := NewAutoReleaseJob(AutoReleaseJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test"}),
		Finder:      finder,
		Engagements: closer,
		Policy:      policy.Default(),
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, closer.closed)
}

func TestAutoReleaseJobContinuesPastFailures(t *testing.T) {
	failing := engagementRow()
	healthy := engagementRow()
	finder := &stubAutoFinder{engagements: []models.Engagement{failing, healthy}}
	closer := &stubCloser{
		acted: map[uuid.UUID]bool{healthy.ID: true},
		errs:  map[uuid.UUID]error{failing.ID: errors.New("lock timeout")},
	}
	job, err := NewAutoReleaseJob(AutoReleaseJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test"}),
		Finder:      finder,
		Engagements: closer,
		Policy:      policy.Default(),
	})
	require.NoError(t, err)

	runErr := job.Run(context.Background())
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), failing.ID.String())
	assert.Len(t, closer.closed, 2)
}

func TestFallbackReleaseJobReleasesEachCandidate(t *testing.T) {
	stranded := engagementRow()
	finder := &stubAutoFinder{fallbackRows: []models.Engagement{stranded}}
	closer := &stubCloser{
		acted: map[uuid.UUID]bool{stranded.ID: true},
		errs:  map[uuid.UUID]error{},
	}
	job, err := NewFallbackReleaseJob(FallbackReleaseJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test"}),
		Finder:      finder,
		Engagements: closer,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []uuid.UUID{stranded.ID}, closer.closed)
	assert.Equal(t, fallbackReleaseBatchSize, finder.gotFallbackCap)
}
