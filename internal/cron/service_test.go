package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servigo-app/servigo-backend/pkg/logger"
)

type fakeLock struct {
	held    bool
	blocked bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.blocked || f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newCronService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	require.NoError(t, err)
	return service
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	healthy := &testJob{name: "healthy"}
	failing := &testJob{name: "failing", err: errors.New("boom")}
	service := newCronService(t, &fakeLock{}, failing, healthy)

	require.NoError(t, service.runCycle(context.Background()))

	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, healthy.runs)
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "noop"}
	service := newCronService(t, &fakeLock{blocked: true}, job)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 0, job.runs)
}

func TestRunCycleReleasesLock(t *testing.T) {
	lock := &fakeLock{}
	service := newCronService(t, lock, &testJob{name: "noop"})

	require.NoError(t, service.runCycle(context.Background()))
	assert.False(t, lock.held)
}

func TestRegistrySkipsNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &testJob{name: "one"})
	registry.Register(nil)
	registry.Register(&testJob{name: "two"})

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "one", jobs[0].Name())
	assert.Equal(t, "two", jobs[1].Name())
}
