package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type testJob struct {
	name string
	runs atomic.Int32
	run  func(ctx context.Context) error
}

func (j *testJob) Name() string        { return j.name }
func (j *testJob) Description() string { return "test job " + j.name }
func (j *testJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func newTestScheduler() *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.TickInterval = 5 * time.Millisecond
	return NewScheduler(cfg)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestScheduler()
	job := &testJob{name: "a"}

	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every(time.Second)))
	assert.ErrorIs(t, s.Register(job, Every(time.Second)), ErrJobAlreadyExists)
}

func TestRunNow_RecordsResult(t *testing.T) {
	s := newTestScheduler()
	ok := &testJob{name: "ok"}
	bad := &testJob{name: "bad", run: func(context.Context) error { return errors.New("boom") }}
	require.NoError(t, s.Register(ok, Every(time.Hour)))
	require.NoError(t, s.Register(bad, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "bad", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].FailCount)
	assert.Equal(t, int64(1), infos[1].RunCount)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.FailuresByJob["bad"])
	assert.Len(t, s.GetHistory(0), 2)
}

func TestRunNow_PanicBecomesFailure(t *testing.T) {
	s := newTestScheduler()
	job := &testJob{name: "panics", run: func(context.Context) error { panic("oops") }}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
	assert.False(t, res.Success)
	assert.False(t, s.ListJobs()[0].Running)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestScheduler()
	job := &testJob{name: "tick"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_JobNeverOverlapsItself(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	var inside, maxInside atomic.Int32
	job := &testJob{name: "slow", run: func(ctx context.Context) error {
		n := inside.Add(1)
		defer inside.Add(-1)
		for {
			m := maxInside.Load()
			if n <= m || maxInside.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}

	s := newTestScheduler()
	require.NoError(t, s.Register(job, Every(5*time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return s.ListJobs()[0].SkippedTicks >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, s.Stop())
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	var once sync.Once
	job := &testJob{name: "blocking", run: func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}}

	s := newTestScheduler()
	require.NoError(t, s.Register(job, Every(time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))
	<-started

	require.NoError(t, s.Stop())
	last := s.ListJobs()[0].LastResult
	require.NotNil(t, last)
	assert.ErrorIs(t, last.Error, context.Canceled)
}
