package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/backend/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return "0 0 22 * * *" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return nil
}

func TestScheduler_AddJobRejectsDuplicates(t *testing.T) {
	sched := New(logger.Nop())

	require.NoError(t, sched.AddJob(&countingJob{name: "nightly"}))
	err := sched.AddJob(&countingJob{name: "nightly"})
	assert.ErrorContains(t, err, "already exists")

	assert.Equal(t, []string{"nightly"}, sched.GetAllJobs())
}

func TestScheduler_RunJob(t *testing.T) {
	sched := New(logger.Nop())
	job := &countingJob{name: "nightly"}
	require.NoError(t, sched.AddJob(job))

	require.NoError(t, sched.RunJob("nightly"))

	// RunJob is asynchronous; wait for the result to land in history.
	assert.Eventually(t, func() bool {
		history, err := sched.GetJobHistory("nightly")
		if err != nil {
			return false
		}
		return len(history.Results) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), job.runs.Load())

	history, err := sched.GetJobHistory("nightly")
	require.NoError(t, err)
	assert.True(t, history.Results[0].Success)
	assert.Equal(t, "nightly", history.Results[0].JobName)
	assert.Equal(t, 1.0, history.GetSuccessRate())
}

func TestScheduler_RunJobUnknown(t *testing.T) {
	sched := New(logger.Nop())

	err := sched.RunJob("missing")
	assert.ErrorContains(t, err, "not found")

	_, err = sched.GetJobHistory("missing")
	assert.Error(t, err)
}

func TestJobHistory_AddResultKeepsLast100(t *testing.T) {
	history := &JobHistory{}

	for i := 0; i < 150; i++ {
		history.AddResult(JobResult{JobName: fmt.Sprintf("run-%d", i), Success: true})
	}

	require.Len(t, history.Results, 100)
	assert.Equal(t, "run-50", history.Results[0].JobName)
	assert.Equal(t, "run-149", history.Results[99].JobName)
}

func TestJobHistory_GetLatestResults(t *testing.T) {
	history := &JobHistory{}
	for i := 0; i < 5; i++ {
		history.AddResult(JobResult{JobName: fmt.Sprintf("run-%d", i)})
	}

	latest := history.GetLatestResults(2)
	require.Len(t, latest, 2)
	assert.Equal(t, "run-3", latest[0].JobName)
	assert.Equal(t, "run-4", latest[1].JobName)

	// Asking for more than exists returns everything
	assert.Len(t, history.GetLatestResults(10), 5)
	assert.Empty(t, history.GetLatestResults(0))
}

func TestJobHistory_GetSuccessRate(t *testing.T) {
	history := &JobHistory{}
	assert.Equal(t, 0.0, history.GetSuccessRate())

	history.AddResult(JobResult{Success: true})
	history.AddResult(JobResult{Success: true})
	history.AddResult(JobResult{Success: false})
	history.AddResult(JobResult{Success: true})

	assert.InDelta(t, 0.75, history.GetSuccessRate(), 1e-9)
}
