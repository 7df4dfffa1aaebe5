package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/pkg/logger"
)

// ErrInvalidTransition is returned for a status change the lifecycle
// does not allow. Terminal states allow none.
var ErrInvalidTransition = errors.New("simulation: invalid status transition")

// transitions is the job lifecycle:
// pending → downloading_data → running → {completed, partial, failed}
// downloading_data may fail directly when zero dates are available.
// ⭐ SSOT: Job 상태 전이 규칙은 여기서만
var transitions = map[contracts.JobStatus][]contracts.JobStatus{
	contracts.JobPending:         {contracts.JobDownloadingData},
	contracts.JobDownloadingData: {contracts.JobRunning, contracts.JobFailed},
	contracts.JobRunning:         {contracts.JobCompleted, contracts.JobPartial, contracts.JobFailed},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to contracts.JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine owns job status transitions and final status aggregation.
type StateMachine struct {
	jobs   contracts.JobStore
	logger *logger.Logger
}

// NewStateMachine creates a new job state machine
func NewStateMachine(jobs contracts.JobStore, log *logger.Logger) *StateMachine {
	return &StateMachine{jobs: jobs, logger: log}
}

// Transition validates and persists a status change.
func (m *StateMachine) Transition(ctx context.Context, job *contracts.Job, to contracts.JobStatus, errMsg string) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, job.Status, to)
	}

	if err := m.jobs.SetStatus(ctx, job.ID, to, errMsg); err != nil {
		return fmt.Errorf("persist status %s: %w", to, err)
	}

	m.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"from":   job.Status,
		"to":     to,
	}).Info("Job status changed")

	job.Status = to
	job.Error = errMsg
	return nil
}

// Fail moves the job to failed with a descriptive error, from whichever
// non-terminal state it is in.
func (m *StateMachine) Fail(ctx context.Context, job *contracts.Job, errMsg string) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, job.Status)
	}
	// downloading_data and running both transition to failed directly;
	// a pending job that fails before starting passes through
	// downloading_data so the lifecycle stays observable.
	if job.Status == contracts.JobPending {
		if err := m.Transition(ctx, job, contracts.JobDownloadingData, ""); err != nil {
			return err
		}
	}
	return m.Transition(ctx, job, contracts.JobFailed, errMsg)
}

// Finalize aggregates model-day outcomes into the job's terminal status.
func (m *StateMachine) Finalize(ctx context.Context, job *contracts.Job, days []*contracts.ModelDay) (contracts.JobStatus, error) {
	status, errMsg := Aggregate(days)
	if err := m.Transition(ctx, job, status, errMsg); err != nil {
		return "", err
	}
	return status, nil
}

// Aggregate maps model-day outcomes to a job status. Completed requires
// every model-day to have succeeded; unexecuted model-days (dates skipped
// for missing price data) leave the job partial so the status alone shows
// the coverage gap.
func Aggregate(days []*contracts.ModelDay) (contracts.JobStatus, string) {
	var completed, failed, unrun int
	for _, d := range days {
		switch d.Status {
		case contracts.ModelDayCompleted:
			completed++
		case contracts.ModelDayFailed:
			failed++
		default:
			unrun++
		}
	}

	switch {
	case completed > 0 && failed == 0 && unrun == 0:
		return contracts.JobCompleted, ""
	case completed > 0 && failed > 0:
		return contracts.JobPartial, fmt.Sprintf("%d of %d model-days failed", failed, completed+failed)
	case completed > 0:
		return contracts.JobPartial, fmt.Sprintf("%d of %d model-days were not executed", unrun, completed+unrun)
	case failed > 0:
		return contracts.JobFailed, "all model-days failed"
	default:
		return contracts.JobFailed, "no model-days were executed"
	}
}

// IsResumable reports whether a worker may pick the job up: fresh jobs
// and jobs interrupted mid-run both qualify.
func IsResumable(status contracts.JobStatus) bool {
	return status == contracts.JobPending ||
		status == contracts.JobDownloadingData ||
		status == contracts.JobRunning
}
