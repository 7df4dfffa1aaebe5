package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/internal/simulation"
	"github.com/wonny/arena/backend/pkg/config"
	"github.com/wonny/arena/backend/pkg/logger"
)

// CatchupJob submits a nightly simulation job for the configured models
// covering the last few weekdays. Sessions that already completed are
// skipped by the schedule filter, so a machine that was down simply
// catches up on the next run.
// ⭐ SSOT: 야간 따라잡기 스케줄은 이 Job에서만
type CatchupJob struct {
	jobs     contracts.JobStore
	days     contracts.ModelDayStore
	worker   *simulation.Worker
	config   *config.Config
	logger   *logger.Logger
	lookback int // weekdays to cover, including today
}

// NewCatchupJob creates a new nightly catch-up job
func NewCatchupJob(
	jobs contracts.JobStore,
	days contracts.ModelDayStore,
	worker *simulation.Worker,
	cfg *config.Config,
	log *logger.Logger,
) *CatchupJob {
	return &CatchupJob{
		jobs:     jobs,
		days:     days,
		worker:   worker,
		config:   cfg,
		logger:   log,
		lookback: 5,
	}
}

// Name returns the job name
func (j *CatchupJob) Name() string {
	return "simulation_catchup"
}

// Schedule returns the cron schedule (every day at 10 PM)
func (j *CatchupJob) Schedule() string {
	return "0 0 22 * * *"
}

// Run submits and executes the catch-up job synchronously so the
// scheduler's retry logic applies to the whole run.
func (j *CatchupJob) Run(ctx context.Context) error {
	if len(j.config.Sim.Models) == 0 {
		j.logger.Warn("SIM_MODELS is empty, skipping catch-up")
		return nil
	}

	dates := recentWeekdays(time.Now().UTC(), j.lookback)

	job, err := simulation.CreateJob(ctx, j.jobs, j.days, simulation.JobRequest{
		Dates:       dates,
		Models:      j.config.Sim.Models,
		InitialCash: j.config.Sim.InitialCash,
	})
	if err != nil {
		return fmt.Errorf("create catch-up job: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"dates":  len(dates),
		"models": len(j.config.Sim.Models),
	}).Info("Catch-up job submitted")

	if err := j.worker.Run(ctx, job.ID); err != nil {
		return fmt.Errorf("run catch-up job: %w", err)
	}
	return nil
}

// recentWeekdays returns the last n weekdays ending at today, ascending.
func recentWeekdays(now time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for len(dates) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	// ascending order
	for i, k := 0, len(dates)-1; i < k; i, k = i+1, k-1 {
		dates[i], dates[k] = dates[k], dates[i]
	}
	return dates
}
