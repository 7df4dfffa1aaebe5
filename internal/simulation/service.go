package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/arena/backend/internal/contracts"
)

// ErrInvalidRequest is returned when a job request fails validation.
var ErrInvalidRequest = errors.New("simulation: invalid job request")

// JobRequest is the input to CreateJob.
type JobRequest struct {
	Dates       []time.Time
	Models      []string
	InitialCash float64
}

// Validate checks the request shape before anything is persisted.
func (r *JobRequest) Validate() error {
	if len(r.Dates) == 0 {
		return fmt.Errorf("%w: at least one date is required", ErrInvalidRequest)
	}
	if len(r.Models) == 0 {
		return fmt.Errorf("%w: at least one model is required", ErrInvalidRequest)
	}
	if r.InitialCash <= 0 {
		return fmt.Errorf("%w: initial cash must be positive", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(r.Models))
	for _, m := range r.Models {
		if m == "" {
			return fmt.Errorf("%w: empty model id", ErrInvalidRequest)
		}
		if seen[m] {
			return fmt.Errorf("%w: duplicate model %s", ErrInvalidRequest, m)
		}
		seen[m] = true
	}
	return nil
}

// CreateJob persists a new pending job together with its full
// (date × model) model-day grid. The job id is returned immediately;
// execution happens asynchronously in the worker.
func CreateJob(ctx context.Context, jobs contracts.JobStore, days contracts.ModelDayStore, req JobRequest) (*contracts.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	dates := normalizeDates(req.Dates)
	job := &contracts.Job{
		ID:          uuid.New(),
		Dates:       dates,
		Models:      req.Models,
		InitialCash: req.InitialCash,
		Status:      contracts.JobPending,
	}

	if err := jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	grid := make([]*contracts.ModelDay, 0, len(dates)*len(req.Models))
	for _, date := range dates {
		for _, model := range req.Models {
			grid = append(grid, &contracts.ModelDay{
				JobID:   job.ID,
				ModelID: model,
				Date:    date,
				Status:  contracts.ModelDayPending,
			})
		}
	}
	if err := days.CreateBatch(ctx, grid); err != nil {
		return nil, fmt.Errorf("create model-days: %w", err)
	}
	return job, nil
}

// normalizeDates dedupes, truncates to UTC midnight and sorts ascending.
func normalizeDates(dates []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
