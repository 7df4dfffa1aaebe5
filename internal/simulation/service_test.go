package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/backend/internal/contracts"
)

func TestJobRequest_Validate(t *testing.T) {
	valid := JobRequest{
		Dates:       []time.Time{day(2026, 1, 5)},
		Models:      []string{"gpt-5.2"},
		InitialCash: 10000,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*JobRequest)
	}{
		{"no dates", func(r *JobRequest) { r.Dates = nil }},
		{"no models", func(r *JobRequest) { r.Models = nil }},
		{"zero cash", func(r *JobRequest) { r.InitialCash = 0 }},
		{"negative cash", func(r *JobRequest) { r.InitialCash = -100 }},
		{"empty model id", func(r *JobRequest) { r.Models = []string{""} }},
		{"duplicate model", func(r *JobRequest) { r.Models = []string{"gpt-5.2", "gpt-5.2"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.Dates = append([]time.Time(nil), valid.Dates...)
			req.Models = append([]string(nil), valid.Models...)
			tt.mutate(&req)
			assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
		})
	}
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()
	jobs := newMemJobStore()
	days := newMemDayStore()

	// unsorted, duplicated, with a time-of-day component
	reqDates := []time.Time{
		time.Date(2026, 1, 6, 15, 30, 0, 0, time.UTC),
		day(2026, 1, 5),
		day(2026, 1, 6),
	}

	job, err := CreateJob(ctx, jobs, days, JobRequest{
		Dates:       reqDates,
		Models:      []string{"gpt-5.2", "claude-opus-4.6"},
		InitialCash: 10000,
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.JobPending, job.Status)
	assert.Equal(t, []time.Time{day(2026, 1, 5), day(2026, 1, 6)}, job.Dates)

	stored, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)

	// full date × model grid
	grid, err := days.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, grid, 4)
	for _, d := range grid {
		assert.Equal(t, contracts.ModelDayPending, d.Status)
	}
}

func TestCreateJob_InvalidRequest(t *testing.T) {
	_, err := CreateJob(context.Background(), newMemJobStore(), newMemDayStore(), JobRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
