package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/arena/backend/internal/contracts"
)

// ErrJobNotFound is returned when no job matches the given id.
var ErrJobNotFound = errors.New("simulation: job not found")

// ErrTerminalState is returned when an update targets a job or model-day
// that has already reached a terminal status.
var ErrTerminalState = errors.New("simulation: record is in a terminal state")

// JobRepository persists jobs in sim.jobs.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

var _ contracts.JobStore = (*JobRepository)(nil)

// Create inserts a new job in pending status.
func (r *JobRepository) Create(ctx context.Context, job *contracts.Job) error {
	query := `
		INSERT INTO sim.jobs (id, dates, models, initial_cash, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		job.ID, job.Dates, job.Models, job.InitialCash, job.Status,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get fetches a single job by id.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*contracts.Job, error) {
	query := `
		SELECT id, dates, models, initial_cash, status, error, warnings,
		       created_at, started_at, completed_at
		FROM sim.jobs
		WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("query job %s: %w", id, err)
	}
	return job, nil
}

// List returns the most recent jobs, newest first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*contracts.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, dates, models, initial_cash, status, error, warnings,
		       created_at, started_at, completed_at
		FROM sim.jobs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*contracts.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetStatus updates a job's status. Timestamps follow the lifecycle:
// started_at on the first downloading_data, completed_at on any terminal
// status. Updates against a terminal job return ErrTerminalState.
func (r *JobRepository) SetStatus(ctx context.Context, id uuid.UUID, status contracts.JobStatus, errMsg string) error {
	query := `
		UPDATE sim.jobs
		SET status = $2,
		    error = NULLIF($3, ''),
		    started_at = CASE
		        WHEN $2 = 'downloading_data' AND started_at IS NULL THEN now()
		        ELSE started_at
		    END,
		    completed_at = CASE
		        WHEN $2 IN ('completed', 'partial', 'failed') THEN now()
		        ELSE completed_at
		    END
		WHERE id = $1
		  AND status NOT IN ('completed', 'partial', 'failed')`

	tag, err := r.pool.Exec(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// 이미 종료된 Job이거나 존재하지 않음
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("job %s: %w", id, ErrTerminalState)
	}
	return nil
}

// AppendWarnings appends warnings to the job without touching status.
func (r *JobRepository) AppendWarnings(ctx context.Context, id uuid.UUID, warnings []string) error {
	if len(warnings) == 0 {
		return nil
	}
	query := `
		UPDATE sim.jobs
		SET warnings = COALESCE(warnings, '{}') || $2::text[]
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, warnings)
	if err != nil {
		return fmt.Errorf("append warnings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*contracts.Job, error) {
	var (
		job    contracts.Job
		errMsg *string
	)
	err := row.Scan(
		&job.ID, &job.Dates, &job.Models, &job.InitialCash, &job.Status,
		&errMsg, &job.Warnings, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		job.Error = *errMsg
	}
	return &job, nil
}

// ModelDayRepository persists model-day work units in sim.model_days.
type ModelDayRepository struct {
	pool *pgxpool.Pool
}

// NewModelDayRepository creates a new model-day repository
func NewModelDayRepository(pool *pgxpool.Pool) *ModelDayRepository {
	return &ModelDayRepository{pool: pool}
}

var _ contracts.ModelDayStore = (*ModelDayRepository)(nil)

// CreateBatch inserts the full (date × model) grid for a job. Existing
// rows are left untouched so creation is idempotent across retries.
func (r *ModelDayRepository) CreateBatch(ctx context.Context, days []*contracts.ModelDay) error {
	if len(days) == 0 {
		return nil
	}
	query := `
		INSERT INTO sim.model_days (job_id, model_id, trade_date, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, model_id, trade_date) DO NOTHING`

	batch := &pgx.Batch{}
	for _, d := range days {
		batch.Queue(query, d.JobID, d.ModelID, d.Date, d.Status)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range days {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert model-day: %w", err)
		}
	}
	return nil
}

// ListByJob returns all model-days of a job ordered by date then model.
func (r *ModelDayRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*contracts.ModelDay, error) {
	query := `
		SELECT id, job_id, model_id, trade_date, status, error, started_at, completed_at
		FROM sim.model_days
		WHERE job_id = $1
		ORDER BY trade_date, model_id`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query model-days: %w", err)
	}
	defer rows.Close()

	var days []*contracts.ModelDay
	for rows.Next() {
		day, err := scanModelDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model-day: %w", err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// CompletedDates returns the dates within [from, to] on which the model
// already has a completed session.
func (r *ModelDayRepository) CompletedDates(ctx context.Context, jobID uuid.UUID, modelID string, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT trade_date
		FROM sim.model_days
		WHERE job_id = $1 AND model_id = $2
		  AND status = 'completed'
		  AND trade_date BETWEEN $3 AND $4
		ORDER BY trade_date`

	rows, err := r.pool.Query(ctx, query, jobID, modelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query completed dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan completed date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// Get fetches one model-day by its (job, model, date) identity.
func (r *ModelDayRepository) Get(ctx context.Context, jobID uuid.UUID, modelID string, date time.Time) (*contracts.ModelDay, error) {
	query := `
		SELECT id, job_id, model_id, trade_date, status, error, started_at, completed_at
		FROM sim.model_days
		WHERE job_id = $1 AND model_id = $2 AND trade_date = $3`

	day, err := scanModelDay(r.pool.QueryRow(ctx, query, jobID, modelID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query model-day: %w", err)
	}
	return day, nil
}

// SetStatus updates one model-day. Completed and failed rows are
// immutable; updates against them return ErrTerminalState.
func (r *ModelDayRepository) SetStatus(ctx context.Context, id int64, status contracts.ModelDayStatus, errMsg string) error {
	query := `
		UPDATE sim.model_days
		SET status = $2,
		    error = NULLIF($3, ''),
		    started_at = CASE
		        WHEN $2 = 'running' AND started_at IS NULL THEN now()
		        ELSE started_at
		    END,
		    completed_at = CASE
		        WHEN $2 IN ('completed', 'failed') THEN now()
		        ELSE completed_at
		    END
		WHERE id = $1
		  AND status NOT IN ('completed', 'failed')`

	tag, err := r.pool.Exec(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("update model-day status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("model-day %d: %w", id, ErrTerminalState)
	}
	return nil
}

func scanModelDay(row rowScanner) (*contracts.ModelDay, error) {
	var (
		day    contracts.ModelDay
		errMsg *string
	)
	err := row.Scan(
		&day.ID, &day.JobID, &day.ModelID, &day.Date, &day.Status,
		&errMsg, &day.StartedAt, &day.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		day.Error = *errMsg
	}
	return &day, nil
}
