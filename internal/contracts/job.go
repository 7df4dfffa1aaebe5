package contracts

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a simulation job
// ⭐ SSOT: Job 상태 정의는 여기서만
type JobStatus string

const (
	JobPending         JobStatus = "pending"
	JobDownloadingData JobStatus = "downloading_data"
	JobRunning         JobStatus = "running"
	JobCompleted       JobStatus = "completed"
	JobPartial         JobStatus = "partial"
	JobFailed          JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobPartial || s == JobFailed
}

// Job is one multi-day, multi-model simulation request.
// Jobs are created in pending and are never deleted (audit retention).
type Job struct {
	ID          uuid.UUID   `json:"id"`
	Dates       []time.Time `json:"dates"` // requested calendar dates, ascending
	Models      []string    `json:"models"`
	InitialCash float64     `json:"initial_cash"`
	Status      JobStatus   `json:"status"`
	Error       string      `json:"error,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// ModelDayStatus represents the state of one (date, model) work unit
type ModelDayStatus string

const (
	ModelDayPending   ModelDayStatus = "pending"
	ModelDayRunning   ModelDayStatus = "running"
	ModelDayCompleted ModelDayStatus = "completed"
	ModelDayFailed    ModelDayStatus = "failed"
)

// ModelDay is one simulated trading session: one model on one date.
// Immutable once completed or failed.
type ModelDay struct {
	ID          int64          `json:"id"`
	JobID       uuid.UUID      `json:"job_id"`
	ModelID     string         `json:"model_id"`
	Date        time.Time      `json:"date"`
	Status      ModelDayStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
