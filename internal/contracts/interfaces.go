package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger is the append-only position ledger.
// ⭐ SSOT: PositionRecord를 쓰는 경로는 이 인터페이스 하나뿐
// RecordBaseline and RecordAction are the only mutating operations; any
// second writer path is the documented root cause of ledger corruption.
type Ledger interface {
	// RecordBaseline creates the seq-0 record for a (job, model) pair.
	// Returns ErrDuplicateBaseline if any record already exists at or
	// before date.
	RecordBaseline(ctx context.Context, jobID uuid.UUID, modelID string, date time.Time, cash float64, holdings []Holding) (*PositionRecord, error)

	// RecordAction appends the next record for a (job, model) pair. If the
	// action is the first of a new calendar date, a start-of-day baseline
	// record (prior cash/holdings carried forward, re-marked at the day's
	// opening prices) is materialized first in the same transaction.
	RecordAction(ctx context.Context, in ActionInput) (*PositionRecord, error)

	// CurrentPosition returns the most recent position with date <= asOf,
	// scanning across all prior dates. A pair with no records yields
	// Initialized=false, never a fabricated cash=0 position.
	CurrentPosition(ctx context.Context, jobID uuid.UUID, modelID string, asOf time.Time) (*Position, error)

	// Records returns the full ledger stream for audit, ascending by seq.
	Records(ctx context.Context, jobID uuid.UUID, modelID string) ([]*PositionRecord, error)
}

// ActionInput is the input to Ledger.RecordAction.
type ActionInput struct {
	JobID       uuid.UUID
	ModelID     string
	Date        time.Time
	Action      ActionKind // buy, sell or hold; baseline records are internal
	Symbol      string
	Quantity    float64
	NewCash     float64
	NewHoldings []Holding
	ModelDayID  *int64
}

// PriceSource answers mark-to-market valuation queries for the ledger.
type PriceSource interface {
	// OpenPrice returns the opening price on date, falling back to the
	// latest close at or before date when the day has no row.
	OpenPrice(ctx context.Context, symbol string, date time.Time) (float64, error)

	// CloseAsOf returns the latest closing price at or before date.
	CloseAsOf(ctx context.Context, symbol string, date time.Time) (float64, error)
}

// DownloadResult classifies the terminal outcome of a download attempt.
// Partial failure is a valid outcome, not an error.
type DownloadResult struct {
	Downloaded  []string // symbols fully fetched
	Failed      []string // symbols that errored (non-rate-limit)
	RateLimited bool     // vendor budget exhausted before finishing
}

// Downloader fetches missing daily prices from the vendor. The requested
// date set is passed for prioritization: requested dates take precedence
// over any lookback padding the vendor batches in.
type Downloader interface {
	Download(ctx context.Context, missing map[string][]time.Time, requested []time.Time) (*DownloadResult, error)
}

// Decision is the outcome of one model-day agent invocation:
// zero or one trade, with hold as the fallback.
type Decision struct {
	Action    ActionKind `json:"action"` // buy, sell or hold
	Symbol    string     `json:"symbol,omitempty"`
	Quantity  float64    `json:"quantity,omitempty"`
	Rationale string     `json:"rationale,omitempty"`
}

// DecisionRequest carries everything an agent may consider for one session.
type DecisionRequest struct {
	JobID    uuid.UUID
	ModelID  string
	Date     time.Time
	Cash     float64
	Holdings []Holding
	Quotes   map[string]float64 // closing prices for the tradable universe
}

// Agent produces trading decisions. Implementations are black boxes; the
// engine only relies on the returned Decision.
type Agent interface {
	Decide(ctx context.Context, req DecisionRequest) (*Decision, error)
}

// JobStore persists simulation jobs.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	SetStatus(ctx context.Context, id uuid.UUID, status JobStatus, errMsg string) error
	AppendWarnings(ctx context.Context, id uuid.UUID, warnings []string) error
}

// ModelDayStore persists model-day work units.
type ModelDayStore interface {
	CreateBatch(ctx context.Context, days []*ModelDay) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*ModelDay, error)
	// CompletedDates returns dates with a completed model-day for the model
	// within [from, to], used by the schedule filter for idempotent resume.
	CompletedDates(ctx context.Context, jobID uuid.UUID, modelID string, from, to time.Time) ([]time.Time, error)
	Get(ctx context.Context, jobID uuid.UUID, modelID string, date time.Time) (*ModelDay, error)
	SetStatus(ctx context.Context, id int64, status ModelDayStatus, errMsg string) error
}
