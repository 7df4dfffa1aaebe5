package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/internal/marketdata"
)

var (
	// ErrDuplicateBaseline is returned when a baseline already exists at
	// or before the given date for the (job, model) pair.
	ErrDuplicateBaseline = errors.New("ledger: baseline already recorded")

	// ErrUninitialized is returned by RecordAction when the pair has no
	// baseline yet. Reads signal the same condition via
	// Position.Initialized=false instead of an error.
	ErrUninitialized = errors.New("ledger: no baseline for model")

	// ErrOutOfOrder is returned when an action is recorded for a date
	// earlier than the latest ledger record. Dates run strictly forward.
	ErrOutOfOrder = errors.New("ledger: action date precedes latest record")
)

// Ledger is the append-only position ledger over PostgreSQL.
// Implements contracts.Ledger: RecordBaseline and RecordAction are the
// only two code paths that insert position records anywhere in the
// system.
// ⭐ SSOT: 포지션 기록은 이 타입을 통해서만 쓰임
type Ledger struct {
	pool   *pgxpool.Pool
	prices contracts.PriceSource

	// Serializes sequence allocation per (job, model). The worker fans
	// out across models, never within one, so contention is zero in
	// practice; the lock guards against future callers.
	mu    sync.Mutex
	pairs map[string]*sync.Mutex
}

// New creates a ledger backed by the given pool and price source.
func New(pool *pgxpool.Pool, prices contracts.PriceSource) *Ledger {
	return &Ledger{
		pool:   pool,
		prices: prices,
		pairs:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) pairLock(jobID uuid.UUID, modelID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := jobID.String() + "/" + modelID
	m, ok := l.pairs[key]
	if !ok {
		m = &sync.Mutex{}
		l.pairs[key] = m
	}
	return m
}

// RecordBaseline creates the seq-0 record for a (job, model) pair.
func (l *Ledger) RecordBaseline(ctx context.Context, jobID uuid.UUID, modelID string, date time.Time, cash float64, holdings []contracts.Holding) (*contracts.PositionRecord, error) {
	lock := l.pairLock(jobID, modelID)
	lock.Lock()
	defer lock.Unlock()

	date = marketdata.Day(date)

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sim.position_records
			WHERE job_id = $1 AND model_id = $2 AND trade_date <= $3
		)
	`, jobID, modelID, date).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check existing baseline: %w", err)
	}
	if exists {
		return nil, ErrDuplicateBaseline
	}

	value, err := l.markValue(ctx, cash, holdings, date, true)
	if err != nil {
		return nil, err
	}

	rec := &contracts.PositionRecord{
		JobID:          jobID,
		ModelID:        modelID,
		Date:           date,
		Seq:            0,
		Cash:           cash,
		PortfolioValue: value,
		Action:         contracts.ActionBaseline,
		Holdings:       holdings,
	}

	if err := insertRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// RecordAction appends the next record for a (job, model) pair.
//
// If the action opens a new calendar date, the prior position is first
// carried forward as that date's start-of-day baseline, re-marked at the
// day's opening prices, in the same transaction. The baseline record
// carries null profit (no same-day comparator); the action record's
// profit is the mark-to-market value delta against that baseline.
func (l *Ledger) RecordAction(ctx context.Context, in contracts.ActionInput) (*contracts.PositionRecord, error) {
	lock := l.pairLock(in.JobID, in.ModelID)
	lock.Lock()
	defer lock.Unlock()

	date := marketdata.Day(in.Date)

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	latest, err := latestRecord(ctx, tx, in.JobID, in.ModelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUninitialized
	}
	if err != nil {
		return nil, err
	}
	if latest.Date.After(date) {
		return nil, fmt.Errorf("%w: latest=%s action=%s", ErrOutOfOrder,
			latest.Date.Format("2006-01-02"), date.Format("2006-01-02"))
	}

	nextSeq := latest.Seq + 1

	// Start-of-day baseline: lowest-seq record of this date. Materialize
	// it lazily on the date's first action by carrying the prior
	// position forward unchanged, re-marked at today's opening prices.
	var baselineValue float64
	if latest.Date.Equal(date) {
		baselineValue, err = dayBaselineValue(ctx, tx, in.JobID, in.ModelID, date)
		if err != nil {
			return nil, err
		}
	} else {
		carryValue, err := l.markValue(ctx, latest.Cash, latest.Holdings, date, true)
		if err != nil {
			return nil, err
		}

		baseline := &contracts.PositionRecord{
			JobID:          in.JobID,
			ModelID:        in.ModelID,
			Date:           date,
			Seq:            nextSeq,
			Cash:           latest.Cash,
			PortfolioValue: carryValue,
			Action:         contracts.ActionBaseline,
			Holdings:       latest.Holdings,
			ModelDayID:     in.ModelDayID,
		}
		if err := insertRecord(ctx, tx, baseline); err != nil {
			return nil, err
		}

		baselineValue = carryValue
		nextSeq++
	}

	value, err := l.markValue(ctx, in.NewCash, in.NewHoldings, date, false)
	if err != nil {
		return nil, err
	}

	profit := value - baselineValue
	var returnPct float64
	if baselineValue != 0 {
		returnPct = profit / baselineValue * 100
	}

	rec := &contracts.PositionRecord{
		JobID:          in.JobID,
		ModelID:        in.ModelID,
		Date:           date,
		Seq:            nextSeq,
		Cash:           in.NewCash,
		PortfolioValue: value,
		DailyProfit:    &profit,
		DailyReturnPct: &returnPct,
		Action:         in.Action,
		Symbol:         in.Symbol,
		Quantity:       in.Quantity,
		ModelDayID:     in.ModelDayID,
		Holdings:       in.NewHoldings,
	}

	if err := insertRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// CurrentPosition returns the most recent position with date <= asOf,
// scanning across all prior dates. Weekends and holidays therefore
// carry the last trading day's position forward unchanged.
func (l *Ledger) CurrentPosition(ctx context.Context, jobID uuid.UUID, modelID string, asOf time.Time) (*contracts.Position, error) {
	asOf = marketdata.Day(asOf)

	query := `
		SELECT id, trade_date, seq, cash
		FROM sim.position_records
		WHERE job_id = $1 AND model_id = $2 AND trade_date <= $3
		ORDER BY seq DESC
		LIMIT 1
	`

	var (
		recordID int64
		date     time.Time
		seq      int
		cash     float64
	)
	err := l.pool.QueryRow(ctx, query, jobID, modelID, asOf).Scan(&recordID, &date, &seq, &cash)
	if errors.Is(err, pgx.ErrNoRows) {
		// Uninitialized, not "empty": never fabricate cash=0 here.
		return &contracts.Position{Initialized: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query current position: %w", err)
	}

	holdings, err := recordHoldings(ctx, l.pool, recordID)
	if err != nil {
		return nil, err
	}

	return &contracts.Position{
		Initialized: true,
		Cash:        cash,
		Holdings:    holdings,
		NextSeq:     seq + 1,
		AsOf:        date,
	}, nil
}

// Records returns the full ledger stream for a pair, ascending by seq.
func (l *Ledger) Records(ctx context.Context, jobID uuid.UUID, modelID string) ([]*contracts.PositionRecord, error) {
	query := `
		SELECT id, job_id, model_id, trade_date, seq, cash, portfolio_value,
		       daily_profit, daily_return_pct, action, symbol, quantity,
		       model_day_id, created_at
		FROM sim.position_records
		WHERE job_id = $1 AND model_id = $2
		ORDER BY seq ASC
	`

	rows, err := l.pool.Query(ctx, query, jobID, modelID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]*contracts.PositionRecord, 0)
	for rows.Next() {
		var rec contracts.PositionRecord
		var symbol *string
		var quantity *float64
		if err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.ModelID, &rec.Date, &rec.Seq, &rec.Cash,
			&rec.PortfolioValue, &rec.DailyProfit, &rec.DailyReturnPct,
			&rec.Action, &symbol, &quantity, &rec.ModelDayID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if symbol != nil {
			rec.Symbol = *symbol
		}
		if quantity != nil {
			rec.Quantity = *quantity
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	for _, rec := range records {
		holdings, err := recordHoldings(ctx, l.pool, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Holdings = holdings
	}

	return records, nil
}

// markValue computes cash + mark-to-market holdings. Baselines mark at
// the day's opening prices, action records at the latest close.
func (l *Ledger) markValue(ctx context.Context, cash float64, holdings []contracts.Holding, date time.Time, atOpen bool) (float64, error) {
	value := cash
	for _, h := range holdings {
		var price float64
		var err error
		if atOpen {
			price, err = l.prices.OpenPrice(ctx, h.Symbol, date)
		} else {
			price, err = l.prices.CloseAsOf(ctx, h.Symbol, date)
		}
		if err != nil {
			// A missing price must abort, never value the line at zero.
			return 0, fmt.Errorf("mark %s at %s: %w", h.Symbol, date.Format("2006-01-02"), err)
		}
		value += h.Quantity * price
	}
	return value, nil
}
