package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wonny/arena/backend/internal/contracts"
)

// insertRecord writes a position record and its holdings.
// The two call sites in ledger.go are the only writers of these tables.
func insertRecord(ctx context.Context, tx pgx.Tx, rec *contracts.PositionRecord) error {
	var symbol *string
	if rec.Symbol != "" {
		symbol = &rec.Symbol
	}
	var quantity *float64
	if rec.Quantity != 0 {
		quantity = &rec.Quantity
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO sim.position_records (
			job_id, model_id, trade_date, seq, cash, portfolio_value,
			daily_profit, daily_return_pct, action, symbol, quantity, model_day_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`,
		rec.JobID, rec.ModelID, rec.Date, rec.Seq, rec.Cash, rec.PortfolioValue,
		rec.DailyProfit, rec.DailyReturnPct, rec.Action, symbol, quantity, rec.ModelDayID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert position record: %w", err)
	}

	for _, h := range rec.Holdings {
		_, err := tx.Exec(ctx, `
			INSERT INTO sim.holdings (record_id, symbol, quantity)
			VALUES ($1, $2, $3)
		`, rec.ID, h.Symbol, h.Quantity)
		if err != nil {
			return fmt.Errorf("insert holding %s: %w", h.Symbol, err)
		}
	}

	return nil
}

// latestRecord loads the highest-seq record for a pair, with holdings.
func latestRecord(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, modelID string) (*contracts.PositionRecord, error) {
	var rec contracts.PositionRecord
	err := tx.QueryRow(ctx, `
		SELECT id, trade_date, seq, cash, portfolio_value
		FROM sim.position_records
		WHERE job_id = $1 AND model_id = $2
		ORDER BY seq DESC
		LIMIT 1
	`, jobID, modelID).Scan(&rec.ID, &rec.Date, &rec.Seq, &rec.Cash, &rec.PortfolioValue)
	if err != nil {
		return nil, err
	}

	rec.JobID = jobID
	rec.ModelID = modelID

	holdings, err := recordHoldings(ctx, tx, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Holdings = holdings

	return &rec, nil
}

// dayBaselineValue reads the portfolio value of the lowest-seq record of
// the given date, i.e. the start-of-day baseline.
func dayBaselineValue(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, modelID string, date time.Time) (float64, error) {
	var value float64
	err := tx.QueryRow(ctx, `
		SELECT portfolio_value
		FROM sim.position_records
		WHERE job_id = $1 AND model_id = $2 AND trade_date = $3
		ORDER BY seq ASC
		LIMIT 1
	`, jobID, modelID, date).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("load day baseline: %w", err)
	}
	return value, nil
}

// rowQuerier is the common query surface of pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// recordHoldings loads the holdings owned by one position record.
func recordHoldings(ctx context.Context, q rowQuerier, recordID int64) ([]contracts.Holding, error) {
	rows, err := q.Query(ctx, `
		SELECT symbol, quantity
		FROM sim.holdings
		WHERE record_id = $1
		ORDER BY symbol ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []contracts.Holding
	for rows.Next() {
		var h contracts.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
