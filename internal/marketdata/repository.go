package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoPrice is returned when no stored row can answer a valuation query.
// Callers must treat it as a hard error, never as price zero.
var ErrNoPrice = errors.New("no price data")

// DailyPrice represents one vendor bar
type DailyPrice struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Repository handles daily price persistence
// ⭐ SSOT: 가격 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new price repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save upserts a single price bar
func (r *Repository) Save(ctx context.Context, p *DailyPrice) error {
	query := `
		INSERT INTO data.daily_prices (symbol, trade_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	_, err := r.pool.Exec(ctx, query,
		p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume,
	)
	if err != nil {
		return fmt.Errorf("failed to save price: %w", err)
	}
	return nil
}

// SaveBatch upserts multiple price bars
func (r *Repository) SaveBatch(ctx context.Context, prices []*DailyPrice) error {
	for _, p := range prices {
		if err := r.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// MissingDates returns the subset of candidate dates with no stored row
// for the symbol. Pure query, no side effects.
func (r *Repository) MissingDates(ctx context.Context, symbol string, dates []time.Time) ([]time.Time, error) {
	if len(dates) == 0 {
		return nil, nil
	}

	query := `
		SELECT d::date
		FROM unnest($2::date[]) AS d
		WHERE NOT EXISTS (
			SELECT 1 FROM data.daily_prices
			WHERE symbol = $1 AND trade_date = d::date
		)
		ORDER BY d
	`

	rows, err := r.pool.Query(ctx, query, symbol, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing dates: %w", err)
	}
	defer rows.Close()

	var missing []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		missing = append(missing, d)
	}
	return missing, rows.Err()
}

// CoveredDates returns the subset of candidate dates for which every
// symbol has a stored row.
func (r *Repository) CoveredDates(ctx context.Context, symbols []string, dates []time.Time) ([]time.Time, error) {
	if len(dates) == 0 || len(symbols) == 0 {
		return nil, nil
	}

	query := `
		SELECT d::date
		FROM unnest($2::date[]) AS d
		WHERE (
			SELECT COUNT(DISTINCT symbol) FROM data.daily_prices
			WHERE trade_date = d::date AND symbol = ANY($1)
		) = cardinality($1::text[])
		ORDER BY d
	`

	rows, err := r.pool.Query(ctx, query, symbols, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to query covered dates: %w", err)
	}
	defer rows.Close()

	var covered []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		covered = append(covered, d)
	}
	return covered, rows.Err()
}

// AvailableTradingDates returns distinct dates with any stored row
// within [from, to], ascending.
func (r *Repository) AvailableTradingDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT DISTINCT trade_date
		FROM data.daily_prices
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// OpenPrice returns the opening price on date, falling back to the latest
// close at or before date when the day has no row.
func (r *Repository) OpenPrice(ctx context.Context, symbol string, date time.Time) (float64, error) {
	query := `
		SELECT open_price
		FROM data.daily_prices
		WHERE symbol = $1 AND trade_date = $2
	`

	var open float64
	err := r.pool.QueryRow(ctx, query, symbol, date).Scan(&open)
	if err == nil {
		return open, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to get open price: %w", err)
	}

	return r.CloseAsOf(ctx, symbol, date)
}

// CloseAsOf returns the latest closing price at or before date.
func (r *Repository) CloseAsOf(ctx context.Context, symbol string, date time.Time) (float64, error) {
	query := `
		SELECT close_price
		FROM data.daily_prices
		WHERE symbol = $1 AND trade_date <= $2
		ORDER BY trade_date DESC
		LIMIT 1
	`

	var closePrice float64
	err := r.pool.QueryRow(ctx, query, symbol, date).Scan(&closePrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s as of %s", ErrNoPrice, symbol, date.Format("2006-01-02"))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get close price: %w", err)
	}
	return closePrice, nil
}

// Closes returns the latest closing price at or before date for each
// symbol. Symbols with no data at all are omitted.
func (r *Repository) Closes(ctx context.Context, symbols []string, date time.Time) (map[string]float64, error) {
	quotes := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		closePrice, err := r.CloseAsOf(ctx, s, date)
		if errors.Is(err, ErrNoPrice) {
			continue
		}
		if err != nil {
			return nil, err
		}
		quotes[s] = closePrice
	}
	return quotes, nil
}
