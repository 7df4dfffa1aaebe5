package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/internal/marketdata"
)

// Integration tests against a real database. Run with:
//
//	DATABASE_URL=postgres://... go test ./internal/ledger/
func setupTestLedger(t *testing.T) (*Ledger, *pgxpool.Pool, uuid.UUID) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "database connection failed")
	t.Cleanup(pool.Close)

	jobID := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO sim.jobs (id, dates, models, initial_cash, status)
		VALUES ($1, $2, $3, $4, 'running')
	`, jobID, []time.Time{day(5), day(6)}, []string{"gpt-5.2"}, 10000.0)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM sim.position_records WHERE job_id = $1`, jobID)
		_, _ = pool.Exec(ctx, `DELETE FROM sim.jobs WHERE id = $1`, jobID)
		_, _ = pool.Exec(ctx, `DELETE FROM data.daily_prices WHERE symbol = 'LGRTEST'`)
	})

	prices := marketdata.NewRepository(pool)
	require.NoError(t, prices.SaveBatch(ctx, []*marketdata.DailyPrice{
		{Symbol: "LGRTEST", Date: day(5), Open: 99.00, High: 101, Low: 98, Close: 100.00, Volume: 1000},
		{Symbol: "LGRTEST", Date: day(6), Open: 100.00, High: 102, Low: 99, Close: 101.75, Volume: 1000},
	}))

	return New(pool, prices), pool, jobID
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestLedger_TwoDayScenario(t *testing.T) {
	ledg, _, jobID := setupTestLedger(t)
	ctx := context.Background()
	model := "gpt-5.2"

	// Day one: initial baseline, then a value-neutral buy at the close.
	base, err := ledg.RecordBaseline(ctx, jobID, model, day(5), 10000, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, base.Seq)
	assert.Equal(t, 10000.0, base.PortfolioValue)
	assert.Nil(t, base.DailyProfit)

	buy, err := ledg.RecordAction(ctx, contracts.ActionInput{
		JobID: jobID, ModelID: model, Date: day(5),
		Action: contracts.ActionBuy, Symbol: "LGRTEST", Quantity: 10,
		NewCash:     9000,
		NewHoldings: []contracts.Holding{{Symbol: "LGRTEST", Quantity: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, buy.Seq)
	// 9000 cash + 10 shares at the 100.00 close
	assert.Equal(t, 10000.0, buy.PortfolioValue)
	require.NotNil(t, buy.DailyProfit)
	assert.InDelta(t, 0.0, *buy.DailyProfit, 1e-9)

	// Day two: the first action materializes the start-of-day baseline
	// (position carried forward, re-marked at the 100.00 open), then the
	// hold marks at the 101.75 close.
	hold, err := ledg.RecordAction(ctx, contracts.ActionInput{
		JobID: jobID, ModelID: model, Date: day(6),
		Action:      contracts.ActionHold,
		NewCash:     9000,
		NewHoldings: []contracts.Holding{{Symbol: "LGRTEST", Quantity: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, hold.Seq)
	assert.InDelta(t, 10017.50, hold.PortfolioValue, 1e-9)
	require.NotNil(t, hold.DailyProfit)
	assert.InDelta(t, 17.50, *hold.DailyProfit, 1e-9)
	require.NotNil(t, hold.DailyReturnPct)
	assert.InDelta(t, 0.175, *hold.DailyReturnPct, 1e-9)

	// Full stream: seq gapless, day-two baseline has null profit.
	recs, err := ledg.Records(ctx, jobID, model)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for i, r := range recs {
		assert.Equal(t, i, r.Seq)
	}
	dayTwoBaseline := recs[2]
	assert.Equal(t, contracts.ActionBaseline, dayTwoBaseline.Action)
	assert.InDelta(t, 10000.0, dayTwoBaseline.PortfolioValue, 1e-9)
	assert.Nil(t, dayTwoBaseline.DailyProfit)
	assert.Equal(t, []contracts.Holding{{Symbol: "LGRTEST", Quantity: 10}}, dayTwoBaseline.Holdings)
}

func TestLedger_DuplicateBaseline(t *testing.T) {
	ledg, _, jobID := setupTestLedger(t)
	ctx := context.Background()

	_, err := ledg.RecordBaseline(ctx, jobID, "gpt-5.2", day(5), 10000, nil)
	require.NoError(t, err)

	_, err = ledg.RecordBaseline(ctx, jobID, "gpt-5.2", day(5), 10000, nil)
	assert.ErrorIs(t, err, ErrDuplicateBaseline)

	// later date counts too: a baseline may not appear behind records
	_, err = ledg.RecordBaseline(ctx, jobID, "gpt-5.2", day(6), 10000, nil)
	assert.ErrorIs(t, err, ErrDuplicateBaseline)
}

func TestLedger_ActionBeforeBaseline(t *testing.T) {
	ledg, _, jobID := setupTestLedger(t)

	_, err := ledg.RecordAction(context.Background(), contracts.ActionInput{
		JobID: jobID, ModelID: "gpt-5.2", Date: day(5),
		Action: contracts.ActionHold, NewCash: 10000,
	})
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestLedger_OutOfOrderAction(t *testing.T) {
	ledg, _, jobID := setupTestLedger(t)
	ctx := context.Background()
	model := "gpt-5.2"

	_, err := ledg.RecordBaseline(ctx, jobID, model, day(5), 10000, nil)
	require.NoError(t, err)
	_, err = ledg.RecordAction(ctx, contracts.ActionInput{
		JobID: jobID, ModelID: model, Date: day(6),
		Action: contracts.ActionHold, NewCash: 10000,
	})
	require.NoError(t, err)

	// dates only move forward
	_, err = ledg.RecordAction(ctx, contracts.ActionInput{
		JobID: jobID, ModelID: model, Date: day(5),
		Action: contracts.ActionHold, NewCash: 10000,
	})
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestLedger_CurrentPosition(t *testing.T) {
	ledg, _, jobID := setupTestLedger(t)
	ctx := context.Background()
	model := "gpt-5.2"

	// an unknown pair reads as uninitialized, never as cash=0
	pos, err := ledg.CurrentPosition(ctx, jobID, "nobody", day(5))
	require.NoError(t, err)
	assert.False(t, pos.Initialized)

	_, err = ledg.RecordBaseline(ctx, jobID, model, day(5), 10000, nil)
	require.NoError(t, err)
	_, err = ledg.RecordAction(ctx, contracts.ActionInput{
		JobID: jobID, ModelID: model, Date: day(5),
		Action: contracts.ActionBuy, Symbol: "LGRTEST", Quantity: 10,
		NewCash:     9000,
		NewHoldings: []contracts.Holding{{Symbol: "LGRTEST", Quantity: 10}},
	})
	require.NoError(t, err)

	// a later as-of date carries the last position forward
	pos, err = ledg.CurrentPosition(ctx, jobID, model, day(9))
	require.NoError(t, err)
	assert.True(t, pos.Initialized)
	assert.Equal(t, 9000.0, pos.Cash)
	assert.Equal(t, []contracts.Holding{{Symbol: "LGRTEST", Quantity: 10}}, pos.Holdings)
	assert.Equal(t, 2, pos.NextSeq)
	assert.Equal(t, day(5), pos.AsOf)

	// an earlier as-of date sees nothing
	pos, err = ledg.CurrentPosition(ctx, jobID, model, day(2))
	require.NoError(t, err)
	assert.False(t, pos.Initialized)
}
