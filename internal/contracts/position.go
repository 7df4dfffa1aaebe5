package contracts

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind classifies the trigger of a position record
// ⭐ SSOT: 액션 종류 정의는 여기서만
type ActionKind string

const (
	ActionBaseline ActionKind = "baseline" // start-of-day snapshot, carried forward
	ActionBuy      ActionKind = "buy"
	ActionSell     ActionKind = "sell"
	ActionHold     ActionKind = "hold" // explicit no-trade decision
)

// Holding is one (symbol, quantity) line owned by a position record.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// PositionRecord is the ledger's atomic unit. Seq is globally monotonic
// per (job, model) across the whole simulation; the lowest-seq record of a
// calendar date is that date's start-of-day baseline.
type PositionRecord struct {
	ID             int64      `json:"id"`
	JobID          uuid.UUID  `json:"job_id"`
	ModelID        string     `json:"model_id"`
	Date           time.Time  `json:"date"`
	Seq            int        `json:"seq"`
	Cash           float64    `json:"cash"`
	PortfolioValue float64    `json:"portfolio_value"` // cash + mark-to-market holdings
	DailyProfit    *float64   `json:"daily_profit,omitempty"`
	DailyReturnPct *float64   `json:"daily_return_pct,omitempty"`
	Action         ActionKind `json:"action"`
	Symbol         string     `json:"symbol,omitempty"`
	Quantity       float64    `json:"quantity,omitempty"`
	ModelDayID     *int64     `json:"model_day_id,omitempty"` // session that produced this record
	Holdings       []Holding  `json:"holdings"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Position is the answer to "what does this model hold right now".
// Initialized distinguishes "no ledger record yet" from "empty position":
// the two must never collapse into cash=0.
type Position struct {
	Initialized bool
	Cash        float64
	Holdings    []Holding
	NextSeq     int
	AsOf        time.Time // date of the record the position was read from
}

// Quantity returns the held quantity for a symbol, zero if absent.
func (p *Position) Quantity(symbol string) float64 {
	for _, h := range p.Holdings {
		if h.Symbol == symbol {
			return h.Quantity
		}
	}
	return 0
}
