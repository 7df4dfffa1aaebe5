package marketdata

import (
	"context"
	"time"
)

// CoverageStore is the slice of the price repository the checker needs.
type CoverageStore interface {
	MissingDates(ctx context.Context, symbol string, dates []time.Time) ([]time.Time, error)
}

// Checker determines which symbols/dates lack price data
// ⭐ SSOT: 커버리지 판정은 여기서만
type Checker struct {
	store   CoverageStore
	symbols []string // tradable universe
}

// NewChecker creates a coverage checker over the configured universe.
func NewChecker(store CoverageStore, symbols []string) *Checker {
	return &Checker{store: store, symbols: symbols}
}

// MissingCoverage returns, per symbol, the weekday dates in [from, to]
// with no stored price row. Pure query; holidays show up as missing and
// are resolved downstream when the vendor returns nothing for them.
func (c *Checker) MissingCoverage(ctx context.Context, from, to time.Time) (map[string][]time.Time, error) {
	candidates := Weekdays(from, to)

	missing := make(map[string][]time.Time)
	for _, symbol := range c.symbols {
		dates, err := c.store.MissingDates(ctx, symbol, candidates)
		if err != nil {
			return nil, err
		}
		if len(dates) > 0 {
			missing[symbol] = dates
		}
	}
	return missing, nil
}

// Symbols returns the universe the checker covers.
func (c *Checker) Symbols() []string {
	return c.symbols
}

// Weekdays returns the Monday-Friday dates in [from, to], ascending.
func Weekdays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

// Day normalizes a timestamp to its UTC calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
