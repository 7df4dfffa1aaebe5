package stooq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVendorSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AAPL", "aapl.us"},
		{"msft", "msft.us"},
		{"SPY.US", "spy.us"},
		{"WIG20.PL", "wig20.pl"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, vendorSymbol(tt.in), tt.in)
	}
}

func TestPrioritize(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
	}

	missing := map[string][]time.Time{
		// only padding dates missing
		"AAPL": {day(2)},
		// two requested dates missing
		"NVDA": {day(5), day(6)},
		// one requested date missing
		"MSFT": {day(5)},
		// only padding, alphabetically before AAPL
		"AMZN": {day(3)},
	}
	requested := map[time.Time]bool{
		day(5): true,
		day(6): true,
	}

	got := prioritize(missing, requested)
	assert.Equal(t, []string{"NVDA", "MSFT", "AAPL", "AMZN"}, got)
}
