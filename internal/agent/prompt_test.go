package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/backend/internal/contracts"
)

func TestBuildPrompt(t *testing.T) {
	req := contracts.DecisionRequest{
		Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Cash: 9000,
		Holdings: []contracts.Holding{
			{Symbol: "AAPL", Quantity: 10},
		},
		Quotes: map[string]float64{"NVDA": 50.25, "AAPL": 101.10},
	}

	prompt := buildPrompt(req)

	assert.Contains(t, prompt, "Date: 2026-01-05")
	assert.Contains(t, prompt, "Cash: 9000.00")
	assert.Contains(t, prompt, "AAPL: 10 shares")
	// quotes are sorted for prompt stability
	aapl := "AAPL: 101.10"
	nvda := "NVDA: 50.25"
	assert.Contains(t, prompt, aapl)
	assert.Contains(t, prompt, nvda)
	assert.Less(t, indexOf(prompt, aapl), indexOf(prompt, nvda))
}

func TestBuildPrompt_NoHoldings(t *testing.T) {
	prompt := buildPrompt(contracts.DecisionRequest{
		Date:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Cash:   10000,
		Quotes: map[string]float64{"AAPL": 100},
	})
	assert.Contains(t, prompt, "Holdings: none")
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantAction contracts.ActionKind
		wantSymbol string
	}{
		{
			name:       "clean JSON",
			raw:        `{"action":"buy","symbol":"AAPL","quantity":10,"rationale":"momentum"}`,
			wantAction: contracts.ActionBuy,
			wantSymbol: "AAPL",
		},
		{
			name:       "JSON wrapped in prose",
			raw:        "Here is my decision:\n```json\n{\"action\":\"sell\",\"symbol\":\"NVDA\",\"quantity\":2}\n```\nGood luck!",
			wantAction: contracts.ActionSell,
			wantSymbol: "NVDA",
		},
		{
			name:       "hold without symbol",
			raw:        `{"action":"hold"}`,
			wantAction: contracts.ActionHold,
		},
		{
			name:       "no JSON degrades to hold",
			raw:        "I think I'll just wait today.",
			wantAction: contracts.ActionHold,
		},
		{
			name:       "broken JSON degrades to hold",
			raw:        `{"action":"buy","symbol":`,
			wantAction: contracts.ActionHold,
		},
		{
			name:       "unknown action degrades to hold",
			raw:        `{"action":"short","symbol":"AAPL","quantity":10}`,
			wantAction: contracts.ActionHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := parseDecision(tt.raw)
			require.NotNil(t, dec)
			assert.Equal(t, tt.wantAction, dec.Action)
			if tt.wantSymbol != "" {
				assert.Equal(t, tt.wantSymbol, dec.Symbol)
			}
		})
	}
}
