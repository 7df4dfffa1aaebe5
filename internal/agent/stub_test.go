package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/backend/internal/contracts"
)

func TestStubAgent_BuysCheapestAffordable(t *testing.T) {
	dec, err := NewStubAgent().Decide(context.Background(), contracts.DecisionRequest{
		Cash:   100,
		Quotes: map[string]float64{"AAPL": 150, "NVDA": 50, "MSFT": 90},
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.ActionBuy, dec.Action)
	assert.Equal(t, "NVDA", dec.Symbol)
	assert.Equal(t, 1.0, dec.Quantity)
}

func TestStubAgent_HoldsWhenPositioned(t *testing.T) {
	dec, err := NewStubAgent().Decide(context.Background(), contracts.DecisionRequest{
		Cash:     1000,
		Holdings: []contracts.Holding{{Symbol: "AAPL", Quantity: 1}},
		Quotes:   map[string]float64{"AAPL": 150},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionHold, dec.Action)
}

func TestStubAgent_HoldsWhenNothingAffordable(t *testing.T) {
	dec, err := NewStubAgent().Decide(context.Background(), contracts.DecisionRequest{
		Cash:   10,
		Quotes: map[string]float64{"AAPL": 150},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionHold, dec.Action)
}

func TestStubProvider(t *testing.T) {
	a, err := StubProvider{}.AgentFor("anything")
	require.NoError(t, err)
	assert.NotNil(t, a)
}
