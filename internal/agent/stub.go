package agent

import (
	"context"
	"sort"

	"github.com/wonny/arena/backend/internal/contracts"
)

// StubProvider serves the stub agent for every model id. Used by local
// runs that should not touch any LLM API.
type StubProvider struct{}

// AgentFor implements the provider contract.
func (StubProvider) AgentFor(string) (contracts.Agent, error) {
	return NewStubAgent(), nil
}

// StubAgent is a deterministic agent for local runs and tests: with no
// holdings it buys one share of the cheapest affordable symbol,
// otherwise it holds. No network, no API keys.
type StubAgent struct{}

// NewStubAgent creates a new deterministic stub agent
func NewStubAgent() *StubAgent {
	return &StubAgent{}
}

// Decide implements contracts.Agent.
func (s *StubAgent) Decide(_ context.Context, req contracts.DecisionRequest) (*contracts.Decision, error) {
	if len(req.Holdings) > 0 {
		return &contracts.Decision{Action: contracts.ActionHold, Rationale: "already positioned"}, nil
	}

	symbols := make([]string, 0, len(req.Quotes))
	for sym := range req.Quotes {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	best := ""
	bestPrice := 0.0
	for _, sym := range symbols {
		price := req.Quotes[sym]
		if price <= 0 || price > req.Cash {
			continue
		}
		if best == "" || price < bestPrice {
			best = sym
			bestPrice = price
		}
	}
	if best == "" {
		return &contracts.Decision{Action: contracts.ActionHold, Rationale: "nothing affordable"}, nil
	}
	return &contracts.Decision{
		Action:    contracts.ActionBuy,
		Symbol:    best,
		Quantity:  1,
		Rationale: "cheapest affordable symbol",
	}, nil
}
