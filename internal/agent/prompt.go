package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/arena/backend/internal/contracts"
)

const systemPrompt = `You are a trading agent in a daily stock trading simulation.
Each session you receive your current cash, holdings and the day's closing prices.
You may make at most one trade per session: buy, sell or hold.
Respond with a single JSON object and nothing else:
{"action": "buy"|"sell"|"hold", "symbol": "<ticker>", "quantity": <number>, "rationale": "<one sentence>"}
For hold, omit symbol and quantity. You cannot spend more cash than you have or sell more than you hold.`

// buildPrompt renders one session's context as the user message.
func buildPrompt(req contracts.DecisionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", req.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Cash: %.2f\n", req.Cash)

	if len(req.Holdings) == 0 {
		b.WriteString("Holdings: none\n")
	} else {
		b.WriteString("Holdings:\n")
		for _, h := range req.Holdings {
			fmt.Fprintf(&b, "  %s: %g shares\n", h.Symbol, h.Quantity)
		}
	}

	symbols := make([]string, 0, len(req.Quotes))
	for s := range req.Quotes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	b.WriteString("Closing prices:\n")
	for _, s := range symbols {
		fmt.Fprintf(&b, "  %s: %.2f\n", s, req.Quotes[s])
	}

	b.WriteString("\nDecide your trade for this session.")
	return b.String()
}

// parseDecision extracts the decision JSON from a model response.
// Anything unparseable degrades to hold; a malformed reply is a bad
// trade idea, not a failed session.
func parseDecision(raw string) *contracts.Decision {
	hold := &contracts.Decision{Action: contracts.ActionHold}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		hold.Rationale = "no JSON object in response"
		return hold
	}

	var dec contracts.Decision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &dec); err != nil {
		hold.Rationale = "unparseable response"
		return hold
	}

	switch dec.Action {
	case contracts.ActionBuy, contracts.ActionSell, contracts.ActionHold:
		return &dec
	default:
		hold.Rationale = fmt.Sprintf("unknown action %q", dec.Action)
		return hold
	}
}
