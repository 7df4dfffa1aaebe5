package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/pkg/logger"
)

// AnthropicAgent drives a Claude model through the Messages API.
type AnthropicAgent struct {
	client  anthropic.Client
	modelID string
	logger  *logger.Logger
}

// NewAnthropicAgent creates an agent backed by the given Claude model id
func NewAnthropicAgent(apiKey, modelID string, log *logger.Logger) *AnthropicAgent {
	return &AnthropicAgent{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelID: modelID,
		logger:  log,
	}
}

// Decide runs one trading session against the model.
func (a *AnthropicAgent) Decide(ctx context.Context, req contracts.DecisionRequest) (*contracts.Decision, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelID),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("anthropic messages: empty response from %s", a.modelID)
	}

	dec := parseDecision(text)
	a.logger.WithFields(map[string]interface{}{
		"model":  a.modelID,
		"action": dec.Action,
	}).Debug("Agent decision received")
	return dec, nil
}
