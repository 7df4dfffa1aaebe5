package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/pkg/logger"
)

// OpenAIAgent drives a model through the Chat Completions API. With a
// custom base URL this also covers OpenAI-compatible vendors.
type OpenAIAgent struct {
	client  openai.Client
	modelID string
	logger  *logger.Logger
}

// NewOpenAIAgent creates an agent backed by the given chat model id
func NewOpenAIAgent(apiKey, baseURL, modelID string, log *logger.Logger) *OpenAIAgent {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAgent{
		client:  openai.NewClient(opts...),
		modelID: modelID,
		logger:  log,
	}
}

// Decide runs one trading session against the model.
func (a *OpenAIAgent) Decide(ctx context.Context, req contracts.DecisionRequest) (*contracts.Decision, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.modelID,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completions: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai chat completions: empty response from %s", a.modelID)
	}

	dec := parseDecision(resp.Choices[0].Message.Content)
	a.logger.WithFields(map[string]interface{}{
		"model":  a.modelID,
		"action": dec.Action,
	}).Debug("Agent decision received")
	return dec, nil
}
