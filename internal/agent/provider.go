package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/pkg/config"
	"github.com/wonny/arena/backend/pkg/logger"
)

// Provider resolves model ids to agents. Claude model ids route to the
// Anthropic SDK, everything else to the OpenAI-compatible client.
// Agents are cached per model id.
type Provider struct {
	cfg    *config.Config
	logger *logger.Logger

	mu     sync.Mutex
	agents map[string]contracts.Agent
}

// NewProvider creates a new agent provider
func NewProvider(cfg *config.Config, log *logger.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		logger: log,
		agents: make(map[string]contracts.Agent),
	}
}

// AgentFor returns the agent for a model id, creating it on first use.
func (p *Provider) AgentFor(modelID string) (contracts.Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.agents[modelID]; ok {
		return a, nil
	}

	a, err := p.build(modelID)
	if err != nil {
		return nil, err
	}
	p.agents[modelID] = a
	return a, nil
}

func (p *Provider) build(modelID string) (contracts.Agent, error) {
	if strings.HasPrefix(modelID, "claude") {
		if p.cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("model %s requires ANTHROPIC_API_KEY", modelID)
		}
		return NewAnthropicAgent(p.cfg.Anthropic.APIKey, modelID, p.logger), nil
	}
	if p.cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("model %s requires OPENAI_API_KEY", modelID)
	}
	return NewOpenAIAgent(p.cfg.OpenAI.APIKey, p.cfg.OpenAI.BaseURL, modelID, p.logger), nil
}
