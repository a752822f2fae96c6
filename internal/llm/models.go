// Package llm normalizes provider wire formats behind one request/response
// contract, selects models per stage and tier, and fails over to a backup
// model when the primary call fails.
package llm

import (
	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/cost"
)

// Provider identifies who serves a model.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderPerplexity Provider = "perplexity"
)

// WireFormat is the request/response shape a provider speaks.
type WireFormat string

const (
	// WireChat is the chat-completions shape: system and user messages, a
	// max_tokens field and an optional JSON-schema response format.
	WireChat WireFormat = "chat"
	// WireMessages is the messages shape with a separate system field.
	WireMessages WireFormat = "messages"
)

// Model identifiers.
const (
	ModelHaiku     = "claude-haiku-4-5-20251001"
	ModelSonnet    = "claude-sonnet-4-5-20250929"
	ModelOpus      = "claude-opus-4-6"
	ModelGPT4oMini = "gpt-4o-mini"
	ModelGPT4o     = "gpt-4o"
	ModelSonarPro  = "sonar-pro"
)

// ModelDescriptor describes one callable model.
type ModelDescriptor struct {
	ID       string
	Provider Provider
	Wire     WireFormat
	Price    cost.Price // USD per million tokens
	Backup   string     // empty when the model has no backup
}

// Registry is a read-only lookup table of models keyed by ID.
type Registry map[string]ModelDescriptor

// DefaultRegistry returns the built-in models. Backups cross providers so an
// outage at one vendor does not take out both attempts.
func DefaultRegistry() Registry {
	return Registry{
		ModelHaiku: {
			ID: ModelHaiku, Provider: ProviderAnthropic, Wire: WireMessages,
			Price: cost.Price{Input: 0.80, Output: 4.00}, Backup: ModelGPT4oMini,
		},
		ModelSonnet: {
			ID: ModelSonnet, Provider: ProviderAnthropic, Wire: WireMessages,
			Price: cost.Price{Input: 3.00, Output: 15.00}, Backup: ModelGPT4o,
		},
		ModelOpus: {
			ID: ModelOpus, Provider: ProviderAnthropic, Wire: WireMessages,
			Price: cost.Price{Input: 15.00, Output: 75.00}, Backup: ModelSonnet,
		},
		ModelGPT4oMini: {
			ID: ModelGPT4oMini, Provider: ProviderOpenAI, Wire: WireChat,
			Price: cost.Price{Input: 0.15, Output: 0.60}, Backup: ModelHaiku,
		},
		ModelGPT4o: {
			ID: ModelGPT4o, Provider: ProviderOpenAI, Wire: WireChat,
			Price: cost.Price{Input: 2.50, Output: 10.00}, Backup: ModelSonnet,
		},
		ModelSonarPro: {
			ID: ModelSonarPro, Provider: ProviderPerplexity, Wire: WireChat,
			Price: cost.Price{Input: 3.00, Output: 15.00},
		},
	}
}

// Lookup returns the descriptor for id.
func (r Registry) Lookup(id string) (ModelDescriptor, error) {
	d, ok := r[id]
	if !ok {
		return ModelDescriptor{}, apperr.NewConfigurationError("model", id)
	}
	return d, nil
}
