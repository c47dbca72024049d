// Package llm holds the streaming chat client used to turn a committed user
// utterance into an assistant reply, with a bounded conversation history.
package llm

import (
	"context"
	"strings"
)

// ProviderType names a backend chat-completion API.
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai"
)

// NewProvider builds a Provider for the given provider name, defaulting to
// an OpenAI-compatible backend when provider is empty or unrecognized —
// matching the reference factory's lowercase-trim-then-switch shape.
func NewProvider(ctx context.Context, provider, apiKey, baseURL, systemPrompt string) Provider {
	providerType := strings.ToLower(strings.TrimSpace(provider))
	switch providerType {
	case string(ProviderTypeOpenAI), "":
		fallthrough
	default:
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIProvider(apiKey, baseURL, systemPrompt)
	}
}
