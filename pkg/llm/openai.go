package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider streams chat completions from an OpenAI-compatible
// endpoint, the default LLM adapter (§4.3, §2a').
type OpenAIProvider struct {
	client       *openai.Client
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
}

// NewOpenAIProvider builds an OpenAI-compatible streaming chat client.
func NewOpenAIProvider(apiKey, baseURL, systemPrompt string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		model:        openai.GPT4oMini,
		systemPrompt: systemPrompt,
		temperature:  0.7,
		maxTokens:    512,
	}
}

// WithModel overrides the chat-completion model identifier.
func (p *OpenAIProvider) WithModel(model string) *OpenAIProvider {
	p.model = model
	return p
}

// WithTemperature overrides sampling temperature.
func (p *OpenAIProvider) WithTemperature(t float64) *OpenAIProvider {
	p.temperature = float32(t)
	return p
}

// WithMaxTokens overrides the max completion token count.
func (p *OpenAIProvider) WithMaxTokens(n int) *OpenAIProvider {
	p.maxTokens = n
	return p
}

func (p *OpenAIProvider) GetResponse(ctx context.Context, history []Turn, userText string, onChunk func(string)) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if p.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.systemPrompt,
		})
	}
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Stream:      true,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	return full.String(), nil
}
