package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/samber/lo"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint,
// OpenRouter included.
type OpenAIClient struct {
	api   openai.Client
	model string
}

// NewOpenAIClient creates a client from cfg.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &OpenAIClient{
		api:   openai.NewClient(opts...),
		model: cfg.Model,
	}, nil
}

func (c *OpenAIClient) params(msgs []Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: lo.Map(msgs, func(m Message, _ int) openai.ChatCompletionMessageParamUnion { return toOpenAI(m) }),
	}
}

func toOpenAI(m Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case RoleSystem:
		return openai.SystemMessage(m.Content)
	case RoleAssistant:
		return openai.AssistantMessage(m.Content)
	default:
		return openai.UserMessage(m.Content)
	}
}

// Send performs a non-streaming completion.
func (c *OpenAIClient) Send(ctx context.Context, msgs []Message) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, c.params(msgs))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// SendStream performs a streaming completion.
func (c *OpenAIClient) SendStream(ctx context.Context, msgs []Message, out chan<- string) error {
	defer close(out)

	stream := c.api.Chat.Completions.NewStreaming(ctx, c.params(msgs))
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			select {
			case out <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat completion stream failed: %w", err)
	}
	return nil
}
