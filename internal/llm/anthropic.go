package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/samber/lo"
)

// DefaultAnthropicModel is used when no model is configured for the Anthropic provider.
const DefaultAnthropicModel = "claude-3-5-sonnet-latest"

// AnthropicClient calls the Anthropic Messages API directly.
type AnthropicClient struct {
	api       anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates a client from cfg.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider %q", ProviderAnthropic)
	}
	model := cfg.Model
	if model == "" || strings.Contains(model, "/") {
		// OpenRouter style names are not valid here
		model = DefaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		api:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *AnthropicClient) params(msgs []Message) anthropic.MessageNewParams {
	system := lo.FilterMap(msgs, func(m Message, _ int) (anthropic.TextBlockParam, bool) {
		return anthropic.TextBlockParam{Text: m.Content}, m.Role == RoleSystem
	})
	turns := mergeConsecutive(lo.Reject(msgs, func(m Message, _ int) bool { return m.Role == RoleSystem }))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: lo.Map(turns, func(m Message, _ int) anthropic.MessageParam {
			if m.Role == RoleAssistant {
				return anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content))
			}
			return anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content))
		}),
	}
	if len(system) > 0 {
		params.System = system
	}
	return params
}

// mergeConsecutive joins adjacent messages from the same role. The internal
// transcript can hold a corrective user turn followed by the next user turn.
func mergeConsecutive(msgs []Message) []Message {
	merged := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			merged[n-1].Content += "\n\n" + m.Content
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// Send performs a non-streaming request.
func (c *AnthropicClient) Send(ctx context.Context, msgs []Message) (string, error) {
	msg, err := c.api.Messages.New(ctx, c.params(msgs))
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// SendStream performs a streaming request.
func (c *AnthropicClient) SendStream(ctx context.Context, msgs []Message, out chan<- string) error {
	defer close(out)

	stream := c.api.Messages.NewStreaming(ctx, c.params(msgs))
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		select {
		case out <- text.Text:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return nil
}
