// Package llm talks to chat-completion models.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Role is the author of a chat message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Client sends conversations to a model.
//
// Send returns the complete response. SendStream writes response chunks to
// out as they arrive and always closes out before returning.
type Client interface {
	Send(ctx context.Context, msgs []Message) (string, error)
	SendStream(ctx context.Context, msgs []Message, out chan<- string) error
}

// Provider names accepted by New.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderDryRun     = "dryrun"
)

// Defaults for the OpenRouter provider.
const (
	DefaultModel      = "anthropic/claude-3.5-sonnet"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultMaxTokens  = 8192
)

// Config selects and configures a Client.
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int64
	// Headers are added to every request (OpenRouter attribution headers).
	Headers map[string]string
}

// New creates the client for cfg.Provider.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenRouter:
		if cfg.BaseURL == "" {
			cfg.BaseURL = OpenRouterBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = DefaultModel
		}
		return NewOpenAIClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderDryRun:
		return NewDryRunClient(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q (expected openrouter, openai, anthropic or dryrun)", cfg.Provider)
	}
}

// Collect drains a streaming call into a single string.
func Collect(ctx context.Context, c Client, msgs []Message, onChunk func(string)) (string, error) {
	out := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.SendStream(ctx, msgs, out)
	}()

	var b strings.Builder
	for chunk := range out {
		b.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	if err := <-errCh; err != nil {
		return b.String(), err
	}
	return b.String(), nil
}
