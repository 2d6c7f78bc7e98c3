package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr string
	}{
		{name: "default is openrouter", cfg: Config{APIKey: "k"}, want: &OpenAIClient{}},
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "k", Model: "gpt-4o"}, want: &OpenAIClient{}},
		{name: "anthropic", cfg: Config{Provider: "Anthropic", APIKey: "k"}, want: &AnthropicClient{}},
		{name: "dry run", cfg: Config{Provider: "dryrun"}, want: &DryRunClient{}},
		{name: "missing key", cfg: Config{Provider: "openrouter"}, wantErr: "API key is required"},
		{name: "openai without model", cfg: Config{Provider: "openai", APIKey: "k"}, wantErr: "model name is required"},
		{name: "unknown", cfg: Config{Provider: "bard"}, wantErr: "unknown model provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestNew_OpenRouterDefaults(t *testing.T) {
	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.(*OpenAIClient).model)
}

func TestAnthropicClient_ModelFallback(t *testing.T) {
	c, err := NewAnthropicClient(Config{APIKey: "k", Model: "anthropic/claude-3.5-sonnet"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, c.model)
	assert.Equal(t, int64(DefaultMaxTokens), c.maxTokens)
}

func TestAnthropicClient_Params(t *testing.T) {
	c, err := NewAnthropicClient(Config{APIKey: "k", Model: "claude-x", MaxTokens: 100})
	require.NoError(t, err)

	p := c.params([]Message{
		System("be helpful"),
		User("first"),
		Assistant("reply"),
		User("fix this error"),
		User("next instruction"),
	})

	require.Len(t, p.System, 1)
	assert.Equal(t, "be helpful", p.System[0].Text)
	assert.Len(t, p.Messages, 3)
	assert.Equal(t, int64(100), p.MaxTokens)
}

func TestMergeConsecutive(t *testing.T) {
	got := mergeConsecutive([]Message{User("a"), User("b"), Assistant("c"), User("d")})
	assert.Equal(t, []Message{User("a\n\nb"), Assistant("c"), User("d")}, got)
	assert.Empty(t, mergeConsecutive(nil))
}

func TestDryRunClient(t *testing.T) {
	c := NewDryRunClient()
	msgs := []Message{System("sys"), User("add a button")}

	resp, err := c.Send(context.Background(), msgs)
	require.NoError(t, err)
	assert.Contains(t, resp, "add a button")
	assert.Contains(t, resp, "[1] system")

	streamed, err := Collect(context.Background(), c, msgs, nil)
	require.NoError(t, err)
	assert.Equal(t, resp, streamed)
}

type failingStream struct{ chunks []string }

func (f failingStream) Send(context.Context, []Message) (string, error) { return "", nil }

func (f failingStream) SendStream(_ context.Context, _ []Message, out chan<- string) error {
	defer close(out)
	for _, c := range f.chunks {
		out <- c
	}
	return errors.New("stream broke")
}

func TestCollect(t *testing.T) {
	var seen []string
	got, err := Collect(context.Background(), failingStream{chunks: []string{"Added ", "a button."}}, nil, func(s string) {
		seen = append(seen, s)
	})

	require.Error(t, err)
	assert.Equal(t, "Added a button.", got)
	assert.Equal(t, []string{"Added ", "a button."}, seen)
}

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, Message{Role: RoleSystem, Content: "s"}, System("s"))
	assert.Equal(t, Message{Role: RoleUser, Content: "u"}, User("u"))
	assert.Equal(t, Message{Role: RoleAssistant, Content: "a"}, Assistant("a"))
}
