package conversation

import (
	"sync"
	"time"

	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/samber/lo"
)

// Kind identifies one of the two transcripts.
type Kind string

// Transcript kinds.
const (
	KindVisible  Kind = "visible"
	KindInternal Kind = "internal"
)

// Turn is one role-tagged message in a transcript.
type Turn struct {
	Role      llm.Role  `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Transcript is an append-only sequence of turns.
type Transcript struct {
	mu    sync.RWMutex
	kind  Kind
	turns []Turn
}

func newTranscript(kind Kind) *Transcript {
	return &Transcript{kind: kind}
}

// Kind returns the transcript kind.
func (t *Transcript) Kind() Kind {
	return t.kind
}

func (t *Transcript) append(turns ...Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	for _, turn := range turns {
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		t.turns = append(t.turns, turn)
	}
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Turns returns a copy of all turns.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Turn(nil), t.turns...)
}

// Since returns a copy of the turns appended after the first n.
func (t *Transcript) Since(n int) []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n >= len(t.turns) {
		return nil
	}
	return append([]Turn(nil), t.turns[n:]...)
}

// Messages converts the transcript to model input.
func (t *Transcript) Messages() []llm.Message {
	return lo.Map(t.Turns(), func(turn Turn, _ int) llm.Message {
		return llm.Message{Role: turn.Role, Content: turn.Content}
	})
}

func userTurn(content string) Turn      { return Turn{Role: llm.RoleUser, Content: content} }
func assistantTurn(content string) Turn { return Turn{Role: llm.RoleAssistant, Content: content} }
func systemTurn(content string) Turn    { return Turn{Role: llm.RoleSystem, Content: content} }
