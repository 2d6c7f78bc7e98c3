package conversation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_BindKeepsArtifactFlag(t *testing.T) {
	s := NewSession()
	s.Bind("sales", "CREATE TABLE t(a INT);")
	s.markFirstArtifact()

	s.Bind("hr", "CREATE TABLE people(id INT);")
	assert.Equal(t, "hr", s.Database())
	assert.Equal(t, "CREATE TABLE people(id INT);", s.Schema())
	assert.True(t, s.FirstArtifactGenerated())

	s.ResetArtifact()
	assert.False(t, s.FirstArtifactGenerated())
}

func TestSession_SchemaPending(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Session)
		want  bool
	}{
		{
			name:  "nothing bound",
			setup: func(*Session) {},
		},
		{
			name:  "freshly bound",
			setup: func(s *Session) { s.Bind("sales", "CREATE TABLE t(a INT);") },
			want:  true,
		},
		{
			name: "already injected",
			setup: func(s *Session) {
				s.Bind("sales", "CREATE TABLE t(a INT);")
				s.MarkSchemaInjected()
			},
		},
		{
			name: "rebinding clears injection",
			setup: func(s *Session) {
				s.Bind("sales", "CREATE TABLE t(a INT);")
				s.MarkSchemaInjected()
				s.Bind("hr", "CREATE TABLE people(id INT);")
			},
			want: true,
		},
		{
			name: "artifact generated",
			setup: func(s *Session) {
				s.Bind("sales", "CREATE TABLE t(a INT);")
				s.markFirstArtifact()
			},
		},
		{
			name: "reset clears both flags",
			setup: func(s *Session) {
				s.Bind("sales", "CREATE TABLE t(a INT);")
				s.MarkSchemaInjected()
				s.markFirstArtifact()
				s.ResetArtifact()
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			tt.setup(s)
			assert.Equal(t, tt.want, s.SchemaPending())
		})
	}
}

func TestSession_PendingErrorShownOnce(t *testing.T) {
	s := NewSession()
	_, ok := s.TakePendingError()
	assert.False(t, ok)

	s.setPendingError("first")
	s.setPendingError("second")
	assert.True(t, s.HasPendingError())

	msg, ok := s.TakePendingError()
	assert.True(t, ok)
	assert.Equal(t, "second", msg)
	assert.False(t, s.HasPendingError())

	_, ok = s.TakePendingError()
	assert.False(t, ok)
}

func TestSession_ClaimPreviewStartOnce(t *testing.T) {
	s := NewSession()

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ClaimPreviewStart() {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
	assert.True(t, s.PreviewStarted())
}

func TestComposeInternal(t *testing.T) {
	tests := []struct {
		name     string
		database string
		schema   string
		inject   bool
		want     string
		contains []string
	}{
		{
			name: "no schema",
			want: "add a button",
		},
		{
			name:     "schema injected",
			database: "sales",
			schema:   "CREATE TABLE t(a INT);",
			inject:   true,
			contains: []string{"CREATE TABLE t(a INT);", "(sales.<table_name>)", "User instruction: add a button"},
		},
		{
			name:     "schema already sent",
			database: "sales",
			schema:   "CREATE TABLE t(a INT);",
			want:     "User instruction: add a button",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := composeInternal(tt.database, tt.schema, tt.inject, "add a button")
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			for _, c := range tt.contains {
				assert.Contains(t, got, c)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t,
		"An error occurred during the build process: boom. \nDo you want me to fix it?",
		BuildErrorMessage("boom"),
	)
	assert.Equal(t,
		"An error occurred while saving the app: disk full",
		WriteErrorMessage(errors.New("disk full")),
	)
	assert.Equal(t,
		"I encountered an error with the following message, please fix it: boom",
		correctiveContent("boom"),
	)
}

func TestTranscript_AppendOnly(t *testing.T) {
	tr := newTranscript(KindVisible)
	tr.append(userTurn("a"), assistantTurn("b"))

	turns := tr.Turns()
	turns[0].Content = "mutated"
	assert.Equal(t, "a", tr.Turns()[0].Content)
	assert.False(t, tr.Turns()[0].CreatedAt.IsZero())

	tr.append(userTurn("c"))
	since := tr.Since(2)
	assert.Len(t, since, 1)
	assert.Equal(t, "c", since[0].Content)
	assert.Nil(t, tr.Since(3))

	msgs := tr.Messages()
	assert.Len(t, msgs, 3)
	assert.Equal(t, "b", msgs[1].Content)
}
