package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/leapapp/internal/artifact"
	"github.com/leapstack-labs/leapapp/internal/build"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel returns scripted responses and records what it was sent.
type fakeModel struct {
	mu        sync.Mutex
	responses []string
	sendErr   error
	summary   []string
	streamErr error
	// block, when set, holds Send until it is closed or ctx is done.
	block       chan struct{}
	blockStream bool

	sent     [][]llm.Message
	streamed [][]llm.Message
}

func (f *fakeModel) Send(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msgs)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeModel) SendStream(ctx context.Context, msgs []llm.Message, out chan<- string) error {
	defer close(out)
	f.mu.Lock()
	f.streamed = append(f.streamed, msgs)
	chunks, err, block := f.summary, f.streamErr, f.blockStream
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, c := range chunks {
		out <- c
	}
	return err
}

func (f *fakeModel) lastSent(t *testing.T) []llm.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type countingValidator struct {
	mu      sync.Mutex
	calls   int
	results []build.Result
}

func (v *countingValidator) Validate(context.Context) build.Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.results) == 0 {
		return build.Success()
	}
	r := v.results[0]
	v.results = v.results[1:]
	return r
}

func (v *countingValidator) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type memRecorder struct {
	mu    sync.Mutex
	turns map[Kind][]Turn
}

func (r *memRecorder) AppendTurns(_ context.Context, kind Kind, turns []Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turns == nil {
		r.turns = make(map[Kind][]Turn)
	}
	r.turns[kind] = append(r.turns[kind], turns...)
	return nil
}

type memMirror struct{ uploads []string }

func (m *memMirror) Upload(_ context.Context, content string) error {
	m.uploads = append(m.uploads, content)
	return nil
}

type harness struct {
	machine   *Machine
	model     *fakeModel
	validator *countingValidator
	store     *artifact.FileStore
	session   *Session
	path      string
	states    []State
}

func newHarness(t *testing.T, model *fakeModel, mutate ...func(*Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "MyApp.jsx")

	h := &harness{
		model:     model,
		validator: &countingValidator{},
		store:     artifact.NewFileStore(path, testutil.NewTestLogger(t)),
		session:   NewSession(),
		path:      path,
	}
	var mu sync.Mutex
	cfg := Config{
		Model:        model,
		Store:        h.store,
		Validator:    h.validator,
		Session:      h.session,
		SystemPrompt: "You generate React components.",
		Logger:       testutil.NewTestLogger(t),
		OnTransition: func(_, to State) {
			mu.Lock()
			defer mu.Unlock()
			h.states = append(h.states, to)
		},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	h.machine = m
	return h
}

func (h *harness) readArtifact(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.path)
	require.NoError(t, err)
	return string(data)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "model client is required")

	_, err = New(Config{Model: &fakeModel{}})
	assert.ErrorContains(t, err, "artifact store is required")

	_, err = New(Config{Model: &fakeModel{}, Store: artifact.NewFileStore("x", nil)})
	assert.ErrorContains(t, err, "build validator is required")
}

func TestSubmit_FirstTurnInjectsSchema(t *testing.T) {
	model := &fakeModel{
		responses: []string{"<thinking>ok</thinking><component>CODE_A</component>"},
		summary:   []string{"Added ", "a button."},
	}
	h := newHarness(t, model)
	h.session.Bind("sales", "CREATE TABLE t(a INT);")

	var chunks []string
	res, err := h.machine.Submit(context.Background(), "add a button", WithSummaryChunks(func(c string) {
		chunks = append(chunks, c)
	}))
	require.NoError(t, err)

	sent := model.lastSent(t)
	require.Len(t, sent, 2)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Contains(t, sent[1].Content, "CREATE TABLE t(a INT);")
	assert.Contains(t, sent[1].Content, "add a button")
	assert.Contains(t, sent[1].Content, "sales.<table_name>")

	visible := h.machine.Visible().Turns()
	require.Len(t, visible, 2)
	assert.Equal(t, "add a button", visible[0].Content)
	assert.Equal(t, llm.RoleUser, visible[0].Role)
	assert.Equal(t, "Added a button.", visible[1].Content)
	assert.Equal(t, llm.RoleAssistant, visible[1].Role)

	internal := h.machine.Internal().Turns()
	require.Len(t, internal, 3)
	assert.Contains(t, internal[1].Content, "CREATE TABLE t(a INT);")
	assert.Equal(t, "<thinking>ok</thinking><component>CODE_A</component>", internal[2].Content)

	assert.Equal(t, "CODE_A", h.readArtifact(t))
	assert.Equal(t, 1, h.validator.Calls())
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, "CODE_A", res.Artifact)
	assert.Equal(t, "<component>CODE_A</component>", res.Reasoning)
	assert.Equal(t, "Added a button.", res.Summary)
	assert.Equal(t, []string{"Added ", "a button."}, chunks)
	assert.True(t, res.PreviewAvailable)
	assert.True(t, h.session.FirstArtifactGenerated())
	assert.Equal(t, artifact.Valid, h.store.Status().Validation)
	assert.Equal(t, Idle, h.machine.State())

	assert.Equal(t, []State{AwaitingModel, Extracting, Persisting, Validating, Summarizing, Idle}, h.states)
}

func TestSubmit_LaterTurnsLabelInstructionOnly(t *testing.T) {
	model := &fakeModel{
		responses: []string{"<component>A</component>", "<component>B</component>"},
		summary:   []string{"ok"},
	}
	h := newHarness(t, model)
	h.session.Bind("sales", "CREATE TABLE t(a INT);")

	_, err := h.machine.Submit(context.Background(), "first")
	require.NoError(t, err)
	_, err = h.machine.Submit(context.Background(), "make it blue")
	require.NoError(t, err)

	sent := model.lastSent(t)
	last := sent[len(sent)-1]
	assert.Equal(t, "User instruction: make it blue", last.Content)
	assert.Equal(t, "B", h.readArtifact(t))
	assert.Equal(t, 2, h.validator.Calls())
}

func TestSubmit_WithoutSchemaUsesRawText(t *testing.T) {
	model := &fakeModel{responses: []string{"hello"}, summary: []string{"hi"}}
	h := newHarness(t, model)

	_, err := h.machine.Submit(context.Background(), "what can you do?")
	require.NoError(t, err)

	sent := model.lastSent(t)
	assert.Equal(t, "what can you do?", sent[len(sent)-1].Content)
}

func TestSubmit_PlainTextSkipsPersistAndBuild(t *testing.T) {
	model := &fakeModel{
		responses: []string{"Which table should the chart use?", "<component>X</component>"},
		summary:   []string{"I asked which table to use."},
	}
	h := newHarness(t, model)
	h.session.Bind("sales", "CREATE TABLE t(a INT);")
	require.NoError(t, os.WriteFile(h.path, []byte("PRIOR"), 0o644))

	res, err := h.machine.Submit(context.Background(), "make a chart")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDiscussion, res.Outcome)
	assert.Equal(t, "", res.Artifact)
	assert.Equal(t, "PRIOR", h.readArtifact(t))
	assert.Equal(t, 0, h.validator.Calls())
	assert.False(t, h.session.FirstArtifactGenerated())
	assert.Equal(t, []State{AwaitingModel, Extracting, Summarizing, Idle}, h.states)

	visible := h.machine.Visible().Turns()
	require.Len(t, visible, 2)
	assert.Equal(t, llm.RoleAssistant, visible[1].Role)
	assert.Equal(t, "I asked which table to use.", visible[1].Content)

	// the summary call sees the response text
	model.mu.Lock()
	streamed := model.streamed[0]
	model.mu.Unlock()
	assert.Equal(t, "Which table should the chart use?", streamed[len(streamed)-2].Content)
	assert.Equal(t, SummaryRequest, streamed[len(streamed)-1].Content)

	// the schema went out with the first turn and is not repeated
	_, err = h.machine.Submit(context.Background(), "use t")
	require.NoError(t, err)
	sent := model.lastSent(t)
	assert.Equal(t, "User instruction: use t", sent[len(sent)-1].Content)
}

func TestSubmit_SchemaInjectedOncePerBinding(t *testing.T) {
	model := &fakeModel{
		responses: []string{
			"Which table?",
			"Bars or lines?",
			"<component>A</component>",
			"<component>B</component>",
		},
		summary: []string{"ok"},
	}
	h := newHarness(t, model)
	h.session.Bind("sales", "CREATE TABLE t(a INT);")

	for _, text := range []string{"hi", "bars please", "add a button"} {
		_, err := h.machine.Submit(context.Background(), text)
		require.NoError(t, err, text)
	}

	// rebinding after an artifact exists does not inject again
	h.session.Bind("hr", "CREATE TABLE people(id INT);")
	_, err := h.machine.Submit(context.Background(), "switch tables")
	require.NoError(t, err)

	injected := 0
	for _, turn := range h.machine.Internal().Turns() {
		if turn.Role == llm.RoleUser && strings.Contains(turn.Content, "Here's the schema") {
			injected++
		}
	}
	assert.Equal(t, 1, injected)
}

func TestSubmit_SchemaRetriedAfterCommunicationError(t *testing.T) {
	model := &fakeModel{sendErr: errors.New("connection refused")}
	h := newHarness(t, model)
	h.session.Bind("sales", "CREATE TABLE t(a INT);")

	_, err := h.machine.Submit(context.Background(), "hi")
	var commErr *CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.True(t, h.session.SchemaPending())

	model.mu.Lock()
	model.sendErr = nil
	model.responses = []string{"Which table?"}
	model.summary = []string{"ok"}
	model.mu.Unlock()

	_, err = h.machine.Submit(context.Background(), "hi")
	require.NoError(t, err)
	sent := model.lastSent(t)
	assert.Contains(t, sent[len(sent)-1].Content, "CREATE TABLE t(a INT);")
	assert.False(t, h.session.SchemaPending())
}

func TestSubmit_BuildFailure(t *testing.T) {
	model := &fakeModel{
		responses: []string{"<component>BROKEN</component>", "<component>FIXED</component>"},
		summary:   []string{"Updated the app."},
	}
	h := newHarness(t, model)
	h.validator.results = []build.Result{build.Failure("SyntaxError: Unexpected token"), build.Success()}

	visibleBefore, internalBefore := h.machine.Visible().Len(), h.machine.Internal().Len()
	res, err := h.machine.Submit(context.Background(), "add a table")
	require.NoError(t, err)

	visibleGrowth := h.machine.Visible().Len() - visibleBefore
	internalGrowth := h.machine.Internal().Len() - internalBefore
	assert.Equal(t, 1, internalGrowth-visibleGrowth)

	internal := h.machine.Internal().Turns()
	corrective := internal[len(internal)-1]
	assert.Equal(t, llm.RoleUser, corrective.Role)
	assert.Equal(t, "I encountered an error with the following message, please fix it: SyntaxError: Unexpected token", corrective.Content)

	assert.Equal(t, OutcomeBuildFailed, res.Outcome)
	assert.Equal(t, ErrorSurfaced, res.Surfaced)
	assert.True(t, res.Failed())
	assert.Equal(t, "SyntaxError: Unexpected token", res.Diagnostic)
	assert.False(t, res.PreviewAvailable)
	assert.Equal(t, "Updated the app.", res.Summary)
	assert.Equal(t, artifact.Invalid, h.store.Status().Validation)
	assert.Equal(t, Idle, h.machine.State())
	assert.Equal(t, []State{AwaitingModel, Extracting, Persisting, Validating, Summarizing, ErrorSurfaced, Idle}, h.states)

	require.True(t, h.session.HasPendingError())
	msg, ok := h.session.TakePendingError()
	require.True(t, ok)
	assert.Contains(t, msg, "An error occurred during the build process: SyntaxError: Unexpected token")
	assert.Contains(t, msg, "Do you want me to fix it?")
	_, ok = h.session.TakePendingError()
	assert.False(t, ok)

	// the next turn carries the corrective context
	_, err = h.machine.Submit(context.Background(), "yes please")
	require.NoError(t, err)
	sent := model.lastSent(t)
	assert.Equal(t, corrective.Content, sent[len(sent)-2].Content)
	assert.Equal(t, "FIXED", h.readArtifact(t))
	assert.True(t, h.session.PreviewAvailable())
}

func TestSubmit_CommunicationErrorLeavesTranscripts(t *testing.T) {
	model := &fakeModel{
		responses: []string{"<component>A</component>"},
		summary:   []string{"ok"},
	}
	h := newHarness(t, model)
	h.session.Bind("sales", "CREATE TABLE t(a INT);")

	_, err := h.machine.Submit(context.Background(), "first")
	require.NoError(t, err)

	visibleBefore, internalBefore := h.machine.Visible().Len(), h.machine.Internal().Len()
	model.mu.Lock()
	model.sendErr = errors.New("502 bad gateway")
	model.mu.Unlock()

	res, err := h.machine.Submit(context.Background(), "second")
	require.Error(t, err)
	assert.Nil(t, res)

	var commErr *CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, CommunicationMessage, commErr.UserMessage())
	assert.Contains(t, err.Error(), "502 bad gateway")

	assert.Equal(t, visibleBefore, h.machine.Visible().Len())
	assert.Equal(t, internalBefore, h.machine.Internal().Len())
	assert.Equal(t, Idle, h.machine.State())
	assert.Equal(t, 1, h.validator.Calls())
}

func TestSubmit_RequestTimeout(t *testing.T) {
	model := &fakeModel{block: make(chan struct{})}
	h := newHarness(t, model, func(c *Config) { c.RequestTimeout = 20 * time.Millisecond })

	_, err := h.machine.Submit(context.Background(), "slow")

	var commErr *CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, h.machine.Visible().Len())
	assert.Equal(t, 1, h.machine.Internal().Len())
	assert.Equal(t, []State{AwaitingModel, Idle}, h.states)
}

func TestSubmit_SummaryFailureDegrades(t *testing.T) {
	model := &fakeModel{
		responses: []string{"<component>A</component>"},
		streamErr: errors.New("stream reset"),
	}
	h := newHarness(t, model)

	res, err := h.machine.Submit(context.Background(), "go")
	require.NoError(t, err)

	assert.True(t, res.SummaryDegraded)
	assert.Equal(t, Acknowledgement, res.Summary)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, "A", h.readArtifact(t))

	visible := h.machine.Visible().Turns()
	assert.Equal(t, Acknowledgement, visible[len(visible)-1].Content)
}

func TestSubmit_SummaryTimeoutDegrades(t *testing.T) {
	model := &fakeModel{
		responses:   []string{"<component>A</component>"},
		blockStream: true,
	}
	h := newHarness(t, model, func(c *Config) { c.SummaryTimeout = 20 * time.Millisecond })

	res, err := h.machine.Submit(context.Background(), "go")
	require.NoError(t, err)
	assert.True(t, res.SummaryDegraded)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.True(t, h.session.PreviewAvailable())
}

func TestSubmit_RejectsConcurrentTurn(t *testing.T) {
	model := &fakeModel{
		responses: []string{"<component>A</component>"},
		summary:   []string{"ok"},
		block:     make(chan struct{}),
	}
	h := newHarness(t, model)

	var started atomic.Int32
	onStart := WithTurnStart(func() { started.Add(1) })

	done := make(chan error, 1)
	go func() {
		_, err := h.machine.Submit(context.Background(), "first", onStart)
		done <- err
	}()

	require.Eventually(t, func() bool { return h.machine.State() == AwaitingModel }, time.Second, time.Millisecond)

	_, err := h.machine.Submit(context.Background(), "second", onStart)
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Equal(t, int32(1), started.Load())

	close(model.block)
	require.NoError(t, <-done)
	assert.Equal(t, 2, h.machine.Visible().Len())
}

func TestSubmit_WriteError(t *testing.T) {
	model := &fakeModel{responses: []string{"<component>A</component>"}}
	missing := filepath.Join(t.TempDir(), "no-such-dir", "MyApp.jsx")
	h := newHarness(t, model, func(c *Config) { c.Store = artifact.NewFileStore(missing, nil) })

	res, err := h.machine.Submit(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, OutcomeWriteFailed, res.Outcome)
	assert.Equal(t, ErrorSurfaced, res.Surfaced)
	assert.Contains(t, res.Diagnostic, missing)
	assert.Equal(t, 0, h.validator.Calls())
	assert.Equal(t, []State{AwaitingModel, Extracting, Persisting, ErrorSurfaced, Idle}, h.states)

	model.mu.Lock()
	assert.Empty(t, model.streamed)
	model.mu.Unlock()

	visible := h.machine.Visible().Turns()
	require.Len(t, visible, 2)
	assert.Contains(t, visible[1].Content, "An error occurred while saving the app")

	msg, ok := h.session.TakePendingError()
	require.True(t, ok)
	assert.Equal(t, visible[1].Content, msg)
}

func TestSubmit_RecordsCommittedTurns(t *testing.T) {
	rec := &memRecorder{}
	model := &fakeModel{
		responses: []string{"<component>A</component>"},
		summary:   []string{"done"},
	}
	h := newHarness(t, model, func(c *Config) { c.Recorder = rec })
	h.validator.results = []build.Result{build.Failure("bad")}

	_, err := h.machine.Submit(context.Background(), "go")
	require.NoError(t, err)

	assert.Len(t, rec.turns[KindVisible], 2)
	// system prompt, user, assistant and corrective
	assert.Len(t, rec.turns[KindInternal], 4)
	assert.Equal(t, llm.RoleSystem, rec.turns[KindInternal][0].Role)

	model.mu.Lock()
	model.responses = []string{"plain answer"}
	model.mu.Unlock()
	_, err = h.machine.Submit(context.Background(), "why?")
	require.NoError(t, err)
	assert.Len(t, rec.turns[KindVisible], 4)
	assert.Len(t, rec.turns[KindInternal], 6)
}

func TestSubmit_MirrorsValidArtifactsOnly(t *testing.T) {
	mirror := &memMirror{}
	model := &fakeModel{
		responses: []string{"<component>BAD</component>", "<component>GOOD</component>"},
		summary:   []string{"ok"},
	}
	h := newHarness(t, model, func(c *Config) { c.Mirror = mirror })
	h.validator.results = []build.Result{build.Failure("x"), build.Success()}

	_, err := h.machine.Submit(context.Background(), "one")
	require.NoError(t, err)
	_, err = h.machine.Submit(context.Background(), "two")
	require.NoError(t, err)

	assert.Equal(t, []string{"GOOD"}, mirror.uploads)
}

func TestRestore(t *testing.T) {
	model := &fakeModel{responses: []string{"sure"}, summary: []string{"ok"}}
	h := newHarness(t, model)

	visible := []Turn{userTurn("hi"), assistantTurn("hello")}
	internal := []Turn{systemTurn("sys"), userTurn("hi"), assistantTurn("raw hello")}
	require.NoError(t, h.machine.Restore(visible, internal))

	assert.Equal(t, 2, h.machine.Visible().Len())
	assert.Equal(t, 3, h.machine.Internal().Len())

	_, err := h.machine.Submit(context.Background(), "again")
	require.NoError(t, err)
	sent := model.lastSent(t)
	assert.Len(t, sent, 4)

	err = h.machine.Restore(nil, nil)
	assert.ErrorIs(t, err, ErrNotIdle)
}
