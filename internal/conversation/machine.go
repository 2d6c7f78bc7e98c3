// Package conversation drives the generate, extract, persist, validate and
// summarize loop of a chat session.
//
// A Machine owns two transcripts. The visible transcript holds what the user
// typed and the summaries they were shown. The internal transcript is what
// the model is conditioned on: the system prompt, user messages enriched with
// schema context, the raw model responses and corrective turns carrying
// build diagnostics. Both only grow, and a turn commits nothing to either of
// them until the model has answered.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/leapapp/internal/artifact"
	"github.com/leapstack-labs/leapapp/internal/build"
	"github.com/leapstack-labs/leapapp/internal/extract"
	"github.com/leapstack-labs/leapapp/internal/llm"
)

// Default call timeouts.
const (
	DefaultRequestTimeout = 90 * time.Second
	DefaultSummaryTimeout = 60 * time.Second
)

// Recorder persists the turns committed by each submission.
type Recorder interface {
	AppendTurns(ctx context.Context, kind Kind, turns []Turn) error
}

// Config wires a Machine to its collaborators.
type Config struct {
	Model     llm.Client
	Store     artifact.Store
	Validator build.Validator
	Session   *Session

	// Parser defaults to the standard thinking/component tags.
	Parser *extract.Parser

	// SystemPrompt becomes the first internal turn when non-empty.
	SystemPrompt string

	RequestTimeout time.Duration
	SummaryTimeout time.Duration

	// Mirror receives every artifact that passed validation. Optional.
	Mirror artifact.Mirror
	// Recorder receives the turns of every submission. Optional.
	Recorder Recorder
	// OnTransition observes every state change. Optional.
	OnTransition func(from, to State)

	Logger *slog.Logger
}

// Outcome classifies a completed turn.
type Outcome int

const (
	// OutcomeDiscussion is a turn without an artifact.
	OutcomeDiscussion Outcome = iota
	// OutcomeCommitted is a turn whose artifact was written and built.
	OutcomeCommitted
	// OutcomeBuildFailed is a turn whose artifact did not build.
	OutcomeBuildFailed
	// OutcomeWriteFailed is a turn whose artifact could not be written.
	OutcomeWriteFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDiscussion:
		return "discussion"
	case OutcomeCommitted:
		return "committed"
	case OutcomeBuildFailed:
		return "build_failed"
	case OutcomeWriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("unknown(%d)", o)
	}
}

// TurnResult describes a completed turn.
type TurnResult struct {
	Outcome   Outcome
	Reasoning string
	Artifact  string
	// Summary is the assistant turn appended to the visible transcript.
	Summary string
	// SummaryDegraded is set when Summary is the generic acknowledgement.
	SummaryDegraded bool
	// Diagnostic holds the build output or write error of a failed turn.
	Diagnostic string
	// Surfaced is the last state before the machine settled to Idle.
	Surfaced         State
	PreviewAvailable bool
	Duration         time.Duration
}

// Failed reports whether the turn ended in ErrorSurfaced.
func (r *TurnResult) Failed() bool {
	return r.Surfaced == ErrorSurfaced
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	onChunk func(string)
	onStart func()
}

// WithSummaryChunks streams summary text to fn as it arrives.
func WithSummaryChunks(fn func(chunk string)) SubmitOption {
	return func(o *submitOptions) { o.onChunk = fn }
}

// WithTurnStart calls fn once the turn is accepted, before the model call.
// It is not called when Submit returns ErrTurnInFlight.
func WithTurnStart(fn func()) SubmitOption {
	return func(o *submitOptions) { o.onStart = fn }
}

type statusMarker interface {
	MarkValid()
	MarkInvalid(diagnostic string)
}

// Machine processes user messages one turn at a time.
type Machine struct {
	model     llm.Client
	store     artifact.Store
	validator build.Validator
	parser    *extract.Parser
	session   *Session
	mirror    artifact.Mirror
	recorder  Recorder
	logger    *slog.Logger

	requestTimeout time.Duration
	summaryTimeout time.Duration

	visible  *Transcript
	internal *Transcript
	state    *stateMachine

	// turns already handed to the recorder
	recordedVisible  int
	recordedInternal int

	// held for the whole of a turn; TryLock rejects concurrent submissions
	turnMu sync.Mutex
}

// New creates a Machine. Model, Store and Validator are required.
func New(cfg Config) (*Machine, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("build validator is required")
	}
	if cfg.Session == nil {
		cfg.Session = NewSession()
	}
	if cfg.Parser == nil {
		cfg.Parser = extract.NewParser(extract.DefaultTags())
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultSummaryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	m := &Machine{
		model:          cfg.Model,
		store:          cfg.Store,
		validator:      cfg.Validator,
		parser:         cfg.Parser,
		session:        cfg.Session,
		mirror:         cfg.Mirror,
		recorder:       cfg.Recorder,
		logger:         cfg.Logger,
		requestTimeout: cfg.RequestTimeout,
		summaryTimeout: cfg.SummaryTimeout,
		visible:        newTranscript(KindVisible),
		internal:       newTranscript(KindInternal),
		state:          newStateMachine(cfg.OnTransition),
	}
	if cfg.SystemPrompt != "" {
		m.internal.append(systemTurn(cfg.SystemPrompt))
	}
	return m, nil
}

// Session returns the session context the machine works on.
func (m *Machine) Session() *Session { return m.session }

// Visible returns the user-facing transcript.
func (m *Machine) Visible() *Transcript { return m.visible }

// Internal returns the model-facing transcript.
func (m *Machine) Internal() *Transcript { return m.internal }

// State returns the current pipeline state.
func (m *Machine) State() State { return m.state.Current() }

// Restore replaces both transcripts, for sessions resumed from storage.
// It must be called before the first Submit.
func (m *Machine) Restore(visible, internal []Turn) error {
	if !m.turnMu.TryLock() {
		return ErrTurnInFlight
	}
	defer m.turnMu.Unlock()
	if m.visible.Len() > 0 {
		return fmt.Errorf("%w: transcript already has turns", ErrNotIdle)
	}

	m.visible = newTranscript(KindVisible)
	m.internal = newTranscript(KindInternal)
	m.visible.append(visible...)
	m.internal.append(internal...)
	m.recordedVisible, m.recordedInternal = m.visible.Len(), m.internal.Len()
	return nil
}

// Submit runs one turn for the user's text. A *CommunicationError means the
// model call failed and nothing was committed. ErrTurnInFlight means another
// turn is still running. Write and build failures are not errors: they are
// reported through the TurnResult and the session's pending error. The
// machine is back in Idle when Submit returns.
func (m *Machine) Submit(ctx context.Context, text string, opts ...SubmitOption) (*TurnResult, error) {
	if !m.turnMu.TryLock() {
		return nil, ErrTurnInFlight
	}
	defer m.turnMu.Unlock()
	defer m.state.settle()

	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.onStart != nil {
		o.onStart()
	}

	start := time.Now()

	if err := m.state.TransitionTo(AwaitingModel); err != nil {
		return nil, err
	}

	injectSchema := m.session.SchemaPending()
	internalText := composeInternal(m.session.Database(), m.session.Schema(), injectSchema, text)
	msgs := append(m.internal.Messages(), llm.User(internalText))

	callCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	response, err := m.model.Send(callCtx, msgs)
	cancel()
	if err != nil {
		m.logger.Warn("model call failed", slog.String("error", err.Error()))
		return nil, &CommunicationError{Err: err}
	}
	if injectSchema {
		m.session.MarkSchemaInjected()
	}

	if err := m.state.TransitionTo(Extracting); err != nil {
		return nil, err
	}
	parsed := m.parser.Parse(response)

	m.visible.append(userTurn(text))
	m.internal.append(userTurn(internalText), assistantTurn(response))
	defer m.record(ctx)

	result := &TurnResult{
		Outcome:   OutcomeDiscussion,
		Reasoning: parsed.Reasoning,
		Artifact:  parsed.Artifact,
	}
	defer func() {
		result.Duration = time.Since(start)
		result.PreviewAvailable = m.session.PreviewAvailable()
	}()

	if parsed.HasArtifact() {
		m.session.markFirstArtifact()

		if err := m.state.TransitionTo(Persisting); err != nil {
			return nil, err
		}
		if err := m.store.Persist(ctx, parsed.Artifact); err != nil {
			return m.surfaceWriteError(result, err)
		}

		if err := m.state.TransitionTo(Validating); err != nil {
			return nil, err
		}
		m.validate(ctx, result)
	}

	if err := m.state.TransitionTo(Summarizing); err != nil {
		return nil, err
	}
	result.Summary, result.SummaryDegraded = m.summarize(ctx, parsed, response, o.onChunk)
	m.visible.append(assistantTurn(result.Summary))

	result.Surfaced = Summarizing
	if result.Outcome == OutcomeBuildFailed {
		if err := m.state.TransitionTo(ErrorSurfaced); err != nil {
			return nil, err
		}
		result.Surfaced = ErrorSurfaced
	}

	m.logger.Info("turn complete",
		slog.String("outcome", result.Outcome.String()),
		slog.Bool("summary_degraded", result.SummaryDegraded),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (m *Machine) validate(ctx context.Context, result *TurnResult) {
	res := m.validator.Validate(ctx)
	marker, _ := m.store.(statusMarker)

	if res.OK {
		result.Outcome = OutcomeCommitted
		m.session.setPreviewAvailable(true)
		if marker != nil {
			marker.MarkValid()
		}
		m.mirrorArtifact(ctx, result.Artifact)
		return
	}

	result.Outcome = OutcomeBuildFailed
	result.Diagnostic = res.Diagnostic
	m.internal.append(userTurn(correctiveContent(res.Diagnostic)))
	m.session.setPendingError(BuildErrorMessage(res.Diagnostic))
	m.session.setPreviewAvailable(false)
	if marker != nil {
		marker.MarkInvalid(res.Diagnostic)
	}
	m.logger.Info("build failed, corrective turn queued", slog.Int("diagnostic_bytes", len(res.Diagnostic)))
}

func (m *Machine) surfaceWriteError(result *TurnResult, err error) (*TurnResult, error) {
	msg := WriteErrorMessage(err)

	result.Outcome = OutcomeWriteFailed
	result.Diagnostic = err.Error()
	result.Summary = msg
	result.Surfaced = ErrorSurfaced

	m.visible.append(assistantTurn(msg))
	m.session.setPendingError(msg)
	m.session.setPreviewAvailable(false)

	var writeErr *artifact.WriteError
	if errors.As(err, &writeErr) {
		m.logger.Error("artifact write failed", slog.String("path", writeErr.Path), slog.String("error", writeErr.Err.Error()))
	} else {
		m.logger.Error("artifact write failed", slog.String("error", err.Error()))
	}

	if terr := m.state.TransitionTo(ErrorSurfaced); terr != nil {
		return nil, terr
	}
	return result, nil
}

// summarize asks for a one-sentence summary of the turn, streamed to
// onChunk. Any failure degrades to the generic acknowledgement.
func (m *Machine) summarize(ctx context.Context, parsed extract.Result, response string, onChunk func(string)) (string, bool) {
	content := parsed.Reasoning
	if content == "" {
		content = response
	}
	msgs := append(m.visible.Messages(), llm.Assistant(content), llm.User(SummaryRequest))

	callCtx, cancel := context.WithTimeout(ctx, m.summaryTimeout)
	defer cancel()

	summary, err := llm.Collect(callCtx, m.model, msgs, onChunk)
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		if err != nil {
			m.logger.Warn("summary call failed", slog.String("error", err.Error()))
		}
		return Acknowledgement, true
	}
	return summary, false
}

func (m *Machine) mirrorArtifact(ctx context.Context, content string) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.Upload(ctx, content); err != nil {
		m.logger.Warn("artifact mirror upload failed", slog.String("error", err.Error()))
	}
}

// record hands every turn not yet recorded to the recorder, including the
// system prompt on the first call. Failed batches are retried on the next
// turn.
func (m *Machine) record(ctx context.Context) {
	if m.recorder == nil {
		return
	}
	if turns := m.visible.Since(m.recordedVisible); len(turns) > 0 {
		if err := m.recorder.AppendTurns(ctx, KindVisible, turns); err != nil {
			m.logger.Warn("failed to record visible turns", slog.String("error", err.Error()))
		} else {
			m.recordedVisible += len(turns)
		}
	}
	if turns := m.internal.Since(m.recordedInternal); len(turns) > 0 {
		if err := m.recorder.AppendTurns(ctx, KindInternal, turns); err != nil {
			m.logger.Warn("failed to record internal turns", slog.String("error", err.Error()))
		} else {
			m.recordedInternal += len(turns)
		}
	}
}
