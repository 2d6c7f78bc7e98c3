package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrTurnInFlight is returned when a message is submitted while another
	// turn of the same session is still being processed.
	ErrTurnInFlight = errors.New("a turn is already in progress")
	// ErrInvalidTransition reports an illegal pipeline step.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotIdle is returned when transcripts are restored mid-turn.
	ErrNotIdle = errors.New("conversation is not idle")
)

// CommunicationMessage is shown to the user when the model cannot be reached.
const CommunicationMessage = "An error occurred while communicating with the model. Please try again later."

// CommunicationError reports a failed or timed out generation call. The
// turn was aborted and neither transcript changed.
type CommunicationError struct {
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// UserMessage returns the generic text shown for this error.
func (e *CommunicationError) UserMessage() string {
	return CommunicationMessage
}
