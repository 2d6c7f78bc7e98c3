package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner shows progress on the diagnostic stream while a long call runs.
// Without a terminal it prints the message once and stays silent.
type Spinner struct {
	w      io.Writer
	styles *Styles
	tty    bool

	mu      sync.Mutex
	msg     string
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner creates a spinner showing msg.
func (r *Renderer) NewSpinner(msg string) *Spinner {
	return &Spinner{
		w:      r.errOut,
		styles: r.styles,
		tty:    r.isTTY,
		msg:    msg,
	}
}

// Start begins animating. Calling Start on a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if !s.tty {
		_, _ = fmt.Fprintln(s.w, s.msg)
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		s.mu.Lock()
		frame := s.styles.Info.Render(spinnerFrames[i%len(spinnerFrames)])
		_, _ = fmt.Fprintf(s.w, "\r\033[K%s %s", frame, s.msg)
		s.mu.Unlock()

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Update replaces the message.
func (s *Spinner) Update(msg string) {
	s.mu.Lock()
	s.msg = msg
	s.mu.Unlock()
}

// Stop clears the spinner line.
func (s *Spinner) Stop() {
	s.halt()
}

// Success stops the spinner and prints msg with a success marker.
func (s *Spinner) Success(msg string) {
	s.halt()
	_, _ = fmt.Fprintln(s.w, s.styles.StatusSuccess.String()+" "+msg)
}

// Fail stops the spinner and prints msg with a failure marker.
func (s *Spinner) Fail(msg string) {
	s.halt()
	_, _ = fmt.Fprintln(s.w, s.styles.StatusFailed.String()+" "+msg)
}

func (s *Spinner) halt() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	_, _ = fmt.Fprint(s.w, "\r\033[K")
}
