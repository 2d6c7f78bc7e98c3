package preview

import "sync"

// Event is sent to live-reload listeners.
type Event string

// Reload events.
const (
	EventReload Event = "reload"
	EventError  Event = "error"
)

// Notifier fans reload events out to connected browsers. Each listener
// buffers one event; further events are dropped until it is read.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	sent      uint64
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. Call Unsubscribe when done.
func (n *Notifier) Subscribe() chan Event {
	ch := make(chan Event, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener.
func (n *Notifier) Unsubscribe(ch chan Event) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Broadcast sends ev to every listener without blocking.
func (n *Notifier) Broadcast(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Listeners returns the number of connected listeners.
func (n *Notifier) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Broadcasts returns how many events have been sent.
func (n *Notifier) Broadcasts() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sent
}
