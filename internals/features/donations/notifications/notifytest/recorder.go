// Package notifytest records notifications in memory for tests.
package notifytest

import (
	"context"
	"sync"

	"donasiku_backend/internals/features/donations/notifications"
)

var _ notifications.Dispatcher = (*Recorder)(nil)

// Recorder keeps dispatched notifications in memory in place of a mailer.
type Recorder struct {
	mu     sync.Mutex
	events []notifications.Notification
}

func NewRecorder() *Recorder {
	return &Recorder{events: []notifications.Notification{}}
}

func (r *Recorder) Dispatch(_ context.Context, ns ...notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range ns {
		if n.To == "" {
			continue
		}
		r.events = append(r.events, n)
	}
}

func (r *Recorder) Sent() []notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.Notification, len(r.events))
	copy(out, r.events)
	return out
}

// ByTemplate returns the recipients of every notification using key.
func (r *Recorder) ByTemplate(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var to []string
	for _, n := range r.events {
		if n.Template == key {
			to = append(to, n.To)
		}
	}
	return to
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = []notifications.Notification{}
}
