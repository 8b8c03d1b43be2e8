// Package notify is the user-visible notification sink. The supervisor and
// health monitor push structured records here instead of rendering anything
// themselves; the embedding application subscribes and decides presentation.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a notification record.
type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Record is one user-visible notification.
type Record struct {
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Persistent bool      `json:"persistent"`
	At         time.Time `json:"at"`
}

// Notifier fans records out to subscribers and always logs them. The zero
// value is not usable; construct with New.
type Notifier struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[int]func(Record)
	next int
}

// New creates a Notifier. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger, subs: make(map[int]func(Record))}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (n *Notifier) Subscribe(fn func(Record)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Push logs the record and delivers it to every subscriber.
func (n *Notifier) Push(rec Record) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	switch rec.Kind {
	case KindError:
		n.logger.Error(rec.Title, "message", rec.Message, "persistent", rec.Persistent)
	case KindWarning:
		n.logger.Warn(rec.Title, "message", rec.Message, "persistent", rec.Persistent)
	default:
		n.logger.Info(rec.Title, "message", rec.Message, "persistent", rec.Persistent)
	}
	n.mu.Lock()
	fns := make([]func(Record), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(rec)
	}
}

// Error is a convenience wrapper for error-kind records.
func (n *Notifier) Error(title, message string, persistent bool) {
	n.Push(Record{Kind: KindError, Title: title, Message: message, Persistent: persistent})
}

// Warn is a convenience wrapper for warning-kind records.
func (n *Notifier) Warn(title, message string, persistent bool) {
	n.Push(Record{Kind: KindWarning, Title: title, Message: message, Persistent: persistent})
}
