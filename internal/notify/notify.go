// Package notify carries user-facing feedback and conversation events out of
// the chat engine.
//
// A [Notifier] is the sink for short toast-style messages ("Correction
// ignored"). A [Hub] fans out richer [Event] values (new messages, new
// corrections, composing state and notifications) to any number of
// per-conversation subscribers, such as WebSocket connections.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Kind classifies a [Notification].
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notification is one piece of user-visible feedback.
type Notification struct {
	ConversationID int    `json:"conversationId"`
	Kind           Kind   `json:"kind"`
	Message        string `json:"message"`
}

// Notifier receives user-visible feedback. Implementations must be safe for
// concurrent use and must not block for long; the chat engine calls Notify on
// its hot path.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements [Notifier].
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Multi returns a [Notifier] that forwards to every non-nil notifier in order.
func Multi(ns ...Notifier) Notifier {
	var live []Notifier
	for _, n := range ns {
		if n != nil {
			live = append(live, n)
		}
	}
	return NotifierFunc(func(ctx context.Context, n Notification) {
		for _, x := range live {
			x.Notify(ctx, n)
		}
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Log
// ─────────────────────────────────────────────────────────────────────────────

// LogNotifier writes every notification to a structured logger. Errors log at
// warn level, everything else at info.
type LogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = LogNotifier{}

// Notify implements [Notifier].
func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Kind == KindError {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "notify: "+n.Message,
		"conversation_id", n.ConversationID,
		"kind", string(n.Kind),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Recorder
// ─────────────────────────────────────────────────────────────────────────────

// Recorder stores every notification it receives. It is intended for tests.
type Recorder struct {
	mu  sync.Mutex
	got []Notification
}

var _ Notifier = (*Recorder)(nil)

// Notify implements [Notifier].
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

// All returns a copy of the recorded notifications in arrival order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.got))
	copy(out, r.got)
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return Notification{}, false
	}
	return r.got[len(r.got)-1], true
}

// Reset discards all recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = nil
}
