package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned by [Controller.Send] for input that is
	// empty after trimming. Nothing is stored.
	ErrEmptyMessage = errors.New("chat: message is empty")

	// ErrBusy is returned by [Controller.Send] while another send cycle of
	// the same conversation is in flight.
	ErrBusy = errors.New("chat: a message is already being sent")

	// ErrNotFound is returned when a conversation or correction does not
	// exist.
	ErrNotFound = errors.New("chat: not found")

	// ErrNotPending is returned when accepting a correction that was already
	// accepted.
	ErrNotPending = errors.New("chat: correction is not pending")
)

// SendError reports a failed send cycle. Text is the trimmed input so the
// caller can offer it for retry.
type SendError struct {
	// Text is the learner input that was being sent.
	Text string

	// Stage names the step that failed: "user_message", "corrections",
	// "respond", "coach_message" or "stats". A "stats" failure leaves no
	// record of that step behind.
	Stage string

	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("chat: send failed at %s: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
