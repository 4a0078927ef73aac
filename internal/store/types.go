// Package store holds the in-memory persistence layer for conversations,
// messages and corrections.
//
// Each entity type lives in its own [Collection]. Collections assign
// monotonically increasing integer ids, return copies from every operation
// and can simulate network latency and transient failures so callers are
// exercised against the same asynchronous contract a remote store would
// impose.
//
// A [Store] owns one collection per entity type. Nothing in this package is
// process-global; independent stores never share state.
package store

import (
	"fmt"
	"time"
)

// Difficulty is the learner-selected level of a conversation.
type Difficulty string

const (
	// DifficultyBeginner is the entry level.
	DifficultyBeginner Difficulty = "beginner"

	// DifficultyIntermediate is the middle level.
	DifficultyIntermediate Difficulty = "intermediate"

	// DifficultyAdvanced is the highest level.
	DifficultyAdvanced Difficulty = "advanced"
)

// IsValid reports whether d is a recognised difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// ParseDifficulty converts s to a [Difficulty].
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if !d.IsValid() {
		return "", fmt.Errorf("store: difficulty %q is not one of beginner, intermediate, advanced", s)
	}
	return d, nil
}

// Sender identifies who authored a [Message].
type Sender string

const (
	// SenderUser marks a message written by the learner.
	SenderUser Sender = "user"

	// SenderCoach marks a reply produced by the coach.
	SenderCoach Sender = "coach"
)

// SessionStats are the counters embedded in a [Conversation].
//
// The improvement rate is deliberately absent: it is derived on every read
// by the stats package.
type SessionStats struct {
	MessagesSent        int `json:"messagesSent"`
	CorrectionsMade     int `json:"correctionsMade"`
	CorrectionsAccepted int `json:"correctionsAccepted"`
}

// Conversation is one learning session about a topic.
type Conversation struct {
	ID         int          `json:"id"`
	Topic      string       `json:"topic"`
	Difficulty Difficulty   `json:"difficulty"`
	Language   string       `json:"language,omitempty"`
	Mode       string       `json:"mode,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	Stats      SessionStats `json:"stats"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sentAt"`
}

// Correction is a grammar correction attached to a learner message.
type Correction struct {
	ID            int    `json:"id"`
	MessageID     int    `json:"messageId"`
	OriginalText  string `json:"originalText"`
	CorrectedText string `json:"correctedText"`
	Rule          string `json:"rule"`
	Explanation   string `json:"explanation"`
	Accepted      bool   `json:"accepted"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Partial updates
// ─────────────────────────────────────────────────────────────────────────────

// Patch is a typed partial update for records of type T. Only the update
// structs declared in this package implement it, and none of them can touch
// a record's id.
type Patch[T any] interface {
	apply(*T)
}

// ConversationUpdate changes selected fields of a [Conversation]. Nil fields
// are left untouched.
type ConversationUpdate struct {
	Topic      *string
	Difficulty *Difficulty
	Stats      *SessionStats
}

func (u ConversationUpdate) apply(c *Conversation) {
	if u.Topic != nil {
		c.Topic = *u.Topic
	}
	if u.Difficulty != nil {
		c.Difficulty = *u.Difficulty
	}
	if u.Stats != nil {
		c.Stats = *u.Stats
	}
}

// MessageUpdate changes selected fields of a [Message]. It exists for
// administrative edits; the normal chat flow never updates messages.
type MessageUpdate struct {
	Text *string
}

func (u MessageUpdate) apply(m *Message) {
	if u.Text != nil {
		m.Text = *u.Text
	}
}

// CorrectionUpdate changes selected fields of a [Correction].
type CorrectionUpdate struct {
	CorrectedText *string
	Explanation   *string
	Accepted      *bool
}

func (u CorrectionUpdate) apply(c *Correction) {
	if u.CorrectedText != nil {
		c.CorrectedText = *u.CorrectedText
	}
	if u.Explanation != nil {
		c.Explanation = *u.Explanation
	}
	if u.Accepted != nil {
		c.Accepted = *u.Accepted
	}
}

// Ptr returns a pointer to v. It keeps update literals short:
//
//	store.CorrectionUpdate{Accepted: store.Ptr(true)}
func Ptr[T any](v T) *T { return &v }
