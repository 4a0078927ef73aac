package notify

import (
	"context"
	"log/slog"
	"sync"
)

// EventType names the kind of an [Event].
type EventType string

const (
	EventUserMessage  EventType = "user_message"
	EventCoachMessage EventType = "coach_message"
	EventCorrection   EventType = "correction"
	EventAccepted     EventType = "correction_accepted"
	EventRemoved      EventType = "correction_removed"
	EventComposing    EventType = "composing"
	EventNotification EventType = "notification"
)

// Event is a change to a conversation pushed to subscribers. Data holds the
// created or changed record, or a [Notification].
type Event struct {
	Type           EventType `json:"type"`
	ConversationID int       `json:"conversationId"`
	Data           any       `json:"data,omitempty"`
}

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 32

// Hub fans events out to per-conversation subscribers. A subscriber that
// falls behind by more than its buffer loses events instead of stalling the
// publisher. The zero value is not usable; call [NewHub].
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch chan Event
}

// NewHub returns an empty [Hub].
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[int]map[*subscriber]struct{}),
		buffer: defaultBuffer,
	}
}

// Subscribe registers for events of conversationID. The returned cancel
// function unregisters and closes the channel; it is safe to call more than
// once.
func (h *Hub) Subscribe(conversationID int) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[conversationID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[conversationID], s)
			if len(h.subs[conversationID]) == 0 {
				delete(h.subs, conversationID)
			}
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Publish delivers e to every subscriber of e.ConversationID without
// blocking.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[e.ConversationID] {
		select {
		case s.ch <- e:
		default:
			slog.Warn("notify: subscriber lagging, event dropped",
				"conversation_id", e.ConversationID,
				"type", string(e.Type),
			)
		}
	}
}

// Subscribers returns the number of live subscriptions for conversationID.
func (h *Hub) Subscribers(conversationID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

// Notify implements [Notifier] by publishing an [EventNotification].
func (h *Hub) Notify(_ context.Context, n Notification) {
	h.Publish(Event{Type: EventNotification, ConversationID: n.ConversationID, Data: n})
}

var _ Notifier = (*Hub)(nil)
