// Package chat runs conversations: the send cycle that stores learner
// messages, detects corrections and produces coach replies, and the
// accept/reject lifecycle of those corrections.
//
// Every mutation of a conversation is serialized by a per-conversation lock.
// Reads never take it and may observe a cycle half way through.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/catalog"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/coach"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/grammar"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/notify"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/observe"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/stats"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// Default timings of the coach's thinking pause.
const (
	DefaultThinkingDelay  = 1500 * time.Millisecond
	DefaultThinkingJitter = 1000 * time.Millisecond
)

// DefaultRecentLimit is the number of corrections [Controller.RecentCorrections]
// returns when no limit is given.
const DefaultRecentLimit = 10

// Notification texts shown to the learner.
const (
	msgStarted      = "Started conversation about %s!"
	msgSendFailed   = "Failed to send message"
	msgAccepted     = "Correction accepted! Great job learning."
	msgAcceptFailed = "Failed to accept correction"
	msgIgnored      = "Correction ignored"
	msgIgnoreFailed = "Failed to ignore correction"
)

// Composing is the payload of a [notify.EventComposing] event.
type Composing struct {
	Composing bool `json:"composing"`
}

// Turn is the outcome of a successful send cycle.
type Turn struct {
	UserMessage  store.Message      `json:"userMessage"`
	Corrections  []store.Correction `json:"corrections"`
	CoachMessage store.Message      `json:"coachMessage"`
	Stats        stats.Report       `json:"stats"`
}

// core holds what the [Controller] and its [Lifecycle] share.
type core struct {
	store    *store.Store
	notifier notify.Notifier
	events   *notify.Hub
	metrics  *observe.Metrics
	sessions *sessions
}

// Controller drives conversations. All methods are safe for concurrent use.
type Controller struct {
	*core

	rules     *grammar.Registry
	responder coach.Responder
	lifecycle *Lifecycle

	// Changed at runtime by SetThinkingDelay and SetRecentLimit.
	thinking    atomic.Int64
	jitter      atomic.Int64
	recentLimit atomic.Int64

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a [Controller].
type Option func(*Controller)

// WithNotifier sets the sink for learner-facing notifications. Default: a
// [notify.LogNotifier] on the default logger.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithEvents publishes every created or changed record to h.
func WithEvents(h *notify.Hub) Option {
	return func(c *Controller) { c.events = h }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithThinkingDelay sets the pause before the coach replies to base plus a
// uniformly random share of jitter. Zero values disable the pause.
func WithThinkingDelay(base, jitter time.Duration) Option {
	return func(c *Controller) { c.SetThinkingDelay(base, jitter) }
}

// WithSleep replaces the function used to wait out the thinking delay.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithRecentLimit sets the default size of [Controller.RecentCorrections].
func WithRecentLimit(n int) Option {
	return func(c *Controller) { c.SetRecentLimit(n) }
}

// WithClock sets the time source for message and conversation timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController returns a [Controller] over st that detects corrections with
// rules and asks responder for coach replies.
func NewController(st *store.Store, rules *grammar.Registry, responder coach.Responder, opts ...Option) *Controller {
	c := &Controller{
		core:      &core{store: st},
		rules:     rules,
		responder: responder,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	c.SetThinkingDelay(DefaultThinkingDelay, DefaultThinkingJitter)
	c.SetRecentLimit(DefaultRecentLimit)
	for _, o := range opts {
		o(c)
	}
	if c.notifier == nil {
		c.notifier = notify.LogNotifier{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.sessions = newSessions(func(delta int64) {
		c.metrics.ActiveSessions.Add(context.Background(), delta)
	})
	c.lifecycle = &Lifecycle{core: c.core}
	return c
}

// Lifecycle returns the correction lifecycle manager sharing this
// controller's store and locks.
func (c *Controller) Lifecycle() *Lifecycle { return c.lifecycle }

// Rules returns the rule registry used for detection.
func (c *Controller) Rules() *grammar.Registry { return c.rules }

// SetThinkingDelay changes the coach pause for cycles that have not reached
// it yet. Negative values count as zero.
func (c *Controller) SetThinkingDelay(base, jitter time.Duration) {
	c.thinking.Store(int64(max(base, 0)))
	c.jitter.Store(int64(max(jitter, 0)))
}

// SetRecentLimit changes the default size of [Controller.RecentCorrections].
// Non-positive values are ignored.
func (c *Controller) SetRecentLimit(n int) {
	if n > 0 {
		c.recentLimit.Store(int64(n))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversations
// ─────────────────────────────────────────────────────────────────────────────

// StartConversation validates sel against the catalog and creates a
// conversation with zeroed stats.
func (c *Controller) StartConversation(ctx context.Context, sel catalog.Selection) (store.Conversation, error) {
	difficulty, err := catalog.Validate(sel)
	if err != nil {
		return store.Conversation{}, err
	}

	conv, err := c.store.Conversations.Create(ctx, store.Conversation{
		Topic:      sel.Topic,
		Difficulty: difficulty,
		Language:   sel.Language,
		Mode:       sel.Mode,
		StartedAt:  c.now().UTC(),
	})
	if err != nil {
		c.metrics.RecordFailure(ctx, "start", failureReason(err))
		return store.Conversation{}, fmt.Errorf("chat: start conversation: %w", err)
	}
	c.sessions.open(conv.ID)

	slog.Info("conversation started",
		"conversation_id", conv.ID,
		"topic", conv.Topic,
		"difficulty", string(conv.Difficulty),
	)
	c.notify(ctx, conv.ID, notify.KindSuccess, fmt.Sprintf(msgStarted, catalog.TopicName(conv.Topic)))
	return conv, nil
}

// Conversation returns the conversation with id.
func (c *Controller) Conversation(ctx context.Context, id int) (store.Conversation, error) {
	conv, err := c.store.Conversations.GetByID(ctx, id)
	if err != nil {
		return store.Conversation{}, mapErr("get conversation", err)
	}
	return conv, nil
}

// Conversations lists every conversation in creation order.
func (c *Controller) Conversations(ctx context.Context) ([]store.Conversation, error) {
	convs, err := c.store.Conversations.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations: %w", err)
	}
	return convs, nil
}

// EndSession marks a conversation inactive, as when the learner picks a new
// topic. Stored records are kept, and a cycle already in flight runs to
// completion while later sends still get [ErrBusy]. It reports whether the
// conversation was active.
func (c *Controller) EndSession(convID int) bool {
	ok := c.sessions.drop(convID)
	if ok {
		slog.Info("conversation session ended", "conversation_id", convID)
	}
	return ok
}

// ActiveSessions returns the number of active conversations.
func (c *Controller) ActiveSessions() int { return c.sessions.len() }

// Active reports whether convID was started or sent to and not ended since.
func (c *Controller) Active(convID int) bool {
	return c.sessions.isActive(convID)
}

// Busy reports whether a send cycle of convID is in flight.
func (c *Controller) Busy(convID int) bool {
	sess, ok := c.sessions.peek(convID)
	return ok && sess.busy.Load()
}

// Composing reports whether the coach of convID is preparing a reply.
func (c *Controller) Composing(convID int) bool {
	sess, ok := c.sessions.peek(convID)
	return ok && sess.composing.Load()
}

// Stats returns the stored counters of convID with a freshly computed
// improvement rate.
func (c *Controller) Stats(ctx context.Context, convID int) (stats.Report, error) {
	conv, err := c.Conversation(ctx, convID)
	if err != nil {
		return stats.Report{}, err
	}
	return stats.Compute(conv), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Send cycle
// ─────────────────────────────────────────────────────────────────────────────

// Send runs one learner turn for convID:
//
//  1. store the trimmed text as a user message,
//  2. store one correction per detected rule, in detection order,
//  3. wait the thinking delay while composing,
//  4. store the coach reply.
//
// Input that is empty after trimming returns [ErrEmptyMessage] without
// touching the store. A second call while a cycle of the same conversation
// is in flight returns [ErrBusy]. Any other failure is a [*SendError]
// carrying the input text; counters only reflect records that were stored.
//
// Once started, the cycle runs to completion even if ctx is cancelled.
func (c *Controller) Send(ctx context.Context, convID int, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	sess := c.sessions.open(convID)
	if !sess.busy.CompareAndSwap(false, true) {
		return Turn{}, ErrBusy
	}
	defer sess.busy.Store(false)

	ctx = context.WithoutCancel(ctx)
	ctx, span := observe.StartConversationSpan(ctx, "chat.send", convID)
	defer span.End()
	start := time.Now()

	turn, stage, err := c.send(ctx, sess, convID, text)
	if err != nil {
		observe.FailSpan(span, stage, err)
		c.metrics.RecordFailure(ctx, "send", failureReason(err))
		observe.Logger(ctx).Warn("send cycle failed",
			"stage", stage,
			"err", err,
		)
		c.notify(ctx, convID, notify.KindError, msgSendFailed)
		if errors.Is(err, store.ErrInvalidReference) || errors.Is(err, store.ErrNotFound) {
			c.sessions.drop(convID)
			err = fmt.Errorf("%w: conversation %d: %w", ErrNotFound, convID, err)
		}
		return Turn{}, &SendError{Text: text, Stage: stage, Err: err}
	}

	span.SetAttributes(attribute.Int("linguaflow.corrections", len(turn.Corrections)))
	c.metrics.SendCycleDuration.Record(ctx, time.Since(start).Seconds())
	observe.Logger(ctx).Debug("send cycle complete",
		"corrections", len(turn.Corrections),
		"duration", time.Since(start),
	)
	return turn, nil
}

// send performs the cycle and reports the failing stage on error.
func (c *Controller) send(ctx context.Context, sess *session, convID int, text string) (Turn, string, error) {
	var turn Turn

	sess.mu.Lock()
	userMsg, corrections, stage, err := c.storeLearnerTurn(ctx, convID, text)
	sess.mu.Unlock()
	if err != nil {
		return Turn{}, stage, err
	}
	turn.UserMessage = userMsg
	turn.Corrections = corrections

	sess.composing.Store(true)
	c.publish(notify.EventComposing, convID, Composing{Composing: true})
	defer func() {
		sess.composing.Store(false)
		c.publish(notify.EventComposing, convID, Composing{Composing: false})
	}()

	reply, err := c.compose(ctx, text)
	if err != nil {
		return Turn{}, "respond", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	coachMsg, err := c.store.Messages.Create(ctx, store.Message{
		ConversationID: convID,
		Sender:         store.SenderCoach,
		Text:           reply,
		SentAt:         c.now().UTC(),
	})
	if err != nil {
		return Turn{}, "coach_message", err
	}

	s, err := c.addStats(ctx, convID, store.SessionStats{MessagesSent: 1})
	if err != nil {
		c.discard(ctx, convID, nil, coachMsg.ID)
		return Turn{}, "stats", err
	}
	c.metrics.RecordMessage(ctx, string(store.SenderCoach))
	c.publish(notify.EventCoachMessage, convID, coachMsg)
	turn.CoachMessage = coachMsg
	turn.Stats = stats.Report{SessionStats: s, ImprovementRate: stats.ImprovementRate(s)}
	return turn, "", nil
}

// storeLearnerTurn stores the user message and its corrections, then adds
// exactly what was stored to the counters. When the counters cannot be
// written the stored records are removed again. Callers hold the session
// lock.
func (c *Controller) storeLearnerTurn(ctx context.Context, convID int, text string) (store.Message, []store.Correction, string, error) {
	userMsg, err := c.store.Messages.Create(ctx, store.Message{
		ConversationID: convID,
		Sender:         store.SenderUser,
		Text:           text,
		SentAt:         c.now().UTC(),
	})
	if err != nil {
		return store.Message{}, nil, "user_message", err
	}

	var (
		corrections []store.Correction
		createErr   error
	)
	for _, cand := range c.rules.Detect(text) {
		corr, err := c.store.Corrections.Create(ctx, store.Correction{
			MessageID:     userMsg.ID,
			OriginalText:  cand.OriginalText,
			CorrectedText: cand.CorrectedText,
			Rule:          cand.Rule,
			Explanation:   cand.Explanation,
		})
		if err != nil {
			createErr = err
			break
		}
		corrections = append(corrections, corr)
	}

	delta := store.SessionStats{MessagesSent: 1, CorrectionsMade: len(corrections)}
	if _, err := c.addStats(ctx, convID, delta); err != nil {
		c.discard(ctx, convID, corrections, userMsg.ID)
		return store.Message{}, nil, "stats", err
	}

	c.metrics.RecordMessage(ctx, string(store.SenderUser))
	c.publish(notify.EventUserMessage, convID, userMsg)
	for _, corr := range corrections {
		c.metrics.RecordCorrection(ctx, corr.Rule)
		c.publish(notify.EventCorrection, convID, corr)
	}
	if createErr != nil {
		return store.Message{}, nil, "corrections", createErr
	}
	return userMsg, corrections, "", nil
}

// discard deletes the records of a turn whose counters could not be
// written. Failures are logged; the caller already reports the original
// error.
func (c *Controller) discard(ctx context.Context, convID int, corrections []store.Correction, messageID int) {
	for _, corr := range corrections {
		if _, err := c.store.Corrections.Delete(ctx, corr.ID); err != nil {
			slog.Error("chat: discard correction after failed stats write",
				"conversation_id", convID,
				"correction_id", corr.ID,
				"err", err,
			)
		}
	}
	if _, err := c.store.Messages.Delete(ctx, messageID); err != nil {
		slog.Error("chat: discard message after failed stats write",
			"conversation_id", convID,
			"message_id", messageID,
			"err", err,
		)
	}
}

// compose waits the thinking delay and asks the responder for a reply.
func (c *Controller) compose(ctx context.Context, text string) (string, error) {
	if err := c.sleep(ctx, c.thinkingDelay()); err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := c.responder.Respond(ctx, text)
	c.metrics.CoachDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("chat: coach reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("chat: coach reply: %w", coach.ErrEmptyReply)
	}
	return reply, nil
}

func (c *Controller) thinkingDelay() time.Duration {
	d := time.Duration(c.thinking.Load())
	if j := time.Duration(c.jitter.Load()); j > 0 {
		d += rand.N(j)
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared helpers
// ─────────────────────────────────────────────────────────────────────────────

// addStats adds delta to the stored counters of convID and returns the
// result. Counters never go below zero. Callers hold the session lock.
func (c *core) addStats(ctx context.Context, convID int, delta store.SessionStats) (store.SessionStats, error) {
	conv, err := c.store.Conversations.GetByID(ctx, convID)
	if err != nil {
		return store.SessionStats{}, err
	}
	s := conv.Stats
	s.MessagesSent = max(0, s.MessagesSent+delta.MessagesSent)
	s.CorrectionsMade = max(0, s.CorrectionsMade+delta.CorrectionsMade)
	s.CorrectionsAccepted = min(max(0, s.CorrectionsAccepted+delta.CorrectionsAccepted), s.CorrectionsMade)

	updated, err := c.store.Conversations.Update(ctx, convID, store.ConversationUpdate{Stats: &s})
	if err != nil {
		return store.SessionStats{}, err
	}
	return updated.Stats, nil
}

func (c *core) notify(ctx context.Context, convID int, kind notify.Kind, msg string) {
	c.notifier.Notify(ctx, notify.Notification{ConversationID: convID, Kind: kind, Message: msg})
}

func (c *core) publish(t notify.EventType, convID int, data any) {
	if c.events == nil {
		return
	}
	c.events.Publish(notify.Event{Type: t, ConversationID: convID, Data: data})
}

// mapErr translates store lookup failures into package errors.
func mapErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	}
	return fmt.Errorf("chat: %s: %w", op, err)
}

// failureReason is the metric label for err.
func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrTransient):
		return "transient"
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidReference):
		return "not_found"
	case errors.Is(err, coach.ErrEmptyReply):
		return "empty_reply"
	default:
		return "other"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
