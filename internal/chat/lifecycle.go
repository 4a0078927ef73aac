package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/notify"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/observe"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// Lifecycle moves corrections out of the pending state. A pending
// correction is either accepted (kept with Accepted set) or rejected
// (deleted). An accepted correction may still be rejected.
//
// Stats are changed before the correction record; when the record write
// fails the stats change is reverted, so a failed call leaves the prior
// state in place.
type Lifecycle struct {
	*core
}

// Accept marks a pending correction as accepted and counts it in the
// conversation stats. It returns [ErrNotFound] for an unknown id and
// [ErrNotPending] for an already accepted correction.
func (l *Lifecycle) Accept(ctx context.Context, correctionID int) (store.Correction, error) {
	corr, err := l.do(ctx, correctionID, "accept", msgAcceptFailed, func(corr store.Correction, convID int) (store.Correction, error) {
		if corr.Accepted {
			return store.Correction{}, fmt.Errorf("%w: correction %d", ErrNotPending, corr.ID)
		}
		if _, err := l.addStats(ctx, convID, store.SessionStats{CorrectionsAccepted: 1}); err != nil {
			return store.Correction{}, err
		}
		updated, err := l.store.Corrections.Update(ctx, corr.ID, store.CorrectionUpdate{Accepted: store.Ptr(true)})
		if err != nil {
			l.revert(ctx, convID, store.SessionStats{CorrectionsAccepted: -1})
			return store.Correction{}, err
		}
		l.notify(ctx, convID, notify.KindSuccess, msgAccepted)
		l.publish(notify.EventAccepted, convID, updated)
		return updated, nil
	})
	if err != nil {
		return store.Correction{}, err
	}
	l.metrics.RecordOutcome(ctx, "accepted")
	return corr, nil
}

// Reject deletes a correction, pending or accepted, and removes it from the
// conversation stats. It returns the removed record, or [ErrNotFound] when
// the id is unknown, including a second rejection of the same id.
func (l *Lifecycle) Reject(ctx context.Context, correctionID int) (store.Correction, error) {
	corr, err := l.do(ctx, correctionID, "reject", msgIgnoreFailed, func(corr store.Correction, convID int) (store.Correction, error) {
		delta := store.SessionStats{CorrectionsMade: -1}
		if corr.Accepted {
			delta.CorrectionsAccepted = -1
		}
		if _, err := l.addStats(ctx, convID, delta); err != nil {
			return store.Correction{}, err
		}
		removed, err := l.store.Corrections.Delete(ctx, corr.ID)
		if err == nil && !removed {
			err = fmt.Errorf("store: delete corrections %d: %w", corr.ID, store.ErrNotFound)
		}
		if err != nil {
			l.revert(ctx, convID, store.SessionStats{
				CorrectionsMade:     -delta.CorrectionsMade,
				CorrectionsAccepted: -delta.CorrectionsAccepted,
			})
			return store.Correction{}, err
		}
		l.notify(ctx, convID, notify.KindInfo, msgIgnored)
		l.publish(notify.EventRemoved, convID, corr)
		return corr, nil
	})
	if err != nil {
		return store.Correction{}, err
	}
	l.metrics.RecordOutcome(ctx, "rejected")
	return corr, nil
}

// do resolves the conversation of a correction, takes its session lock,
// re-reads the correction under the lock and runs fn. Store failures other
// than a missing record notify the learner with failMsg.
func (l *Lifecycle) do(ctx context.Context, correctionID int, op, failMsg string,
	fn func(corr store.Correction, convID int) (store.Correction, error),
) (store.Correction, error) {
	convID, err := l.conversationOf(ctx, correctionID)
	if err != nil {
		return store.Correction{}, l.fail(ctx, convID, op, failMsg, err)
	}

	ctx, span := observe.StartConversationSpan(ctx, "chat."+op, convID, observe.AttrCorrectionID.Int(correctionID))
	defer span.End()

	sess := l.sessions.lock(convID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	corr, err := l.store.Corrections.GetByID(ctx, correctionID)
	if err != nil {
		observe.FailSpan(span, op, err)
		return store.Correction{}, l.fail(ctx, convID, op, failMsg, err)
	}
	out, err := fn(corr, convID)
	if err != nil {
		observe.FailSpan(span, op, err)
		return store.Correction{}, l.fail(ctx, convID, op, failMsg, err)
	}
	observe.Logger(ctx).Debug("correction "+op+"ed", "correction_id", correctionID)
	return out, nil
}

// conversationOf returns the conversation a correction belongs to.
func (l *Lifecycle) conversationOf(ctx context.Context, correctionID int) (int, error) {
	corr, err := l.store.Corrections.GetByID(ctx, correctionID)
	if err != nil {
		return 0, err
	}
	msg, err := l.store.Messages.GetByID(ctx, corr.MessageID)
	if err != nil {
		return 0, err
	}
	return msg.ConversationID, nil
}

// fail maps err, and notifies for failures the learner can retry.
func (l *Lifecycle) fail(ctx context.Context, convID int, op, failMsg string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s correction: %w", ErrNotFound, op, err)
	case errors.Is(err, ErrNotPending):
		return err
	}
	l.metrics.RecordFailure(ctx, op, failureReason(err))
	slog.Warn("correction "+op+" failed", "conversation_id", convID, "err", err)
	l.notify(ctx, convID, notify.KindError, failMsg)
	return fmt.Errorf("chat: %s correction: %w", op, err)
}

// revert undoes a stats change after a failed record write.
func (l *Lifecycle) revert(ctx context.Context, convID int, delta store.SessionStats) {
	if _, err := l.addStats(ctx, convID, delta); err != nil {
		slog.Error("chat: revert stats after failed correction update",
			"conversation_id", convID,
			"err", err,
		)
	}
}
