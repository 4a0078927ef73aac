package chat

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/annotate"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/stats"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// transcriptFanout bounds concurrent correction lookups per transcript.
const transcriptFanout = 8

// Entry is one message of a [Transcript]. Corrections and Segments are only
// set for learner messages.
type Entry struct {
	Message     store.Message      `json:"message"`
	Corrections []store.Correction `json:"corrections,omitempty"`
	Segments    []annotate.Segment `json:"segments,omitempty"`
}

// Transcript is a conversation with its messages in order, each learner
// message annotated with its corrections.
type Transcript struct {
	Conversation store.Conversation `json:"conversation"`
	Entries      []Entry            `json:"entries"`
	Stats        stats.Report       `json:"stats"`
}

// Transcript loads the conversation, its messages and the corrections of
// every learner message concurrently.
func (c *Controller) Transcript(ctx context.Context, convID int) (Transcript, error) {
	var (
		conv     store.Conversation
		messages []store.Message
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		conv, err = c.store.Conversations.GetByID(egCtx, convID)
		return err
	})
	eg.Go(func() error {
		var err error
		messages, err = c.store.Messages.GetByForeignKey(egCtx, convID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Transcript{}, mapErr("transcript", err)
	}

	entries := make([]Entry, len(messages))
	eg, egCtx = errgroup.WithContext(ctx)
	eg.SetLimit(transcriptFanout)
	for i, m := range messages {
		entries[i].Message = m
		if m.Sender != store.SenderUser {
			continue
		}
		eg.Go(func() error {
			corrs, err := c.store.Corrections.GetByForeignKey(egCtx, m.ID)
			if err != nil {
				return fmt.Errorf("message %d: %w", m.ID, err)
			}
			entries[i].Corrections = corrs
			entries[i].Segments = annotate.Render(m.Text, corrs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Transcript{}, mapErr("transcript", err)
	}

	return Transcript{
		Conversation: conv,
		Entries:      entries,
		Stats:        stats.Compute(conv),
	}, nil
}

// RecentCorrections returns the corrections of convID newest first. A
// limit of zero or less uses the controller default.
func (c *Controller) RecentCorrections(ctx context.Context, convID, limit int) ([]store.Correction, error) {
	if limit <= 0 {
		limit = int(c.recentLimit.Load())
	}

	var (
		messages []store.Message
		all      []store.Correction
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if _, err := c.store.Conversations.GetByID(egCtx, convID); err != nil {
			return err
		}
		var err error
		messages, err = c.store.Messages.GetByForeignKey(egCtx, convID)
		return err
	})
	eg.Go(func() error {
		var err error
		all, err = c.store.Corrections.GetAll(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, mapErr("recent corrections", err)
	}

	owned := make(map[int]bool, len(messages))
	for _, m := range messages {
		owned[m.ID] = true
	}
	out := slices.DeleteFunc(all, func(corr store.Correction) bool { return !owned[corr.MessageID] })
	slices.SortFunc(out, func(a, b store.Correction) int { return cmp.Compare(b.ID, a.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Audit recomputes the counters of convID from its stored records and
// returns the fields where the stored stats drifted from them.
func (c *Controller) Audit(ctx context.Context, convID int) (map[string][2]int, error) {
	t, err := c.Transcript(ctx, convID)
	if err != nil {
		return nil, err
	}
	var (
		messages    = make([]store.Message, 0, len(t.Entries))
		corrections []store.Correction
	)
	for _, e := range t.Entries {
		messages = append(messages, e.Message)
		corrections = append(corrections, e.Corrections...)
	}
	return stats.Drift(t.Conversation.Stats, stats.Derive(messages, corrections)), nil
}
