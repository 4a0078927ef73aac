package chat_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/chat"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/notify"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// sendWithCorrection sends a message that triggers exactly one correction
// and returns it.
func sendWithCorrection(t *testing.T, f *fixture) store.Correction {
	t.Helper()
	turn, err := f.ctl.Send(context.Background(), f.conv.ID, "I have went to the store")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(turn.Corrections) != 1 {
		t.Fatalf("corrections = %+v, want 1", turn.Corrections)
	}
	return turn.Corrections[0]
}

func TestLifecycle_AcceptThenReject(t *testing.T) {
	t.Parallel()

	f := newFixture(t, echo())
	lc := f.ctl.Lifecycle()
	c := sendWithCorrection(t, f)

	accepted, err := lc.Accept(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !accepted.Accepted {
		t.Error("Accept returned a pending correction")
	}
	if n := f.lastNotification(t); n.Kind != notify.KindSuccess || n.Message != "Correction accepted! Great job learning." {
		t.Errorf("notification = %+v", n)
	}
	if diff := cmp.Diff(store.SessionStats{MessagesSent: 2, CorrectionsMade: 1, CorrectionsAccepted: 1}, f.stats(t)); diff != "" {
		t.Errorf("stats after accept (-want +got):\n%s", diff)
	}
	if r, _ := f.ctl.Stats(context.Background(), f.conv.ID); r.ImprovementRate != 100 {
		t.Errorf("improvement rate = %d, want 100", r.ImprovementRate)
	}

	removed, err := lc.Reject(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if removed.ID != c.ID {
		t.Errorf("Reject returned %+v", removed)
	}
	if n := f.lastNotification(t); n.Kind != notify.KindInfo || n.Message != "Correction ignored" {
		t.Errorf("notification = %+v", n)
	}
	if diff := cmp.Diff(store.SessionStats{MessagesSent: 2}, f.stats(t)); diff != "" {
		t.Errorf("stats after reject (-want +got):\n%s", diff)
	}
	if _, err := f.st.Corrections.GetByID(context.Background(), c.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rejected correction still stored: %v", err)
	}
}

func TestLifecycle_DoubleRejectNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, echo())
	lc := f.ctl.Lifecycle()
	c := sendWithCorrection(t, f)

	if _, err := lc.Reject(context.Background(), c.ID); err != nil {
		t.Fatalf("first Reject: %v", err)
	}
	f.rec.Reset()
	if _, err := lc.Reject(context.Background(), c.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("second Reject error = %v, want ErrNotFound", err)
	}
	if s := f.stats(t); s.CorrectionsMade != 0 {
		t.Errorf("correctionsMade = %d after double reject, want 0", s.CorrectionsMade)
	}
	if got := f.rec.All(); len(got) != 0 {
		t.Errorf("unexpected notifications %+v", got)
	}
}

func TestLifecycle_AcceptErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, echo())
	lc := f.ctl.Lifecycle()
	c := sendWithCorrection(t, f)

	if _, err := lc.Accept(context.Background(), 999); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("Accept(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := lc.Accept(context.Background(), c.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := lc.Accept(context.Background(), c.ID); !errors.Is(err, chat.ErrNotPending) {
		t.Errorf("second Accept error = %v, want ErrNotPending", err)
	}
	if s := f.stats(t); s.CorrectionsAccepted != 1 {
		t.Errorf("correctionsAccepted = %d, want 1", s.CorrectionsAccepted)
	}
}

func TestLifecycle_StoreFailureKeepsPriorState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		op      store.Op
		run     func(*chat.Lifecycle, int) error
		wantMsg string
	}{
		{
			name: "accept",
			op:   store.OpUpdate,
			run: func(lc *chat.Lifecycle, id int) error {
				_, err := lc.Accept(context.Background(), id)
				return err
			},
			wantMsg: "Failed to accept correction",
		},
		{
			name: "reject",
			op:   store.OpDelete,
			run: func(lc *chat.Lifecycle, id int) error {
				_, err := lc.Reject(context.Background(), id)
				return err
			},
			wantMsg: "Failed to ignore correction",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, echo())
			c := sendWithCorrection(t, f)
			before := f.stats(t)

			f.faults.set("corrections", tc.op, true)
			err := tc.run(f.ctl.Lifecycle(), c.ID)
			if !errors.Is(err, store.ErrTransient) {
				t.Fatalf("error = %v, want ErrTransient", err)
			}
			f.faults.set("corrections", tc.op, false)

			if diff := cmp.Diff(before, f.stats(t)); diff != "" {
				t.Errorf("stats changed (-before +after):\n%s", diff)
			}
			got, err := f.st.Corrections.GetByID(context.Background(), c.ID)
			if err != nil || got.Accepted {
				t.Errorf("correction = %+v, %v; want it pending", got, err)
			}
			if n := f.lastNotification(t); n.Kind != notify.KindError || n.Message != tc.wantMsg {
				t.Errorf("notification = %+v", n)
			}
		})
	}
}

func TestLifecycle_AcceptedNeverExceedsMade(t *testing.T) {
	t.Parallel()

	f := newFixture(t, echo())
	lc := f.ctl.Lifecycle()
	rng := rand.New(rand.NewPCG(1, 2))
	texts := []string{
		"I have went out",
		"I want to discuss about music in free time",
		"this is more better",
		"hello there",
	}

	var ids []int
	for step := range 200 {
		switch op := rng.IntN(3); {
		case op == 0 || len(ids) == 0:
			turn, err := f.ctl.Send(context.Background(), f.conv.ID, texts[rng.IntN(len(texts))])
			if err != nil {
				t.Fatalf("step %d: Send: %v", step, err)
			}
			for _, c := range turn.Corrections {
				ids = append(ids, c.ID)
			}
		case op == 1:
			_, err := lc.Accept(context.Background(), ids[rng.IntN(len(ids))])
			if err != nil && !errors.Is(err, chat.ErrNotPending) && !errors.Is(err, chat.ErrNotFound) {
				t.Fatalf("step %d: Accept: %v", step, err)
			}
		default:
			_, err := lc.Reject(context.Background(), ids[rng.IntN(len(ids))])
			if err != nil && !errors.Is(err, chat.ErrNotFound) {
				t.Fatalf("step %d: Reject: %v", step, err)
			}
		}

		s := f.stats(t)
		if s.CorrectionsAccepted > s.CorrectionsMade || s.CorrectionsAccepted < 0 {
			t.Fatalf("step %d: stats %+v violate 0 <= accepted <= made", step, s)
		}
	}

	drift, err := f.ctl.Audit(context.Background(), f.conv.ID)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(drift) != 0 {
		t.Errorf("stored stats drifted from records: %v", drift)
	}
}

func TestLifecycle_AcceptAfterEndSessionStaysInactive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, echo())
	c := sendWithCorrection(t, f)
	if !f.ctl.EndSession(f.conv.ID) {
		t.Fatal("EndSession returned false")
	}

	if _, err := f.ctl.Lifecycle().Accept(context.Background(), c.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if f.ctl.Active(f.conv.ID) || f.ctl.ActiveSessions() != 0 {
		t.Error("Accept reactivated an ended conversation")
	}
	if s := f.stats(t); s.CorrectionsAccepted != 1 {
		t.Errorf("correctionsAccepted = %d, want 1", s.CorrectionsAccepted)
	}
}
