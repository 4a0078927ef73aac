package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/annotate"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/catalog"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/chat"
)

func TestTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t, echo())
	ctx := context.Background()
	if _, err := f.ctl.Send(ctx, f.conv.ID, "I have went to the store"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := f.ctl.Send(ctx, f.conv.ID, "Nothing wrong here"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	tr, err := f.ctl.Transcript(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(tr.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(tr.Entries))
	}
	if tr.Stats.MessagesSent != 4 || tr.Stats.CorrectionsMade != 1 {
		t.Errorf("stats = %+v", tr.Stats)
	}

	first := tr.Entries[0]
	wantKinds := []annotate.Kind{annotate.KindPlain, annotate.KindHighlighted, annotate.KindPlain}
	var gotKinds []annotate.Kind
	for _, s := range first.Segments {
		gotKinds = append(gotKinds, s.Kind)
	}
	if diff := cmp.Diff(wantKinds, gotKinds); diff != "" {
		t.Errorf("segment kinds (-want +got):\n%s", diff)
	}
	if annotate.Join(first.Segments) != first.Message.Text {
		t.Errorf("segments do not reproduce the message text")
	}

	coachEntry := tr.Entries[1]
	if coachEntry.Segments != nil || coachEntry.Corrections != nil {
		t.Errorf("coach entry annotated: %+v", coachEntry)
	}
	if plain := tr.Entries[2]; len(plain.Segments) != 1 || plain.Segments[0].Kind != annotate.KindPlain {
		t.Errorf("uncorrected message segments = %+v", plain.Segments)
	}

	if _, err := f.ctl.Transcript(ctx, 999); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("Transcript(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRecentCorrections(t *testing.T) {
	t.Parallel()

	f := newFixture(t, echo(), chat.WithRecentLimit(2))
	ctx := context.Background()
	for _, text := range []string{"I have went", "more better", "in free time"} {
		if _, err := f.ctl.Send(ctx, f.conv.ID, text); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	got, err := f.ctl.RecentCorrections(ctx, f.conv.ID, 0)
	if err != nil {
		t.Fatalf("RecentCorrections: %v", err)
	}
	var rules []string
	for _, c := range got {
		rules = append(rules, c.Rule)
	}
	if diff := cmp.Diff([]string{"Possessive Pronouns", "Comparative Adjectives"}, rules); diff != "" {
		t.Errorf("recent corrections (-want +got):\n%s", diff)
	}

	all, err := f.ctl.RecentCorrections(ctx, f.conv.ID, 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("RecentCorrections(10) = %d, %v; want 3", len(all), err)
	}

	other, err := f.ctl.StartConversation(ctx, catalog.Selection{Topic: "food", Difficulty: "advanced"})
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if got, err := f.ctl.RecentCorrections(ctx, other.ID, 0); err != nil || len(got) != 0 {
		t.Errorf("RecentCorrections(other) = %+v, %v; want none", got, err)
	}
}
