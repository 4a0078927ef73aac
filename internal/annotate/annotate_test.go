package annotate_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/annotate"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

func corr(id int, orig string) store.Correction {
	return store.Correction{ID: id, MessageID: 1, OriginalText: orig, CorrectedText: "x", Rule: "R"}
}

func TestRender(t *testing.T) {
	t.Parallel()

	wentC := corr(1, "have went")
	betterC := corr(2, "more better")
	freeC := corr(3, "in free time")

	tests := []struct {
		name        string
		text        string
		corrections []store.Correction
		want        []annotate.Segment
	}{
		{
			name: "no corrections is identity",
			text: "Hello there",
			want: []annotate.Segment{annotate.Plain("Hello there")},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
		{
			name:        "single correction in the middle",
			text:        "I have went to the store",
			corrections: []store.Correction{wentC},
			want: []annotate.Segment{
				annotate.Plain("I "),
				annotate.Highlighted(wentC),
				annotate.Plain(" to the store"),
			},
		},
		{
			name:        "correction at the start with no leading plain",
			text:        "more better now",
			corrections: []store.Correction{betterC},
			want: []annotate.Segment{
				annotate.Highlighted(betterC),
				annotate.Plain(" now"),
			},
		},
		{
			name:        "correction at the end with no trailing plain",
			text:        "it is more better",
			corrections: []store.Correction{betterC},
			want: []annotate.Segment{
				annotate.Plain("it is "),
				annotate.Highlighted(betterC),
			},
		},
		{
			name:        "case mismatch is skipped",
			text:        "I Have Went home",
			corrections: []store.Correction{wentC},
			want:        []annotate.Segment{annotate.Plain("I Have Went home")},
		},
		{
			name:        "first occurrence only",
			text:        "more better and more better",
			corrections: []store.Correction{betterC},
			want: []annotate.Segment{
				annotate.Highlighted(betterC),
				annotate.Plain(" and more better"),
			},
		},
		{
			name:        "in text order",
			text:        "I have went out in free time",
			corrections: []store.Correction{wentC, freeC},
			want: []annotate.Segment{
				annotate.Plain("I "),
				annotate.Highlighted(wentC),
				annotate.Plain(" out "),
				annotate.Highlighted(freeC),
			},
		},
		{
			name:        "out of text order drops the earlier span",
			text:        "I have went out in free time",
			corrections: []store.Correction{freeC, wentC},
			want: []annotate.Segment{
				annotate.Plain("I have went out "),
				annotate.Highlighted(freeC),
			},
		},
		{
			name:        "overlapping span already consumed is skipped",
			text:        "discuss about it",
			corrections: []store.Correction{corr(1, "discuss about"), corr(2, "about")},
			want: []annotate.Segment{
				annotate.Highlighted(corr(1, "discuss about")),
				annotate.Plain(" it"),
			},
		},
		{
			name:        "empty original text is ignored",
			text:        "abc",
			corrections: []store.Correction{corr(1, "")},
			want:        []annotate.Segment{annotate.Plain("abc")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := annotate.Render(tc.text, tc.corrections)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Render mismatch (-want +got):\n%s", diff)
			}
			if j := annotate.Join(got); j != tc.text {
				t.Errorf("Join(Render(text)) = %q, want %q", j, tc.text)
			}
		})
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	t.Parallel()

	text := "i want to discuss about football in free time, it is more better"
	cs := []store.Correction{corr(1, "discuss about"), corr(2, "in free time"), corr(3, "more better")}

	first := annotate.Render(text, cs)
	for range 5 {
		if diff := cmp.Diff(first, annotate.Render(text, cs)); diff != "" {
			t.Fatalf("Render not idempotent (-first +again):\n%s", diff)
		}
	}
}

func TestRenderDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	cs := []store.Correction{corr(1, "have went")}
	segs := annotate.Render("I have went", cs)
	segs[1].Correction.CorrectedText = "mutated"

	if cs[0].CorrectedText != "x" {
		t.Fatalf("Render leaked a pointer into the caller's slice: %+v", cs[0])
	}
}

func TestHighlights(t *testing.T) {
	t.Parallel()

	a, b := corr(1, "have went"), corr(2, "missing")
	got := annotate.Highlights(annotate.Render("I have went", []store.Correction{a, b}))
	if diff := cmp.Diff([]store.Correction{a}, got); diff != "" {
		t.Errorf("Highlights mismatch (-want +got):\n%s", diff)
	}
}
