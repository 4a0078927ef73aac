// Package annotate splits a learner message into plain and highlighted
// segments so that presentation layers can underline corrected phrases.
//
// [Render] walks the corrections in the order supplied, which is detection
// order rather than text order. Each correction claims the first literal,
// case-sensitive occurrence of its original text at or after a moving cursor.
// A correction whose text is not found past the cursor is skipped, so a
// correction list that is out of text order can lose earlier highlights.
// This single pass keeps rendering linear in the number of corrections times
// the message length.
package annotate

import (
	"strings"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// Kind discriminates [Segment] variants.
type Kind string

const (
	// KindPlain is unannotated text.
	KindPlain Kind = "plain"

	// KindHighlighted is text claimed by a correction.
	KindHighlighted Kind = "highlighted"
)

// Segment is a contiguous piece of message text. Correction is set only for
// [KindHighlighted] segments.
type Segment struct {
	Kind       Kind              `json:"kind"`
	Text       string            `json:"text"`
	Correction *store.Correction `json:"correction,omitempty"`
}

// Plain returns a plain segment holding text.
func Plain(text string) Segment {
	return Segment{Kind: KindPlain, Text: text}
}

// Highlighted returns a segment for c covering its original text.
func Highlighted(c store.Correction) Segment {
	return Segment{Kind: KindHighlighted, Text: c.OriginalText, Correction: &c}
}

// Render maps corrections onto text. With no corrections the result is a
// single plain segment (or nothing for empty text). Corrections with an empty
// original text are ignored. Render never modifies its inputs and returns the
// same segments for the same arguments.
func Render(text string, corrections []store.Correction) []Segment {
	var out []Segment
	pos := 0
	for _, c := range corrections {
		if c.OriginalText == "" {
			continue
		}
		rel := strings.Index(text[pos:], c.OriginalText)
		if rel < 0 {
			continue
		}
		start := pos + rel
		if start > pos {
			out = append(out, Plain(text[pos:start]))
		}
		out = append(out, Highlighted(c))
		pos = start + len(c.OriginalText)
	}
	if pos < len(text) {
		out = append(out, Plain(text[pos:]))
	}
	return out
}

// Join reassembles the text covered by segs. For any text and corrections,
// Join(Render(text, corrections)) == text.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Highlights returns the corrections that claimed a span, in segment order.
func Highlights(segs []Segment) []store.Correction {
	var out []store.Correction
	for _, s := range segs {
		if s.Kind == KindHighlighted && s.Correction != nil {
			out = append(out, *s.Correction)
		}
	}
	return out
}
