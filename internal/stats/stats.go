// Package stats turns the counters stored on a conversation into the figures
// shown in the session statistics panel.
package stats

import (
	"math"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// Report is the read model for a conversation's statistics.
type Report struct {
	store.SessionStats

	// ImprovementRate is the share of tracked corrections the learner has
	// accepted, as a whole percentage in 0..100.
	ImprovementRate int `json:"improvementRate"`
}

// Compute returns the stored counters of conv with a freshly derived
// improvement rate.
func Compute(conv store.Conversation) Report {
	return Report{
		SessionStats:    conv.Stats,
		ImprovementRate: ImprovementRate(conv.Stats),
	}
}

// ImprovementRate returns round(accepted / made * 100), or 0 when no
// corrections are tracked. The result is clamped to 0..100 so inconsistent
// counters never produce an out-of-range percentage.
func ImprovementRate(s store.SessionStats) int {
	if s.CorrectionsMade <= 0 {
		return 0
	}
	rate := int(math.Round(float64(s.CorrectionsAccepted) / float64(s.CorrectionsMade) * 100))
	return min(max(rate, 0), 100)
}

// Derive recomputes the counters from raw collections: messages is every
// message of one conversation, corrections every correction attached to
// those messages. It is used to audit the incrementally maintained counters.
func Derive(messages []store.Message, corrections []store.Correction) store.SessionStats {
	var s store.SessionStats
	s.MessagesSent = len(messages)
	s.CorrectionsMade = len(corrections)
	for _, c := range corrections {
		if c.Accepted {
			s.CorrectionsAccepted++
		}
	}
	return s
}

// Drift reports the fields on which stored and derived counters disagree.
// An empty result means the conversation is consistent.
func Drift(stored, derived store.SessionStats) map[string][2]int {
	out := make(map[string][2]int)
	if stored.MessagesSent != derived.MessagesSent {
		out["messagesSent"] = [2]int{stored.MessagesSent, derived.MessagesSent}
	}
	if stored.CorrectionsMade != derived.CorrectionsMade {
		out["correctionsMade"] = [2]int{stored.CorrectionsMade, derived.CorrectionsMade}
	}
	if stored.CorrectionsAccepted != derived.CorrectionsAccepted {
		out["correctionsAccepted"] = [2]int{stored.CorrectionsAccepted, derived.CorrectionsAccepted}
	}
	return out
}
