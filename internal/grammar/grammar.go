// Package grammar detects common learner mistakes in free text.
//
// Detection is driven entirely by an ordered rule table. Each [Rule] pairs a
// case-insensitive regular expression with the canonical wrong phrase, its
// fix, a short label and an explanation. [Registry.Detect] tests every rule
// against the whole input and emits at most one [Candidate] per matching rule,
// in table order. Candidates are a detection-time concept: nothing here checks
// whether the canonical phrase literally appears in the text.
//
// The table is data. [DefaultRules] returns the built-in rules; [LoadRules]
// reads a replacement table from YAML, and [Registry.Swap] installs it at
// runtime.
package grammar

import (
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
)

// Rule is one entry of the detection table.
type Rule struct {
	// Label names the grammar topic, e.g. "Past Participle".
	Label string

	// Pattern is matched against the full input text. It is compiled
	// case-insensitive by [NewRule].
	Pattern *regexp.Regexp

	// Original is the canonical wrong phrase highlighted in the message.
	Original string

	// Corrected is the suggested replacement for Original.
	Corrected string

	// Explanation tells the learner why the correction applies.
	Explanation string
}

// NewRule compiles pattern case-insensitively and returns the resulting rule.
func NewRule(label, pattern, original, corrected, explanation string) (Rule, error) {
	r := Rule{
		Label:       label,
		Original:    original,
		Corrected:   corrected,
		Explanation: explanation,
	}
	if pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("grammar: rule %q: compile pattern: %w", label, err)
		}
		r.Pattern = re
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks that every field of r is populated.
func (r Rule) Validate() error {
	var errs []error
	if r.Label == "" {
		errs = append(errs, errors.New("label must not be empty"))
	}
	if r.Pattern == nil {
		errs = append(errs, errors.New("pattern must not be empty"))
	}
	if r.Original == "" {
		errs = append(errs, errors.New("original must not be empty"))
	}
	if r.Corrected == "" {
		errs = append(errs, errors.New("corrected must not be empty"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("grammar: rule %q: %w", r.Label, errors.Join(errs...))
}

// Candidate is a correction found in text but not yet persisted.
type Candidate struct {
	OriginalText  string `json:"originalText"`
	CorrectedText string `json:"correctedText"`
	Rule          string `json:"rule"`
	Explanation   string `json:"explanation"`
}

// Registry holds the active rule table. The table can be replaced while
// detections run; each call to [Registry.Detect] sees one consistent table.
// All methods are safe for concurrent use.
type Registry struct {
	rules  atomic.Pointer[[]Rule]
	lookup *labelMatcher
}

// NewRegistry returns a registry serving rules. A nil or empty slice yields a
// registry that never detects anything.
func NewRegistry(rules []Rule) *Registry {
	r := &Registry{lookup: newLabelMatcher()}
	r.Swap(rules)
	return r
}

// Swap atomically replaces the rule table. The slice is copied.
func (r *Registry) Swap(rules []Rule) {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	r.rules.Store(&cp)
}

// Rules returns a copy of the active table in order.
func (r *Registry) Rules() []Rule {
	cur := *r.rules.Load()
	out := make([]Rule, len(cur))
	copy(out, cur)
	return out
}

// Detect scans text against every rule in table order. A rule contributes at
// most one candidate no matter how often its pattern occurs. Empty text
// yields no candidates.
func (r *Registry) Detect(text string) []Candidate {
	if text == "" {
		return nil
	}

	var out []Candidate
	for _, rule := range *r.rules.Load() {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		out = append(out, Candidate{
			OriginalText:  rule.Original,
			CorrectedText: rule.Corrected,
			Rule:          rule.Label,
			Explanation:   rule.Explanation,
		})
	}
	return out
}
