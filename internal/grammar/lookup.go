package grammar

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// labelMatcher ranks rule labels against a free-text query. A label whose
// Double Metaphone codes overlap the query's is a phonetic candidate and
// needs a Jaro-Winkler score of at least phoneticThreshold; other labels need
// fuzzyThreshold. Phonetic candidates always win over purely fuzzy ones.
type labelMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newLabelMatcher() *labelMatcher {
	return &labelMatcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
}

// Lookup returns the rule whose label best matches query, for showing the
// full explanation of a grammar topic the learner asks about ("past
// participle", "possesive pronoun"). The score is the Jaro-Winkler similarity
// of the winning label. An exact case-insensitive label match scores 1.
func (r *Registry) Lookup(query string) (Rule, float64, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Rule{}, 0, false
	}

	rules := *r.rules.Load()
	for _, rule := range rules {
		if strings.ToLower(rule.Label) == q {
			return rule, 1, true
		}
	}

	idx, score, ok := r.lookup.best(q, rules)
	if !ok {
		return Rule{}, 0, false
	}
	return rules[idx], score, true
}

func (m *labelMatcher) best(query string, rules []Rule) (int, float64, bool) {
	queryTokens := strings.Fields(query)
	queryCodes := codesForTokens(queryTokens)

	best, bestScore, bestPhonetic := -1, 0.0, false
	for i, rule := range rules {
		label := strings.ToLower(strings.TrimSpace(rule.Label))
		if label == "" {
			continue
		}
		labelTokens := strings.Fields(label)
		phonetic := codesOverlap(queryCodes, codesForTokens(labelTokens))
		score := bestJWScore(queryTokens, labelTokens, query, label)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = i, score, true
			}
		case !phonetic && !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = i, score
		}
	}
	return best, bestScore, best >= 0
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity across the full strings,
// the space-stripped strings and every token pair.
func bestJWScore(queryTokens, labelTokens []string, queryFull, labelFull string) float64 {
	score := matchr.JaroWinkler(queryFull, labelFull, false)

	if len(queryTokens) > 1 || len(labelTokens) > 1 {
		a := strings.Join(queryTokens, "")
		b := strings.Join(labelTokens, "")
		if s := matchr.JaroWinkler(a, b, false); s > score {
			score = s
		}
	}

	for _, qt := range queryTokens {
		for _, lt := range labelTokens {
			if s := matchr.JaroWinkler(qt, lt, false); s > score {
				score = s
			}
		}
	}
	return score
}
