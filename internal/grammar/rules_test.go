package grammar_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/grammar"
)

func TestDefaultRules(t *testing.T) {
	t.Parallel()

	rules := grammar.DefaultRules()
	want := []string{"Transitive Verbs", "Possessive Pronouns", "Past Participle", "Comparative Adjectives"}
	if len(rules) != len(want) {
		t.Fatalf("DefaultRules: expected %d rules, got %d", len(want), len(rules))
	}
	for i, label := range want {
		if rules[i].Label != label {
			t.Errorf("rules[%d].Label = %q, want %q", i, rules[i].Label, label)
		}
	}
}

func TestLoadRulesFromReader(t *testing.T) {
	t.Parallel()

	const doc = `
rules:
  - label: "Articles"
    pattern: '\bi am student\b'
    original: "am student"
    corrected: "am a student"
    explanation: "Singular countable nouns need an article."
  - label: "Prepositions"
    pattern: '\barrive to\b'
    original: "arrive to"
    corrected: "arrive at"
    explanation: "We arrive at a place."
`
	rules, err := grammar.LoadRulesFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadRulesFromReader: unexpected error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	reg := grammar.NewRegistry(rules)
	got := reg.Detect("I AM STUDENT and I arrive to school")
	if len(got) != 2 || got[0].Rule != "Articles" || got[1].CorrectedText != "arrive at" {
		t.Fatalf("Detect with loaded rules: got %+v", got)
	}
}

func TestLoadRulesFromReaderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "unknown key", doc: "rules:\n  - label: x\n    regex: y\n", wantErr: "regex"},
		{name: "no rules", doc: "rules: []\n", wantErr: "defines no rules"},
		{name: "invalid rule", doc: "rules:\n  - label: x\n    pattern: '('\n    original: a\n    corrected: b\n", wantErr: "rules[0]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := grammar.LoadRulesFromReader(strings.NewReader(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadRulesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := "rules:\n  - label: Foo\n    pattern: '\\bfoo\\b'\n    original: foo\n    corrected: bar\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}

	rules, err := grammar.LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: unexpected error: %v", err)
	}
	if len(rules) != 1 || rules[0].Label != "Foo" {
		t.Fatalf("LoadRules: got %+v", rules)
	}

	if _, err := grammar.LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadRules: expected error for missing file")
	}
}
