package grammar

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultTable is the built-in rule table. Order is significant.
var defaultTable = []RuleSpec{
	{
		Label:       "Transitive Verbs",
		Pattern:     `\bi want to discuss about\b`,
		Original:    "discuss about",
		Corrected:   "discuss",
		Explanation: "The verb 'discuss' is transitive and doesn't need the preposition 'about' when followed by a direct object.",
	},
	{
		Label:       "Possessive Pronouns",
		Pattern:     `\bin free time\b`,
		Original:    "in free time",
		Corrected:   "in my free time",
		Explanation: "When talking about your own free time, it's more natural to use the possessive pronoun 'my'.",
	},
	{
		Label:       "Past Participle",
		Pattern:     `\bi have went\b`,
		Original:    "have went",
		Corrected:   "have gone",
		Explanation: "The past participle of 'go' is 'gone', not 'went'.",
	},
	{
		Label:       "Comparative Adjectives",
		Pattern:     `\bmore better\b`,
		Original:    "more better",
		Corrected:   "better",
		Explanation: "'Better' is already a comparative form, so you don't need 'more'.",
	},
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	rules, err := compileAll(defaultTable)
	if err != nil {
		panic(err) // the built-in table is static
	}
	return rules
}

// RuleSpec is the declarative form of a [Rule] as written in a rule file.
type RuleSpec struct {
	Label       string `yaml:"label"`
	Pattern     string `yaml:"pattern"`
	Original    string `yaml:"original"`
	Corrected   string `yaml:"corrected"`
	Explanation string `yaml:"explanation"`
}

// RuleFile is the top-level structure of a rule YAML file.
//
// Example:
//
//	rules:
//	  - label: "Past Participle"
//	    pattern: '\bi have went\b'
//	    original: "have went"
//	    corrected: "have gone"
//	    explanation: "The past participle of 'go' is 'gone', not 'went'."
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// LoadRules reads and compiles the rule table stored at path.
func LoadRules(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("grammar: open rule file %q: %w", path, err)
	}
	defer f.Close()

	rules, err := LoadRulesFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("grammar: parse rule file %q: %w", path, err)
	}
	return rules, nil
}

// LoadRulesFromReader decodes a [RuleFile] from r and compiles it. Unknown
// keys are rejected. An empty file is an error.
func LoadRulesFromReader(r io.Reader) ([]Rule, error) {
	var rf RuleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("grammar: decode rule yaml: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("grammar: rule file defines no rules")
	}
	return compileAll(rf.Rules)
}

func compileAll(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		r, err := NewRule(s.Label, s.Pattern, s.Original, s.Corrected, s.Explanation)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
