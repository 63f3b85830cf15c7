package rules

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// document mirrors the rule document layout on disk.
type document struct {
	Defaults struct {
		Thresholds map[string]float64 `yaml:"thresholds"`
	} `yaml:"defaults"`
	Rules           []rawRule         `yaml:"rules"`
	TagDefinitions  map[string]string `yaml:"tag_definitions"`
	HighlightStyles map[string]any    `yaml:"highlight_styles"`
}

type rawRule struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Severity    string         `yaml:"severity"`
	Tags        []string       `yaml:"tags"`
	Match       MatchSpec      `yaml:"match"`
	Effects     map[string]any `yaml:"effects"`
}

// Load reads the rule document at path. A missing document is not an
// error: operators may run without custom rules, so the result is an
// empty store. A document that exists but does not parse returns a
// *ParseError and no store.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(), nil
		}
		return nil, &ParseError{Path: path, Err: err}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	store := NewStore()
	if doc.Defaults.Thresholds != nil {
		store.Thresholds = doc.Defaults.Thresholds
	}
	if doc.TagDefinitions != nil {
		store.TagDefinitions = doc.TagDefinitions
	}
	if doc.HighlightStyles != nil {
		store.HighlightStyles = doc.HighlightStyles
	}
	for _, raw := range doc.Rules {
		store.Rules = append(store.Rules, newRule(raw))
	}
	return store, nil
}

// newRule applies the documented field defaults to a raw rule entry.
func newRule(raw rawRule) Rule {
	rule := Rule{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: strings.TrimSpace(raw.Description),
		Severity:    raw.Severity,
		Tags:        raw.Tags,
		Match:       raw.Match,
		Effects:     raw.Effects,
	}
	if rule.ID == "" {
		rule.ID = "unknown"
	}
	if rule.Name == "" {
		rule.Name = "Unknown Rule"
	}
	if rule.Severity == "" {
		rule.Severity = "low"
	}
	if rule.Tags == nil {
		rule.Tags = []string{}
	}
	return rule
}
