package rules

import "fmt"

// Rule is one declarative detection rule from the rule document. Rules
// are immutable once loaded; the engine only reads them.
type Rule struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Severity    string         `yaml:"severity" json:"severity"`
	Tags        []string       `yaml:"tags" json:"tags"`
	Match       MatchSpec      `yaml:"match" json:"match"`
	Effects     map[string]any `yaml:"effects,omitempty" json:"effects,omitempty"`
}

// MatchSpec is a rule's predicate block. Every predicate present must
// hold for the rule to match (conjunction). Presence matters throughout:
// scalar predicates use pointers so a declared zero value is still a
// predicate, and a state_in key declared with an empty list is a
// predicate no connection state satisfies. ExcludePrivateIPs only has
// to be mentioned in the document for it to take effect.
type MatchSpec struct {
	State             *string  `yaml:"state,omitempty" json:"state,omitempty"`
	StateIn           []string `yaml:"state_in,omitempty" json:"state_in,omitempty"`
	RemotePortGTE     *int     `yaml:"remote_port_gte,omitempty" json:"remote_port_gte,omitempty"`
	LocalPortGTE      *int     `yaml:"local_port_gte,omitempty" json:"local_port_gte,omitempty"`
	LocalPortLTE      *int     `yaml:"local_port_lte,omitempty" json:"local_port_lte,omitempty"`
	Direction         string   `yaml:"direction,omitempty" json:"direction,omitempty"`
	ExcludePrivateIPs *bool    `yaml:"exclude_private_ips,omitempty" json:"exclude_private_ips,omitempty"`
}

// Store holds the parsed rule document: the ordered rule list plus the
// auxiliary sections passed through to presentation layers. Evaluation
// order is declaration order. Duplicate rule ids are legal and produce
// duplicate matches downstream.
type Store struct {
	Rules           []Rule             `json:"rules"`
	Thresholds      map[string]float64 `json:"thresholds"`
	TagDefinitions  map[string]string  `json:"tag_definitions"`
	HighlightStyles map[string]any     `json:"highlight_styles"`
}

// NewStore returns an empty store with all sections initialized.
func NewStore() *Store {
	return &Store{
		Thresholds:      map[string]float64{},
		TagDefinitions:  map[string]string{},
		HighlightStyles: map[string]any{},
	}
}

// ParseError reports a rule document that exists but cannot be parsed.
// The caller's store stays unset so a later call can retry after the
// document is fixed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse rule document %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
