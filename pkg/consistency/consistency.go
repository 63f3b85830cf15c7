// Package consistency lints a loaded rule store against the known
// connection-state vocabulary and the severity enum, producing findings
// an operator can act on before the rules go live.
package consistency

import (
	"fmt"
	"strings"

	"github.com/shblue21/ntomb/pkg/rules"
)

// Finding severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Finding is a single validation issue for one rule.
type Finding struct {
	Severity string `json:"severity"`
	RuleID   string `json:"rule_id"`
	Message  string `json:"message"`
}

// Summary bundles the findings of one check with separate error and
// warning counts.
type Summary struct {
	Findings []Finding `json:"findings"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
}

// ruleSeverities is the closed set of severity labels a rule may declare.
var ruleSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Check validates every rule in the store. A state referenced by a rule's
// state or state_in predicate that is not in validStates (compared
// uppercased) yields a warning; a severity outside the known labels yields
// an error. The state check is skipped entirely when validStates is empty,
// since there is no vocabulary to validate against.
func Check(store *rules.Store, validStates []string) Summary {
	summary := Summary{Findings: []Finding{}}
	if store == nil {
		return summary
	}

	known := make(map[string]bool, len(validStates))
	for _, s := range validStates {
		known[strings.ToUpper(s)] = true
	}

	for _, rule := range store.Rules {
		if len(known) > 0 {
			for _, state := range referencedStates(rule.Match) {
				if !known[strings.ToUpper(state)] {
					summary.add(Finding{
						Severity: SeverityWarning,
						RuleID:   rule.ID,
						Message:  fmt.Sprintf("rule %s: unknown connection state %q", rule.ID, state),
					})
				}
			}
		}

		if !ruleSeverities[rule.Severity] {
			summary.add(Finding{
				Severity: SeverityError,
				RuleID:   rule.ID,
				Message:  fmt.Sprintf("rule %s: invalid severity %q", rule.ID, rule.Severity),
			})
		}
	}

	return summary
}

func (s *Summary) add(f Finding) {
	s.Findings = append(s.Findings, f)
	switch f.Severity {
	case SeverityError:
		s.Errors++
	case SeverityWarning:
		s.Warnings++
	}
}

// referencedStates collects every connection state named by a rule's
// predicate block, in declaration order.
func referencedStates(m rules.MatchSpec) []string {
	var states []string
	if m.State != nil {
		states = append(states, *m.State)
	}
	states = append(states, m.StateIn...)
	return states
}
