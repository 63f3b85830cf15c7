package analyzer

import (
	"sort"

	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/rules"
)

// RuleMatch records one rule that fired against a connection, with the
// predicate descriptions that made it fire.
type RuleMatch struct {
	RuleID   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	Severity string   `json:"severity"`
	Reasons  []string `json:"reasons"`
}

// Analysis is the verdict for a single connection. It is derived per
// call and never stored.
type Analysis struct {
	Connection   inventory.Connection `json:"connection"`
	IsSuspicious bool                 `json:"is_suspicious"`
	Severity     string               `json:"severity"`
	MatchedRules []RuleMatch          `json:"matched_rules"`
	Tags         []string             `json:"tags"`
	MatchReasons []string             `json:"match_reasons"`
}

// Analyze runs every rule in the store against one connection and
// aggregates the matches. Severity is the maximum over matched rules in
// the normal < low < medium < high < critical order; labels the ordinal
// table does not know rank lowest and can never raise the verdict above
// "normal" on their own. Tags are the sorted union across matched rules;
// reasons are deduplicated in first-seen order.
func Analyze(conn inventory.Connection, store *rules.Store) Analysis {
	analysis := Analysis{
		Connection:   conn,
		Severity:     "normal",
		MatchedRules: []RuleMatch{},
		Tags:         []string{},
		MatchReasons: []string{},
	}

	tagSet := make(map[string]struct{})
	seenReasons := make(map[string]struct{})

	for _, rule := range store.Rules {
		matched, reasons := rule.Matches(conn)
		if !matched {
			continue
		}

		analysis.MatchedRules = append(analysis.MatchedRules, RuleMatch{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Severity: rule.Severity,
			Reasons:  reasons,
		})
		for _, tag := range rule.Tags {
			tagSet[tag] = struct{}{}
		}
		for _, reason := range reasons {
			if _, seen := seenReasons[reason]; seen {
				continue
			}
			seenReasons[reason] = struct{}{}
			analysis.MatchReasons = append(analysis.MatchReasons, reason)
		}
		if ParseSeverity(rule.Severity) > ParseSeverity(analysis.Severity) {
			analysis.Severity = rule.Severity
		}
	}

	analysis.IsSuspicious = len(analysis.MatchedRules) > 0
	analysis.Tags = sortedKeys(tagSet)
	return analysis
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
