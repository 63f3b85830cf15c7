package suggest

import (
	"sort"
	"strings"

	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/rules"
)

const (
	ephemeralPortMin  = 49152
	registeredPortMin = 1024
	slugMaxChars      = 30
	nameMaxChars      = 60
)

// category is one row of the keyword table: any keyword appearing in the
// description (case-insensitive) contributes the row's tags to the
// draft. The table stays flat data so new patterns are a one-line edit.
type category struct {
	name     string
	keywords []string
	tags     []string
}

var keywordTable = []category{
	{name: "beacon", keywords: []string{"beacon", "periodic", "heartbeat", "interval"}, tags: []string{"beacon"}},
	{name: "exfiltration", keywords: []string{"exfil", "data theft", "upload", "leak"}, tags: []string{"exfiltration"}},
	{name: "backdoor", keywords: []string{"backdoor", "reverse shell", "bind shell", "implant"}, tags: []string{"backdoor"}},
	{name: "scanning", keywords: []string{"scan", "probe", "sweep", "recon"}, tags: []string{"scanning"}},
	{name: "c2", keywords: []string{"c2", "command and control", "command-and-control", "botnet"}, tags: []string{"c2"}},
	{name: "anomaly", keywords: []string{"anomal", "unusual", "unexpected", "strange"}, tags: []string{"anomaly"}},
}

// Draft is a heuristically generated, unreviewed rule candidate.
// MatchedCategories names the keyword-table rows that contributed, for
// operators deciding whether the classification is trustworthy.
type Draft struct {
	Rule              rules.Rule `json:"rule"`
	MatchedCategories []string   `json:"matched_categories"`
}

// Suggest builds a draft detection rule from a free-text pattern
// description and optional sample connections. The description drives
// tag and severity selection through the keyword table; samples, when
// present, contribute state and remote-port predicates. The result is a
// starting point for an operator, not a deployable rule.
func Suggest(description string, samples []inventory.Connection) Draft {
	lower := strings.ToLower(description)

	tagSet := make(map[string]struct{})
	categories := []string{}
	for _, cat := range keywordTable {
		for _, keyword := range cat.keywords {
			if strings.Contains(lower, keyword) {
				categories = append(categories, cat.name)
				for _, tag := range cat.tags {
					tagSet[tag] = struct{}{}
				}
				break
			}
		}
	}
	if len(tagSet) == 0 {
		tagSet["anomaly"] = struct{}{}
	}

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	rule := rules.Rule{
		ID:          slugify(description),
		Name:        draftName(description),
		Description: strings.TrimSpace(description),
		Severity:    severityFor(tagSet),
		Tags:        tags,
		Match:       matchFromSamples(samples),
	}
	return Draft{Rule: rule, MatchedCategories: categories}
}

// severityFor applies the severity heuristic: command-and-control,
// exfiltration, and backdoor patterns are high; everything else,
// scanning included, is medium.
func severityFor(tagSet map[string]struct{}) string {
	for _, tag := range []string{"c2", "exfiltration", "backdoor"} {
		if _, ok := tagSet[tag]; ok {
			return "high"
		}
	}
	return "medium"
}

// slugify derives a rule id from the first 30 characters of the
// description: lowercased, non-alphanumeric runs collapsed to a single
// underscore, trimmed.
func slugify(description string) string {
	runes := []rune(description)
	if len(runes) > slugMaxChars {
		runes = runes[:slugMaxChars]
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(string(runes)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}

	slug := b.String()
	if slug == "" {
		return "suggested_rule"
	}
	return slug
}

// draftName renders a human-readable name from the description.
func draftName(description string) string {
	name := strings.TrimSpace(description)
	runes := []rune(name)
	if len(runes) > nameMaxChars {
		name = string(runes[:nameMaxChars])
	}
	if name == "" {
		name = "Suggested Rule"
	}
	return "Draft: " + name
}

// matchFromSamples derives predicates from sample connections: one
// distinct state becomes an exact state predicate, several become
// state_in, and the minimum observed remote port is bucketed into a
// remote_port_gte threshold when it clears the ephemeral or registered
// boundary.
func matchFromSamples(samples []inventory.Connection) rules.MatchSpec {
	var match rules.MatchSpec
	if len(samples) == 0 {
		return match
	}

	stateSet := make(map[string]struct{})
	minPort := -1
	for _, sample := range samples {
		if sample.State != "" {
			stateSet[strings.ToUpper(sample.State)] = struct{}{}
		}
		port := int(sample.RemotePort)
		if minPort < 0 || port < minPort {
			minPort = port
		}
	}

	states := make([]string, 0, len(stateSet))
	for state := range stateSet {
		states = append(states, state)
	}
	sort.Strings(states)

	switch len(states) {
	case 0:
	case 1:
		match.State = &states[0]
	default:
		match.StateIn = states
	}

	if minPort > ephemeralPortMin {
		threshold := ephemeralPortMin
		match.RemotePortGTE = &threshold
	} else if minPort > registeredPortMin {
		threshold := registeredPortMin
		match.RemotePortGTE = &threshold
	}
	return match
}
