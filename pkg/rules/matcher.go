package rules

import (
	"fmt"
	"strings"

	"github.com/shblue21/ntomb/pkg/inventory"
)

// Matches evaluates this rule's predicates against one connection. A
// rule is a conjunction: every predicate present in its match block must
// hold, and the first failing predicate aborts with no reasons. A
// positive match additionally requires at least one recorded reason, so
// a rule with an empty match block never matches anything.
//
// The direction predicate is deliberately permissive: without an
// exclude_private_ips key a private or empty remote address neither
// contributes a reason nor fails the rule. A rule whose only predicate
// is direction therefore does not, on its own, flag private traffic.
func (r Rule) Matches(conn inventory.Connection) (bool, []string) {
	var reasons []string
	m := r.Match

	if m.State != nil {
		if !strings.EqualFold(conn.State, *m.State) {
			return false, nil
		}
		reasons = append(reasons, "state="+*m.State)
	}

	if m.StateIn != nil {
		states := make([]string, len(m.StateIn))
		for i, s := range m.StateIn {
			states[i] = strings.ToUpper(s)
		}
		if !containsString(states, strings.ToUpper(conn.State)) {
			return false, nil
		}
		reasons = append(reasons, fmt.Sprintf("state in %v", states))
	}

	if m.RemotePortGTE != nil {
		if int(conn.RemotePort) < *m.RemotePortGTE {
			return false, nil
		}
		reasons = append(reasons, fmt.Sprintf("remote_port >= %d", *m.RemotePortGTE))
	}

	if m.LocalPortGTE != nil {
		if int(conn.LocalPort) < *m.LocalPortGTE {
			return false, nil
		}
		reasons = append(reasons, fmt.Sprintf("local_port >= %d", *m.LocalPortGTE))
	}

	if m.LocalPortLTE != nil {
		if int(conn.LocalPort) > *m.LocalPortLTE {
			return false, nil
		}
		reasons = append(reasons, fmt.Sprintf("local_port <= %d", *m.LocalPortLTE))
	}

	if m.Direction == "outbound" {
		if conn.RemoteAddr != "" && !IsPrivateIP(conn.RemoteAddr) {
			reasons = append(reasons, "direction=outbound (external IP)")
		} else if m.ExcludePrivateIPs != nil {
			return false, nil
		}
	}

	return len(reasons) > 0, reasons
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
