// Package investigate renders human-readable guidance for analyzed
// connections: per-rule explanations and recommended follow-up steps.
// The text only names external tools to run manually; nothing here
// performs lookups itself.
package investigate

import (
	"fmt"

	"github.com/shblue21/ntomb/pkg/analyzer"
)

// ruleExplanations maps stock rule ids to operator-facing summaries.
var ruleExplanations = map[string]string{
	"long_lived_connection":        "Long-lived connection: an ESTABLISHED connection held for over 10 minutes. Could be a C2 channel or a backdoor.",
	"high_port_beaconing":          "High-port beaconing: repeated connections to ports at or above 49152. Could be C2 beacon traffic.",
	"suspicious_external_country":  "Unexpected country: the remote IP resolves to an unexpected country. Check for possible data exfiltration.",
	"unexpected_listener":          "Unexpected listener: something is listening on a non-standard high port. Could be a backdoor or an unapproved service.",
	"many_short_lived_connections": "Short-lived connection burst: many connections opened and closed in a short window. Could be a port scan or a connection pool problem.",
	"excessive_close_wait":         "CLOSE_WAIT buildup: sockets are not being closed properly. This is a resource leak.",
	"excessive_time_wait":          "TIME_WAIT buildup: may indicate connection pool exhaustion or a need for SO_REUSEADDR tuning.",
	"large_data_transfer":          "Large transfer: more than 100MB sent to an external host. Check for possible data exfiltration.",
	"connection_to_tor_exit":       "Tor connection: connected to a known Tor exit node. Could be anonymized traffic.",
	"failed_connection_attempts":   "Repeated connection failures: attempts to the same target keep failing.",
	"privileged_port_binding":      "Privileged port binding: bound to a port below 1024, which requires root.",
}

// RuleExplanation returns the operator-facing summary for a rule id,
// falling back to a generic line for rules without stock text.
func RuleExplanation(ruleID string) string {
	if text, ok := ruleExplanations[ruleID]; ok {
		return text
	}
	return fmt.Sprintf("Matched rule '%s'.", ruleID)
}

// Steps builds a numbered list of recommended investigation steps for one
// analyzed connection. Which steps appear depends on the matched tags; the
// owning process is always the first stop when a pid is known.
func Steps(analysis analyzer.Analysis) []string {
	var steps []string
	add := func(format string, args ...any) {
		steps = append(steps, fmt.Sprintf("%d. ", len(steps)+1)+fmt.Sprintf(format, args...))
	}

	tags := make(map[string]bool, len(analysis.Tags))
	for _, tag := range analysis.Tags {
		tags[tag] = true
	}

	conn := analysis.Connection
	if conn.Pid != nil && *conn.Pid != 0 {
		add("Inspect the process: `ps -p %d -o pid,ppid,user,cmd`", *conn.Pid)
	}

	if tags["beacon"] || tags["c2"] {
		add("Analyze connection frequency for periodic patterns")
		add("Check the remote IP's reputation on VirusTotal or AbuseIPDB")
		add("Hash the process binary: `sha256sum /proc/<pid>/exe`")
	}

	if tags["exfiltration"] {
		add("Monitor transfer volume with `nethogs` or `iftop`")
		add("List files the process has open: `lsof -p <pid>`")
	}

	if tags["resource_leak"] || tags["performance"] {
		add("Check socket statistics: `ss -s` or `netstat -s`")
		add("Review application logs")
		add("Review connection teardown logic")
	}

	if tags["listener"] || tags["backdoor"] {
		add("Check listening ports: `ss -tlnp`")
		add("Confirm the port belongs to an intended service")
		add("Review firewall rules")
	}

	if len(steps) == 0 {
		add("Keep monitoring the connection")
		add("Check logs for the owning process")
	}

	return steps
}
