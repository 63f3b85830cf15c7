package analyzer

import (
	"time"

	"github.com/google/uuid"

	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/rules"
)

// Report is the severity-bucketed verdict over a whole connection
// snapshot.
type Report struct {
	ScanID           string                `json:"scan_id"`
	GeneratedAt      time.Time             `json:"generated_at"`
	TotalConnections int                   `json:"total_connections"`
	SuspiciousCount  int                   `json:"suspicious_count"`
	BySeverity       map[string]int        `json:"by_severity"`
	Buckets          map[string][]Analysis `json:"connections_by_severity"`
	DetectedTags     []string              `json:"detected_tags"`
	RulesLoaded      int                   `json:"rules_loaded"`
}

// Summarize analyzes every connection in the snapshot and buckets the
// results by severity. Non-suspicious connections land in the "normal"
// bucket; so do suspicious connections whose matched rules all carry
// unranked severity labels, which keeps the suspicious count equal to
// the connections outside the normal bucket. Detected tags are the
// union across suspicious connections.
func Summarize(conns []inventory.Connection, store *rules.Store) Report {
	report := Report{
		ScanID:           uuid.New().String(),
		GeneratedAt:      time.Now().UTC(),
		TotalConnections: len(conns),
		BySeverity:       map[string]int{},
		Buckets:          map[string][]Analysis{},
		DetectedTags:     []string{},
		RulesLoaded:      len(store.Rules),
	}

	tagSet := make(map[string]struct{})
	for _, conn := range conns {
		analysis := Analyze(conn, store)

		bucket := "normal"
		if analysis.IsSuspicious {
			bucket = analysis.Severity
		}
		report.Buckets[bucket] = append(report.Buckets[bucket], analysis)

		if analysis.IsSuspicious {
			for _, tag := range analysis.Tags {
				tagSet[tag] = struct{}{}
			}
		}
	}

	for severity, bucket := range report.Buckets {
		report.BySeverity[severity] = len(bucket)
	}
	report.SuspiciousCount = report.TotalConnections - len(report.Buckets["normal"])
	report.DetectedTags = sortedKeys(tagSet)
	return report
}

// SelectConnection finds the first connection matching the given
// selector. All provided selector fields must match; at least one must
// be provided. The boolean reports whether anything matched.
func SelectConnection(conns []inventory.Connection, pid *int32, remoteAddr string, remotePort *uint32) (inventory.Connection, bool) {
	if pid == nil && remoteAddr == "" && remotePort == nil {
		return inventory.Connection{}, false
	}
	for _, conn := range conns {
		if pid != nil && (conn.Pid == nil || *conn.Pid != *pid) {
			continue
		}
		if remoteAddr != "" && conn.RemoteAddr != remoteAddr {
			continue
		}
		if remotePort != nil && conn.RemotePort != *remotePort {
			continue
		}
		return conn, true
	}
	return inventory.Connection{}, false
}
