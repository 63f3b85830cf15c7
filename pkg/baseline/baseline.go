package baseline

import (
	"sort"

	"github.com/shblue21/ntomb/pkg/analyzer"
	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/rules"
)

// Baseline is the operator-declared expected picture of the host:
// which pids and which remote endpoints ("ip:port") are supposed to be
// there. It is supplied per call and never persisted.
type Baseline struct {
	ExpectedPIDs      []int32  `json:"expected_pids"`
	ExpectedEndpoints []string `json:"expected_remote_endpoints"`
}

// DriftReport describes what the live snapshot has that the baseline
// does not. New connections carry their full analysis so drift findings
// arrive pre-triaged.
type DriftReport struct {
	NewPIDs              []int32             `json:"new_pids"`
	NewEndpoints         []string            `json:"new_remote_endpoints"`
	NewConnections       []analyzer.Analysis `json:"new_connections"`
	CurrentPIDCount      int                 `json:"current_pid_count"`
	CurrentEndpointCount int                 `json:"current_endpoint_count"`
}

// Diff computes the set difference between the live snapshot's identity
// keys and the baseline. A missing baseline part disables that side of
// the comparison entirely: with no expected pids, no pid is ever flagged
// new, and likewise for endpoints. Kernel-owned sockets (nil pid) never
// contribute a pid; remote endpoints are skipped when the address is
// empty or the 0.0.0.0 placeholder.
func Diff(conns []inventory.Connection, base Baseline, store *rules.Store) DriftReport {
	currentPIDs := make(map[int32]struct{})
	currentEndpoints := make(map[string]struct{})
	for _, conn := range conns {
		if conn.Pid != nil {
			currentPIDs[*conn.Pid] = struct{}{}
		}
		if conn.RemoteAddr != "" && conn.RemoteAddr != "0.0.0.0" {
			currentEndpoints[conn.RemoteEndpoint()] = struct{}{}
		}
	}

	newPIDs := make(map[int32]struct{})
	if len(base.ExpectedPIDs) > 0 {
		expected := make(map[int32]struct{}, len(base.ExpectedPIDs))
		for _, pid := range base.ExpectedPIDs {
			expected[pid] = struct{}{}
		}
		for pid := range currentPIDs {
			if _, ok := expected[pid]; !ok {
				newPIDs[pid] = struct{}{}
			}
		}
	}

	newEndpoints := make(map[string]struct{})
	if len(base.ExpectedEndpoints) > 0 {
		expected := make(map[string]struct{}, len(base.ExpectedEndpoints))
		for _, endpoint := range base.ExpectedEndpoints {
			expected[endpoint] = struct{}{}
		}
		for endpoint := range currentEndpoints {
			if _, ok := expected[endpoint]; !ok {
				newEndpoints[endpoint] = struct{}{}
			}
		}
	}

	report := DriftReport{
		NewPIDs:              sortedPIDs(newPIDs),
		NewEndpoints:         sortedStrings(newEndpoints),
		NewConnections:       []analyzer.Analysis{},
		CurrentPIDCount:      len(currentPIDs),
		CurrentEndpointCount: len(currentEndpoints),
	}

	for _, conn := range conns {
		if !isNew(conn, newPIDs, newEndpoints) {
			continue
		}
		report.NewConnections = append(report.NewConnections, analyzer.Analyze(conn, store))
	}
	return report
}

// isNew reports whether the connection's endpoint or pid landed in the
// respective "new" set.
func isNew(conn inventory.Connection, newPIDs map[int32]struct{}, newEndpoints map[string]struct{}) bool {
	if _, ok := newEndpoints[conn.RemoteEndpoint()]; ok {
		return true
	}
	if conn.Pid != nil {
		if _, ok := newPIDs[*conn.Pid]; ok {
			return true
		}
	}
	return false
}

func sortedPIDs(set map[int32]struct{}) []int32 {
	pids := make([]int32, 0, len(set))
	for pid := range set {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

func sortedStrings(set map[string]struct{}) []string {
	values := make([]string, 0, len(set))
	for value := range set {
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}
