package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shblue21/ntomb/pkg/analyzer"
	"github.com/shblue21/ntomb/pkg/api"
	"github.com/shblue21/ntomb/pkg/baseline"
	"github.com/shblue21/ntomb/pkg/consistency"
	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/investigate"
	"github.com/shblue21/ntomb/pkg/rules"
	"github.com/shblue21/ntomb/pkg/suggest"
)

// toolFunc runs one tool call. The boolean reports whether the call
// succeeded; error results carry the detail in the returned message.
type toolFunc func(s *Server, args json.RawMessage) (json.RawMessage, bool)

var toolFuncs = map[string]toolFunc{
	"analyze_connections":    (*Server).toolAnalyzeConnections,
	"explain_connection":     (*Server).toolExplainConnection,
	"list_detection_rules":   (*Server).toolListDetectionRules,
	"compare_baseline":       (*Server).toolCompareBaseline,
	"suggest_investigation":  (*Server).toolSuggestInvestigation,
	"suggest_new_rule":       (*Server).toolSuggestNewRule,
	"check_spec_consistency": (*Server).toolCheckConsistency,
	"list_connections":       (*Server).toolListConnections,
	"list_processes":         (*Server).toolListProcesses,
}

// loadStore fetches the current rule store, converting a load failure
// into a ready-to-return tool error.
func (s *Server) loadStore() (*rules.Store, json.RawMessage, bool) {
	store, err := s.rules.Store()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rule store unavailable")
		return nil, ErrorResponse("Failed to load detection rules: " + err.Error()), false
	}
	return store, nil, true
}

func (s *Server) toolAnalyzeConnections(_ json.RawMessage) (json.RawMessage, bool) {
	store, errResp, ok := s.loadStore()
	if !ok {
		return errResp, false
	}

	conns := s.inventory.Connections()
	report := analyzer.Summarize(conns, store)

	api.SetRulesLoaded(report.RulesLoaded)
	api.ObserveScan(report.TotalConnections, report.SuspiciousCount)

	summary := fmt.Sprintf("%d of %d connections suspicious", report.SuspiciousCount, report.TotalConnections)
	return JSONResponse(summary, report), true
}

type explainArgs struct {
	Pid           *int32  `json:"pid"`
	RemoteAddress string  `json:"remote_address"`
	RemotePort    *uint32 `json:"remote_port"`
}

func (s *Server) toolExplainConnection(args json.RawMessage) (json.RawMessage, bool) {
	var params explainArgs
	LenientUnmarshal(args, &params)
	if params.Pid == nil && params.RemoteAddress == "" && params.RemotePort == nil {
		return ErrorResponse("Provide at least one selector: pid, remote_address, or remote_port"), false
	}

	store, errResp, ok := s.loadStore()
	if !ok {
		return errResp, false
	}

	conn, found := analyzer.SelectConnection(s.inventory.Connections(), params.Pid, params.RemoteAddress, params.RemotePort)
	if !found {
		return ErrorResponse("No connection matched the given selector"), false
	}

	analysis := analyzer.Analyze(conn, store)
	explanations := make(map[string]string, len(analysis.MatchedRules))
	for _, match := range analysis.MatchedRules {
		explanations[match.RuleID] = investigate.RuleExplanation(match.RuleID)
	}

	result := struct {
		Analysis     analyzer.Analysis `json:"analysis"`
		Explanations map[string]string `json:"explanations"`
	}{analysis, explanations}
	return JSONResponse("Connection verdict: "+analysis.Severity, result), true
}

func (s *Server) toolListDetectionRules(_ json.RawMessage) (json.RawMessage, bool) {
	store, errResp, ok := s.loadStore()
	if !ok {
		return errResp, false
	}
	api.SetRulesLoaded(len(store.Rules))

	ruleList := store.Rules
	if ruleList == nil {
		ruleList = []rules.Rule{}
	}
	result := struct {
		Rules          []rules.Rule       `json:"rules"`
		TagDefinitions map[string]string  `json:"tag_definitions"`
		Thresholds     map[string]float64 `json:"thresholds"`
		Path           string             `json:"path"`
	}{ruleList, store.TagDefinitions, store.Thresholds, s.rules.Path()}
	return JSONResponse(fmt.Sprintf("%d detection rules loaded", len(ruleList)), result), true
}

func (s *Server) toolCompareBaseline(args json.RawMessage) (json.RawMessage, bool) {
	var base baseline.Baseline
	LenientUnmarshal(args, &base)

	store, errResp, ok := s.loadStore()
	if !ok {
		return errResp, false
	}

	report := baseline.Diff(s.inventory.Connections(), base, store)
	summary := fmt.Sprintf("%d new pids, %d new remote endpoints", len(report.NewPIDs), len(report.NewEndpoints))
	return JSONResponse(summary, report), true
}

type investigationArgs struct {
	Pid *int32 `json:"pid"`
}

func (s *Server) toolSuggestInvestigation(args json.RawMessage) (json.RawMessage, bool) {
	var params investigationArgs
	LenientUnmarshal(args, &params)
	if params.Pid == nil {
		return ErrorResponse("The pid parameter is required"), false
	}

	store, errResp, ok := s.loadStore()
	if !ok {
		return errResp, false
	}

	pid := *params.Pid
	proc, procErr := s.inventory.Process(pid)
	conns := s.inventory.ConnectionsForPid(pid)
	if procErr != nil && len(conns) == 0 {
		return ErrorResponse(fmt.Sprintf("Process %d not found and owns no connections", pid)), false
	}

	analyses := make([]analyzer.Analysis, 0, len(conns))
	tagSet := make(map[string]struct{})
	severity := "normal"
	for _, conn := range conns {
		analysis := analyzer.Analyze(conn, store)
		analyses = append(analyses, analysis)
		for _, tag := range analysis.Tags {
			tagSet[tag] = struct{}{}
		}
		if analyzer.ParseSeverity(analysis.Severity) > analyzer.ParseSeverity(severity) {
			severity = analysis.Severity
		}
	}

	// Steps are generated once for the process, over the union of tags
	// its connections matched.
	merged := analyzer.Analysis{
		Connection: inventory.Connection{Pid: params.Pid},
		Tags:       sortedTagSet(tagSet),
	}
	steps := investigate.Steps(merged)

	result := struct {
		Process     *inventory.ProcessInfo `json:"process,omitempty"`
		Connections []analyzer.Analysis    `json:"connections"`
		Severity    string                 `json:"severity"`
		Steps       []string               `json:"investigation_steps"`
	}{proc, analyses, severity, steps}
	return JSONResponse(fmt.Sprintf("Investigation plan for pid %d (severity %s)", pid, severity), result), true
}

type suggestArgs struct {
	Description       string                 `json:"description"`
	SampleConnections []inventory.Connection `json:"sample_connections"`
}

func (s *Server) toolSuggestNewRule(args json.RawMessage) (json.RawMessage, bool) {
	var params suggestArgs
	LenientUnmarshal(args, &params)
	if strings.TrimSpace(params.Description) == "" {
		return ErrorResponse("The description parameter is required"), false
	}

	draft := suggest.Suggest(params.Description, params.SampleConnections)
	return JSONResponse("Draft rule "+draft.Rule.ID+" (review before adding to the rule document)", draft), true
}

type consistencyArgs struct {
	ValidStates []string `json:"valid_states"`
}

func (s *Server) toolCheckConsistency(args json.RawMessage) (json.RawMessage, bool) {
	var params consistencyArgs
	LenientUnmarshal(args, &params)

	store, errResp, ok := s.loadStore()
	if !ok {
		return errResp, false
	}

	// An absent valid_states falls back to the kernel vocabulary; an
	// explicitly empty list means "no vocabulary" and skips the state
	// check.
	validStates := params.ValidStates
	if validStates == nil {
		validStates = inventory.KnownTCPStates()
	}

	summary := consistency.Check(store, validStates)
	text := fmt.Sprintf("%d errors, %d warnings across %d rules", summary.Errors, summary.Warnings, len(store.Rules))
	return JSONResponse(text, summary), true
}

type listConnectionsArgs struct {
	StateFilter string `json:"state_filter"`
	PidFilter   *int32 `json:"pid_filter"`
}

func (s *Server) toolListConnections(args json.RawMessage) (json.RawMessage, bool) {
	var params listConnectionsArgs
	LenientUnmarshal(args, &params)

	conns := make([]inventory.Connection, 0)
	for _, conn := range s.inventory.Connections() {
		// Kernel-owned sockets have no pid to investigate.
		if conn.Pid == nil {
			continue
		}
		if params.PidFilter != nil && *params.PidFilter != 0 && *conn.Pid != *params.PidFilter {
			continue
		}
		if params.StateFilter != "" && !strings.EqualFold(conn.State, params.StateFilter) {
			continue
		}
		conns = append(conns, conn)
	}
	return JSONResponse(fmt.Sprintf("%d connections", len(conns)), conns), true
}

type listProcessesArgs struct {
	NameFilter      string `json:"name_filter"`
	WithConnections bool   `json:"with_connections"`
}

func (s *Server) toolListProcesses(args json.RawMessage) (json.RawMessage, bool) {
	var params listProcessesArgs
	LenientUnmarshal(args, &params)

	procs := s.inventory.Processes(params.NameFilter, params.WithConnections)
	if procs == nil {
		procs = []inventory.ProcessInfo{}
	}
	return JSONResponse(fmt.Sprintf("%d processes", len(procs)), procs), true
}

func sortedTagSet(set map[string]struct{}) []string {
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// toolsList returns all tool definitions.
func toolsList() []MCPTool {
	return []MCPTool{
		{
			Name:        "analyze_connections",
			Description: "Evaluate every live TCP connection against the detection rules and return a severity-bucketed report with suspicious counts and detected tags.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "explain_connection",
			Description: "Analyze one connection in depth. Select it by pid, remote_address, or remote_port (any combination; all given fields must match). Returns the analysis plus an explanation per matched rule.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pid": map[string]any{
						"type":        "number",
						"description": "Owning process ID",
					},
					"remote_address": map[string]any{
						"type":        "string",
						"description": "Remote IP address",
					},
					"remote_port": map[string]any{
						"type":        "number",
						"description": "Remote port",
					},
				},
			},
		},
		{
			Name:        "list_detection_rules",
			Description: "List the loaded detection rules with their predicates, plus the tag glossary and thresholds from the rule document.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "compare_baseline",
			Description: "Diff the current connection set against an expected baseline of pids and remote endpoints. New connections come back fully analyzed.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expected_pids": map[string]any{
						"type":        "array",
						"description": "Process IDs expected to own connections",
						"items":       map[string]any{"type": "number"},
					},
					"expected_remote_endpoints": map[string]any{
						"type":        "array",
						"description": "Expected remote endpoints as ip:port strings",
						"items":       map[string]any{"type": "string"},
					},
				},
			},
		},
		{
			Name:        "suggest_investigation",
			Description: "Build an investigation plan for one process: its metadata, every connection it owns analyzed against the rules, the aggregated severity, and recommended follow-up steps.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pid": map[string]any{
						"type":        "number",
						"description": "Process ID to investigate",
					},
				},
				"required": []string{"pid"},
			},
		},
		{
			Name:        "suggest_new_rule",
			Description: "Draft a detection rule from a free-text pattern description and optional sample connections. The draft is a starting point for the rule document, not a reviewed rule.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{
						"type":        "string",
						"description": "What the rule should catch, in plain language",
					},
					"sample_connections": map[string]any{
						"type":        "array",
						"description": "Example connections the rule should match",
						"items":       map[string]any{"type": "object"},
					},
				},
				"required": []string{"description"},
			},
		},
		{
			Name:        "check_spec_consistency",
			Description: "Lint the rule document: flag referenced connection states outside the known vocabulary (warnings) and severities outside low/medium/high/critical (errors).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"valid_states": map[string]any{
						"type":        "array",
						"description": "Connection state vocabulary to validate against (defaults to the kernel TCP states)",
						"items":       map[string]any{"type": "string"},
					},
				},
			},
		},
		{
			Name:        "list_connections",
			Description: "List live TCP connections with pid, process name, addresses, ports, and state. No rule evaluation.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"state_filter": map[string]any{
						"type":        "string",
						"description": "Only connections in this state (e.g. ESTABLISHED, LISTEN)",
					},
					"pid_filter": map[string]any{
						"type":        "number",
						"description": "Only connections owned by this process ID",
					},
				},
			},
		},
		{
			Name:        "list_processes",
			Description: "List running processes with cmdline and resource usage. Set with_connections to include per-process TCP connection counts.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name_filter": map[string]any{
						"type":        "string",
						"description": "Case-insensitive process name substring",
					},
					"with_connections": map[string]any{
						"type":        "boolean",
						"description": "Include TCP connection counts",
					},
				},
			},
		},
	}
}
