package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shblue21/ntomb/pkg/api"
	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/rules"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "ntomb-os-intel"

	// maxScanTokenSize bounds one JSON-RPC line on stdin.
	maxScanTokenSize = 10 * 1024 * 1024
)

// serverInstructions is sent once per session in the initialize response
// so tool descriptions can stay short.
const serverInstructions = `ntomb-os-intel classifies live TCP connections against a declarative detection rule set.

Workflow:
- analyze_connections: scan every connection and get a severity-bucketed report
- explain_connection: drill into one connection, selected by pid, remote_address, or remote_port
- suggest_investigation: process-centric view with recommended follow-up steps
- compare_baseline: diff current pids and remote endpoints against an expected baseline
- list_detection_rules, check_spec_consistency, suggest_new_rule: inspect, lint, and extend the rule set
- list_connections, list_processes: raw inventory without rule evaluation

The rule document hot-reloads from disk, so analysis always reflects its current contents. Findings are heuristic triage hints, not verdicts; investigation steps name external tools to run manually.`

// Server exposes the detection engine as MCP tools over stdio. One
// instance serves one client; stdout carries protocol frames only, all
// logging goes to stderr.
type Server struct {
	inventory *inventory.Provider
	rules     *rules.Provider
	name      string
	version   string
	logger    zerolog.Logger
}

// NewServer wires the tool surface to its providers. An empty name falls
// back to the stock server identity.
func NewServer(inv *inventory.Provider, ruleProvider *rules.Provider, name, version string) *Server {
	if name == "" {
		name = serverName
	}
	return &Server{
		inventory: inv,
		rules:     ruleProvider,
		name:      name,
		version:   version,
		logger:    log.With().Str("component", "mcp").Logger(),
	}
}

// Serve reads newline-delimited JSON-RPC requests from in and writes
// responses to out until in is exhausted or ctx is cancelled between
// messages. Returns the scanner error, if any; a clean EOF returns nil.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	s.logger.Info().Str("server", s.name).Str("version", s.version).Msg("MCP server ready")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.write(out, &JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      nil,
				Error: &JSONRPCError{
					Code:    -32700,
					Message: "Parse error: " + err.Error(),
				},
			})
			continue
		}

		if resp := s.HandleRequest(req); resp != nil {
			s.write(out, resp)
		}
	}

	s.logger.Info().Msg("MCP client disconnected")
	return scanner.Err()
}

func (s *Server) write(out io.Writer, resp *JSONRPCResponse) {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal response")
		return
	}
	fmt.Fprintln(out, string(respJSON))
}

// methodHandler handles one MCP method.
type methodHandler func(s *Server, req JSONRPCRequest) JSONRPCResponse

var methodHandlers = map[string]methodHandler{
	"initialize": func(s *Server, req JSONRPCRequest) JSONRPCResponse { return s.handleInitialize(req) },
	"tools/list": func(s *Server, req JSONRPCRequest) JSONRPCResponse { return s.handleToolsList(req) },
	"tools/call": func(s *Server, req JSONRPCRequest) JSONRPCResponse { return s.handleToolsCall(req) },
}

// staticResponses maps methods to fixed JSON result bodies.
var staticResponses = map[string]string{
	"initialized":               `{}`,
	"notifications/initialized": `{}`,
	"ping":                      `{}`,
	"prompts/list":              `{"prompts":[]}`,
}

// HandleRequest processes one request and returns its response, or nil
// for notifications, which must not receive a response per JSON-RPC 2.0.
func (s *Server) HandleRequest(req JSONRPCRequest) *JSONRPCResponse {
	if req.HasInvalidID() {
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &JSONRPCError{
				Code:    -32600,
				Message: "Invalid Request: id must be string or number when present",
			},
		}
	}

	if !req.HasID() {
		return nil
	}

	if req.JSONRPC != "2.0" {
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &JSONRPCError{Code: -32600, Message: `Invalid Request: jsonrpc must be "2.0"`},
		}
	}

	if handler, ok := methodHandlers[req.Method]; ok {
		resp := handler(s, req)
		return &resp
	}

	if staticResult, ok := staticResponses[req.Method]; ok {
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(staticResult)}
	}

	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &JSONRPCError{Code: -32601, Message: "Method not found: " + req.Method},
	}
}

func (s *Server) handleInitialize(req JSONRPCRequest) JSONRPCResponse {
	result := MCPInitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo: MCPServerInfo{
			Name:    s.name,
			Version: s.version,
		},
		Capabilities: MCPCapabilities{
			Tools: MCPToolsCapability{},
		},
		Instructions: serverInstructions,
	}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: SafeMarshal(result, `{}`)}
}

func (s *Server) handleToolsList(req JSONRPCRequest) JSONRPCResponse {
	result := MCPToolsListResult{Tools: toolsList()}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: SafeMarshal(result, `{"tools":[]}`)}
}

func (s *Server) handleToolsCall(req JSONRPCRequest) (resp JSONRPCResponse) {
	// A tool reads live OS state; whatever happens in there must come
	// back as a response, not take the server down.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Tool call panicked")
			resp = JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &JSONRPCError{Code: -32603, Message: fmt.Sprintf("Internal error: %v", r)},
			}
		}
	}()

	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &JSONRPCError{Code: -32602, Message: "Invalid params: " + err.Error()},
		}
	}

	fn, ok := toolFuncs[params.Name]
	if !ok {
		return JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &JSONRPCError{Code: -32601, Message: "Unknown tool: " + params.Name},
		}
	}

	s.logger.Debug().Str("tool", params.Name).Msg("Tool call")
	result, ok := fn(s, params.Arguments)
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	api.ObserveToolCall(params.Name, outcome)

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}
