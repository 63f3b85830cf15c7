package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/rules"
)

const testRuleDoc = `
defaults:
  thresholds:
    high_port: 49152
rules:
  - id: unexpected_listener
    name: Unexpected High Port Listener
    description: Listening socket on an ephemeral port.
    severity: medium
    tags: [listener, backdoor]
    match:
      state: LISTEN
      local_port_gte: 49152
  - id: excessive_close_wait
    name: CLOSE_WAIT Buildup
    description: Sockets stuck half closed.
    severity: low
    tags: [resource_leak]
    match:
      state: CLOSE_WAIT
tag_definitions:
  listener: "A socket accepting inbound connections"
`

func writeRuleDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suspicious_detection.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(inventory.NewProvider(), rules.NewProvider(writeRuleDoc(t, testRuleDoc)), "", "test")
}

func request(t *testing.T, raw string) JSONRPCRequest {
	t.Helper()
	var req JSONRPCRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return req
}

func TestHandleInitialize(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result MCPInitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "2024-11-05", result.ProtocolVersion)
	assert.Equal(t, "ntomb-os-intel", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
	assert.NotEmpty(t, result.Instructions)
}

func TestHandleNotificationReturnsNothing(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, resp)
}

func TestHandleNullIDRejected(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":null,"method":"ping"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestHandleWrongProtocolVersion(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"1.0","id":2,"method":"ping"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestHandleUnknownMethod(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "resources/list")
}

func TestHandleStaticMethods(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		method string
		result string
	}{
		{"ping", `{}`},
		{"initialized", `{}`},
		{"prompts/list", `{"prompts":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":4,"method":"`+tt.method+`"}`))
			require.NotNil(t, resp)
			require.Nil(t, resp.Error)
			assert.JSONEq(t, tt.result, string(resp.Result))
		})
	}
}

func TestToolsListExposesAllTools(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":5,"method":"tools/list"}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result MCPToolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		assert.NotEmpty(t, tool.Description, "tool %s has no description", tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], "tool %s schema", tool.Name)
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"analyze_connections",
		"explain_connection",
		"list_detection_rules",
		"compare_baseline",
		"suggest_investigation",
		"suggest_new_rule",
		"check_spec_consistency",
		"list_connections",
		"list_processes",
	}, names)
}

func TestToolsCallUnknownTool(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"frobnicate"}}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "frobnicate")
}

func TestToolsCallMalformedParams(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":[1,2,3]}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestToolsCallPanicBecomesInternalError(t *testing.T) {
	toolFuncs["explode"] = func(s *Server, args json.RawMessage) (json.RawMessage, bool) {
		panic("inventory went sideways")
	}
	defer delete(toolFuncs, "explode")

	server := newTestServer(t)
	resp := server.HandleRequest(request(t, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"explode"}}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "inventory went sideways")
	assert.Equal(t, float64(8), resp.ID)
}

func TestServeProcessesLineDelimitedRequests(t *testing.T) {
	server := newTestServer(t)

	in := bytes.NewBufferString(
		`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
			"\n" +
			"this is not json\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n",
	)
	var out bytes.Buffer

	require.NoError(t, server.Serve(context.Background(), in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first JSONRPCResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, float64(1), first.ID)
	assert.Nil(t, first.Error)

	var second JSONRPCResponse
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NotNil(t, second.Error)
	assert.Equal(t, -32700, second.Error.Code)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, server.Serve(ctx, in, &out))
	assert.Empty(t, out.String())
}
