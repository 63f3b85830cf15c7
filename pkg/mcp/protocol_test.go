package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDTracking(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		hasID        bool
		hasInvalidID bool
		wantID       any
	}{
		{
			name:   "string id",
			raw:    `{"jsonrpc":"2.0","id":"abc","method":"ping"}`,
			hasID:  true,
			wantID: "abc",
		},
		{
			name:   "numeric id",
			raw:    `{"jsonrpc":"2.0","id":7,"method":"ping"}`,
			hasID:  true,
			wantID: float64(7),
		},
		{
			name:  "absent id is a notification",
			raw:   `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			hasID: false,
		},
		{
			name:         "explicit null id",
			raw:          `{"jsonrpc":"2.0","id":null,"method":"ping"}`,
			hasID:        true,
			hasInvalidID: true,
		},
		{
			name:         "object id is invalid",
			raw:          `{"jsonrpc":"2.0","id":{"nested":1},"method":"ping"}`,
			hasID:        true,
			hasInvalidID: true,
		},
		{
			name:         "array id is invalid",
			raw:          `{"jsonrpc":"2.0","id":[1],"method":"ping"}`,
			hasID:        true,
			hasInvalidID: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req JSONRPCRequest
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &req))

			assert.Equal(t, tt.hasID, req.HasID())
			assert.Equal(t, tt.hasInvalidID, req.HasInvalidID())
			if tt.wantID != nil {
				assert.Equal(t, tt.wantID, req.ID)
			}
		})
	}
}

func TestRequestUnmarshalKeepsParams(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_connections","arguments":{"state_filter":"LISTEN"}}}`

	var req JSONRPCRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, "tools/call", req.Method)
	assert.JSONEq(t, `{"name":"list_connections","arguments":{"state_filter":"LISTEN"}}`, string(req.Params))
}

func TestResponseMarshalOmitsEmpty(t *testing.T) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: float64(1), Result: json.RawMessage(`{}`)}
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "error")

	errResp := JSONRPCResponse{JSONRPC: "2.0", ID: nil, Error: &JSONRPCError{Code: -32700, Message: "Parse error"}}
	out, err = json.Marshal(errResp)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "result")
	assert.Contains(t, string(out), `"id":null`)
}
