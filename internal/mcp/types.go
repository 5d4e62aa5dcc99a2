// Package mcp provides the Model-Context-Protocol client used when the
// attack target fronts an MCP server: tool enumeration on connect, schema
// validation before invocation, and error shapes the orchestrator can act
// on.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// jsonRPCVersion is the only wire version the client accepts.
const jsonRPCVersion = "2.0"

// ToolSchema is the raw tool description from an MCP server.
type ToolSchema struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// Capabilities is the server capability set from the initialize handshake.
type Capabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
	Logging   bool `json:"logging"`
}

// SessionInfo describes an established server session.
type SessionInfo struct {
	ServerName    string       `json:"server_name"`
	ServerVersion string       `json:"server_version"`
	Capabilities  Capabilities `json:"capabilities"`
}

// CallResult is the outcome of one tool invocation.
type CallResult struct {
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// ProtocolError reports a malformed or version-incompatible JSON-RPC
// exchange. It is raised distinctly so callers can display remediation.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "mcp protocol error: " + e.Detail
}

// CapabilityError reports a method or tool the server does not advertise,
// with suggestions drawn from what it does have.
type CapabilityError struct {
	Requested   string
	Suggestions []string
}

func (e *CapabilityError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("mcp server does not provide %q", e.Requested)
	}
	return fmt.Sprintf("mcp server does not provide %q; it does provide: %s",
		e.Requested, strings.Join(e.Suggestions, ", "))
}

// Transport is one wire to an MCP server.
type Transport interface {
	// Connect establishes the session and performs the initialize handshake.
	Connect(ctx context.Context) (*SessionInfo, error)
	// Close tears the session down. Safe to call more than once.
	Close() error
	// ListTools enumerates the server's tools.
	ListTools(ctx context.Context) ([]ToolSchema, error)
	// CallTool invokes one tool. Tool-level failures land in the result, not
	// the error.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error)
}

// request is a JSON-RPC 2.0 request or notification (nil ID).
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      *int        `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// checkVersion rejects anything that is not JSON-RPC 2.0. Servers speaking
// 1.0 omit the field or send "1.0".
func checkVersion(v string) error {
	if v != jsonRPCVersion {
		if v == "" {
			v = "1.0 (field absent)"
		}
		return &ProtocolError{Detail: fmt.Sprintf("server speaks JSON-RPC %s, need %s", v, jsonRPCVersion)}
	}
	return nil
}

// suggestFrom ranks the closest advertised names for a capability error.
func suggestFrom(requested string, available []string) []string {
	type scored struct {
		name  string
		score int
	}
	var ranked []scored
	req := strings.ToLower(requested)
	for _, name := range available {
		s := 0
		low := strings.ToLower(name)
		if strings.Contains(low, req) || strings.Contains(req, low) {
			s += 2
		}
		for _, part := range strings.FieldsFunc(req, func(r rune) bool { return r == '_' || r == '-' || r == '/' }) {
			if part != "" && strings.Contains(low, part) {
				s++
			}
		}
		ranked = append(ranked, scored{name: name, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	limit := 5
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]string, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, r.name)
	}
	return out
}
