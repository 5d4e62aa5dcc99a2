package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	tools   []ToolSchema
	results map[string]*CallResult
	callErr error
	calls   []string
}

func (f *fakeTransport) Connect(_ context.Context) (*SessionInfo, error) {
	return &SessionInfo{ServerName: "fake", Capabilities: Capabilities{Tools: true}}, nil
}
func (f *fakeTransport) Close() error { return nil }
func (f *fakeTransport) ListTools(_ context.Context) ([]ToolSchema, error) {
	return f.tools, nil
}
func (f *fakeTransport) CallTool(_ context.Context, name string, _ map[string]interface{}) (*CallResult, error) {
	f.calls = append(f.calls, name)
	if f.callErr != nil {
		return nil, f.callErr
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return &CallResult{Success: true}, nil
}

func readFileSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"]
	}`)
}

func newTestProvider(t *testing.T, ft *fakeTransport) *Provider {
	t.Helper()
	p := NewProvider(ft, nil)
	_, err := p.Connect(context.Background())
	require.NoError(t, err)
	return p
}

func TestProviderEnumeratesTools(t *testing.T) {
	ft := &fakeTransport{tools: []ToolSchema{
		{Name: "write_file", Description: "write a file"},
		{Name: "read_file", Description: "read a file", InputSchema: readFileSchema()},
	}}
	p := newTestProvider(t, ft)

	tools := p.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "read_file", tools[0].Name, "sorted by name")
	assert.Equal(t, "write_file", tools[1].Name)
}

func TestInvokeValidatesRequiredParams(t *testing.T) {
	ft := &fakeTransport{tools: []ToolSchema{{Name: "read_file", InputSchema: readFileSchema()}}}
	p := newTestProvider(t, ft)

	_, err := p.Invoke(context.Background(), "read_file", map[string]interface{}{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "read_file", ve.Tool)
	assert.Empty(t, ft.calls, "invalid args must not reach the server")

	out, err := p.Invoke(context.Background(), "read_file", map[string]interface{}{"path": "/etc/hosts"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Score)
}

func TestInvokeUnknownToolSuggestsCapabilities(t *testing.T) {
	ft := &fakeTransport{tools: []ToolSchema{
		{Name: "read_file"}, {Name: "list_directory"}, {Name: "fetch_url"},
	}}
	p := newTestProvider(t, ft)

	_, err := p.Invoke(context.Background(), "delete_file", nil)
	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "delete_file", ce.Requested)
	assert.Contains(t, ce.Suggestions, "read_file")
	assert.Contains(t, err.Error(), "does provide")
}

func TestToolErrorWithHintScoresPartial(t *testing.T) {
	ft := &fakeTransport{
		tools: []ToolSchema{{Name: "read_file", InputSchema: readFileSchema()}},
		results: map[string]*CallResult{
			"read_file": {Success: false, Error: "open /root/secret: permission denied"},
		},
	}
	p := newTestProvider(t, ft)

	out, err := p.Invoke(context.Background(), "read_file", map[string]interface{}{"path": "/root/secret"})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, out.Score, 1e-9)
	assert.False(t, out.Result.Success)
}

func TestToolErrorWithoutHintScoresZero(t *testing.T) {
	ft := &fakeTransport{
		tools: []ToolSchema{{Name: "read_file", InputSchema: readFileSchema()}},
		results: map[string]*CallResult{
			"read_file": {Success: false, Error: "internal server error"},
		},
	}
	p := newTestProvider(t, ft)

	out, err := p.Invoke(context.Background(), "read_file", map[string]interface{}{"path": "x"})
	require.NoError(t, err)
	assert.Zero(t, out.Score)
}

func TestProtocolErrorPropagates(t *testing.T) {
	ft := &fakeTransport{
		tools:   []ToolSchema{{Name: "read_file"}},
		callErr: &ProtocolError{Detail: "server speaks JSON-RPC 1.0 (field absent), need 2.0"},
	}
	p := newTestProvider(t, ft)

	_, err := p.Invoke(context.Background(), "read_file", nil)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "1.0")
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, checkVersion("2.0"))

	err := checkVersion("1.0")
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))

	err = checkVersion("")
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Detail, "field absent")
}
