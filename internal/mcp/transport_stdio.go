package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// clientName identifies this client in the initialize handshake.
const clientName = "aipop"

// disconnectGrace bounds how long Close waits for reader goroutines.
const disconnectGrace = time.Second

// StdioTransport speaks JSON-RPC 2.0 over a child process's stdin/stdout.
// Stderr is drained and logged; one line carries one message.
type StdioTransport struct {
	mu sync.Mutex

	command string
	args    []string
	logger  *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	connected bool
	session   *SessionInfo

	pending map[int]chan *response
	nextID  int

	wg sync.WaitGroup
}

// NewStdioTransport creates a transport for the given command line, e.g.
// "npx some-mcp-server --stdio".
func NewStdioTransport(endpoint string, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	parts := strings.Fields(endpoint)
	var cmd string
	var args []string
	if len(parts) > 0 {
		cmd = parts[0]
		args = parts[1:]
	}
	return &StdioTransport{
		command: cmd,
		args:    args,
		logger:  logger,
		pending: make(map[int]chan *response),
		nextID:  1,
	}
}

// Connect implements Transport: start the child, spin up the readers, and
// run the initialize handshake.
func (t *StdioTransport) Connect(ctx context.Context) (*SessionInfo, error) {
	t.mu.Lock()
	if t.connected {
		session := t.session
		t.mu.Unlock()
		return session, nil
	}
	if t.command == "" {
		t.mu.Unlock()
		return nil, fmt.Errorf("empty command for stdio transport")
	}

	t.cmd = exec.Command(t.command, t.args...)
	var err error
	if t.stdin, err = t.cmd.StdinPipe(); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	if t.stdout, err = t.cmd.StdoutPipe(); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if t.stderr, err = t.cmd.StderrPipe(); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := t.cmd.Start(); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to start %s: %w", t.command, err)
	}
	t.connected = true

	t.wg.Add(2)
	go t.readStderr()
	go t.readStdout()
	t.mu.Unlock()

	session, err := t.initialize(ctx)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	t.mu.Lock()
	t.session = session
	t.mu.Unlock()
	return session, nil
}

// Close implements Transport.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false

	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(disconnectGrace):
		t.logger.Warn("timeout waiting for stdio transport readers to exit")
	}
	if t.cmd != nil {
		_ = t.cmd.Wait()
	}
	return nil
}

func (t *StdioTransport) readStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		t.logger.Debug("mcp server stderr", zap.String("line", scanner.Text()))
	}
}

func (t *StdioTransport) readStdout() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.logger.Warn("unparseable line from mcp server", zap.Error(err))
			continue
		}

		t.mu.Lock()
		ch, exists := t.pending[resp.ID]
		if exists {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if exists {
			ch <- &resp
		} else {
			// Notification or server-initiated request.
			t.logger.Debug("unsolicited mcp message", zap.ByteString("payload", line))
		}
	}
}

// call sends a request line and waits for the matching response. The caller
// must not hold the transport lock: the reader goroutine needs it to
// dispatch.
func (t *StdioTransport) call(ctx context.Context, method string, params interface{}) (*response, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("not connected to mcp server")
	}
	id := t.nextID
	t.nextID++
	ch := make(chan *response, 1)
	t.pending[id] = ch

	data, err := json.Marshal(request{JSONRPC: jsonRPCVersion, ID: &id, Method: method, Params: params})
	if err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to write to mcp server: %w", err)
	}
	t.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("mcp connection closed")
		}
		if err := checkVersion(resp.JSONRPC); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// notify sends a notification (no ID, no response).
func (t *StdioTransport) notify(method string) {
	data, err := json.Marshal(request{JSONRPC: jsonRPCVersion, Method: method})
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin != nil {
		_, _ = t.stdin.Write(append(data, '\n'))
	}
}

func (t *StdioTransport) initialize(ctx context.Context) (*SessionInfo, error) {
	resp, err := t.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]string{"name": clientName, "version": "0.4.0"},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Capabilities Capabilities `json:"capabilities"`
		ServerInfo   struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("malformed initialize result: %v", err)}
	}
	t.notify("notifications/initialized")

	return &SessionInfo{
		ServerName:    result.ServerInfo.Name,
		ServerVersion: result.ServerInfo.Version,
		Capabilities:  result.Capabilities,
	}, nil
}

// ListTools implements Transport.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("malformed tools/list result: %v", err)}
	}
	return result.Tools, nil
}

// CallTool implements Transport.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	start := time.Now()
	resp, err := t.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return nil, err
		}
		return &CallResult{Success: false, Error: err.Error(), LatencyMs: latency}, nil
	}
	return &CallResult{Success: true, Output: resp.Result, LatencyMs: latency}, nil
}

var _ Transport = (*StdioTransport)(nil)
