package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// partialDisclosureScore is awarded when a tool call fails with an error
// that discloses attack surface.
const partialDisclosureScore = 0.3

// disclosureHints are tool-error fragments that leak that the tool exists
// and ran against a real resource.
var disclosureHints = []string{
	"file not found",
	"no such file",
	"permission denied",
	"unauthorized",
	"access denied",
	"forbidden",
}

// ToolDescription is how a tool is presented to the planner.
type ToolDescription struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// InvocationOutcome wraps a tool call with the score the composite scorer
// consumes.
type InvocationOutcome struct {
	Result *CallResult `json:"result"`
	// Score is 1 for a clean success, partialDisclosureScore for an error
	// that discloses surface, 0 otherwise.
	Score float64 `json:"score"`
}

// ValidationError reports arguments rejected against the tool's schema
// before any call was made.
type ValidationError struct {
	Tool     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("arguments for tool %q rejected: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// Provider exposes an MCP server's tools to the planner and validates
// invocations against their schemas.
type Provider struct {
	transport Transport
	logger    *zap.Logger

	mu      sync.RWMutex
	session *SessionInfo
	tools   map[string]ToolSchema
}

// NewProvider wraps a transport.
func NewProvider(transport Transport, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{transport: transport, logger: logger, tools: make(map[string]ToolSchema)}
}

// Connect establishes the session and enumerates tools.
func (p *Provider) Connect(ctx context.Context) (*SessionInfo, error) {
	session, err := p.transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	tools, err := p.transport.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.session = session
	p.tools = make(map[string]ToolSchema, len(tools))
	for _, t := range tools {
		p.tools[t.Name] = t
	}
	p.mu.Unlock()

	p.logger.Info("connected to mcp server",
		zap.String("server", session.ServerName),
		zap.Int("tools", len(tools)))
	return session, nil
}

// Close releases the transport.
func (p *Provider) Close() error {
	return p.transport.Close()
}

// Tools lists the enumerated tools sorted by name, shaped for the planner.
func (p *Provider) Tools() []ToolDescription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ToolDescription, 0, len(p.tools))
	for _, t := range p.tools {
		out = append(out, ToolDescription{Name: t.Name, Description: t.Description, Schema: t.InputSchema})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke validates args against the tool's schema and calls it. An unknown
// tool yields a CapabilityError carrying suggestions; invalid args yield a
// ValidationError; a tool error that discloses surface earns a partial
// score.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]interface{}) (*InvocationOutcome, error) {
	p.mu.RLock()
	tool, ok := p.tools[name]
	available := make([]string, 0, len(p.tools))
	for n := range p.tools {
		available = append(available, n)
	}
	p.mu.RUnlock()

	if !ok {
		return nil, &CapabilityError{Requested: name, Suggestions: suggestFrom(name, available)}
	}
	if err := validateArgs(tool, args); err != nil {
		return nil, err
	}

	result, err := p.transport.CallTool(ctx, name, args)
	if err != nil {
		return nil, err
	}
	return &InvocationOutcome{Result: result, Score: scoreResult(result)}, nil
}

func validateArgs(tool ToolSchema, args map[string]interface{}) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}
	schemaLoader := gojsonschema.NewBytesLoader(tool.InputSchema)
	docLoader := gojsonschema.NewGoLoader(args)
	res, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		// A broken server-side schema should not block the probe.
		return nil
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Tool: tool.Name, Problems: problems}
}

func scoreResult(result *CallResult) float64 {
	if result.Success {
		return 1.0
	}
	lower := strings.ToLower(result.Error)
	for _, hint := range disclosureHints {
		if strings.Contains(lower, hint) {
			return partialDisclosureScore
		}
	}
	return 0
}
