// Package types provides shared type definitions used across aipop packages.
// This package exists to break import cycles between the attack, cache, judge,
// and orchestrator layers. Types here are foundational data structures with no
// complex dependencies.
package types

import (
	"time"
)

// =============================================================================
// TEST CASES AND MODEL RESPONSES
// =============================================================================

// TestCase is a single case drawn from a suite. Immutable once loaded.
type TestCase struct {
	ID       string            `json:"id" yaml:"id"`
	Prompt   string            `json:"prompt" yaml:"prompt"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Suite bookkeeping carried alongside the free-form metadata so the
	// verifier does not have to parse it back out.
	SuiteID     string  `json:"suite_id,omitempty" yaml:"suite_id,omitempty"`
	Category    string  `json:"category,omitempty" yaml:"category,omitempty"`
	Expected    string  `json:"expected,omitempty" yaml:"expected,omitempty"`
	ExpectedASR float64 `json:"expected_asr,omitempty" yaml:"expected_asr,omitempty"`

	// Orchestrator overrides for multi-turn cases.
	Objective string `json:"objective,omitempty" yaml:"objective,omitempty"`
	MaxTurns  int    `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
}

// ToolCall is a tool invocation reported by the target model.
type ToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ModelResponse is the outcome of one adapter call. Owned by the caller.
type ModelResponse struct {
	Text      string                 `json:"text"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	ToolCalls []ToolCall             `json:"tool_calls,omitempty"`
}

// Model returns the model name recorded in the response metadata, if any.
func (r *ModelResponse) Model() string {
	if v, ok := r.Metadata["model"].(string); ok {
		return v
	}
	return ""
}

// =============================================================================
// ATTACK RESULTS
// =============================================================================

// AttackResult is the full outcome of one attack run.
//
// AdversarialPrompts is ordered highest-scoring first and Scores is parallel
// to it. Score semantics are method-specific but always monotone: larger means
// a better jailbreak.
type AttackResult struct {
	Success            bool                   `json:"success"`
	AdversarialPrompts []string               `json:"adversarial_prompts"`
	Scores             []float64              `json:"scores"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	Cost               float64                `json:"cost"`
	NumQueries         int                    `json:"num_queries"`
	ExecutionTime      float64                `json:"execution_time"`
	Error              string                 `json:"error,omitempty"`
}

// BestPrompt returns the highest-scoring adversarial prompt, or "".
func (r *AttackResult) BestPrompt() string {
	if len(r.AdversarialPrompts) == 0 {
		return ""
	}
	best := 0
	for i := 1; i < len(r.AdversarialPrompts) && i < len(r.Scores); i++ {
		if r.Scores[i] > r.Scores[best] {
			best = i
		}
	}
	return r.AdversarialPrompts[best]
}

// SetMeta stores a metadata key, allocating the map on first use.
func (r *AttackResult) SetMeta(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// ConfidenceTag rates how trustworthy a cost estimate is.
type ConfidenceTag string

const (
	ConfidenceLow    ConfidenceTag = "low"
	ConfidenceMedium ConfidenceTag = "medium"
	ConfidenceHigh   ConfidenceTag = "high"
)

// CostEstimate is a plugin's prediction of what a run will cost.
type CostEstimate struct {
	TotalUSD   float64            `json:"total_usd"`
	Breakdown  map[string]float64 `json:"breakdown,omitempty"`
	NumQueries int                `json:"num_queries"`
	Confidence ConfidenceTag      `json:"confidence"`
	Caveats    []string           `json:"caveats,omitempty"`
}

// CachedResult wraps an AttackResult with its cache provenance.
type CachedResult struct {
	Result    AttackResult `json:"result"`
	CreatedAt time.Time    `json:"created_at"`
	Version   string       `json:"version"`
}

// =============================================================================
// GUARDRAIL FINGERPRINTING
// =============================================================================

// Probe is a (prompt, expected-behavior signature) pair used to identify
// which guardrail family fronts the target.
type Probe struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	Signature string `json:"signature"`
}

// ProbeResult carries the target's reaction to one probe.
type ProbeResult struct {
	Probe     Probe         `json:"probe"`
	Response  string        `json:"response"`
	Latency   time.Duration `json:"latency"`
	ErrorCode string        `json:"error_code,omitempty"`
}

// FingerprintResult identifies the detected guardrail family.
type FingerprintResult struct {
	Guardrail         string             `json:"guardrail"`
	Confidence        float64            `json:"confidence"`
	MatcherScores     map[string]float64 `json:"matcher_scores,omitempty"`
	Evidence          []string           `json:"evidence,omitempty"`
	BypassSuggestions []string           `json:"bypass_suggestions,omitempty"`
}

// =============================================================================
// JUDGMENTS AND PARSED RESPONSES
// =============================================================================

// Judgment is a judge's verdict on one (prompt, response) pair.
// Score is on [0,10]; Confidence on [0,1].
type Judgment struct {
	Score       float64 `json:"score"`
	IsJailbreak bool    `json:"is_jailbreak"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// ParsedResponse is the pure-function decomposition of one target response.
type ParsedResponse struct {
	ToolsDetected     []string `json:"tools_detected,omitempty"`
	Hints             []string `json:"hints,omitempty"`
	CapitalizedWords  []string `json:"capitalized_words,omitempty"`
	PartialSuccess    bool     `json:"partial_success"`
	DenialDetected    bool     `json:"denial_detected"`
	SuccessIndicators []string `json:"success_indicators,omitempty"`
}
