package types

import (
	"time"
)

// Severity grades a finding or result.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities so the highest finding can drive the result severity.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Status is the execution status of one test case.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
	StatusBlocked Status = "blocked"
)

// Category classifies why a test ended the way it did.
type Category string

const (
	CategorySecurityFinding     Category = "security_finding"
	CategoryPolicyViolation     Category = "policy_violation"
	CategoryInfrastructureError Category = "infrastructure_error"
)

// EvidenceRef points at supporting material for a finding.
type EvidenceRef struct {
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Finding is one security observation, mapped to an external taxonomy
// (OWASP LLM Top-10 rule ids or local rules).
type Finding struct {
	RuleID      string        `json:"rule_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Severity    Severity      `json:"severity"`
	Confidence  float64       `json:"confidence"`
	Tags        []string      `json:"tags,omitempty"`
	Evidence    []EvidenceRef `json:"evidence,omitempty"`
}

// TestResult is the record handed to reporters for one executed case.
type TestResult struct {
	CaseID     string                 `json:"case_id"`
	Status     Status                 `json:"status"`
	Category   Category               `json:"category,omitempty"`
	Severity   Severity               `json:"severity,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Prompt     string                 `json:"prompt,omitempty"`
	Response   string                 `json:"response,omitempty"`
	Adapter    string                 `json:"adapter,omitempty"`
	Model      string                 `json:"model,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Findings   []Finding              `json:"findings,omitempty"`
}

// AddFinding attaches a finding and applies the promotion rules: a security
// finding flips a passed result to failed, and the result severity tracks the
// highest finding severity seen.
func (t *TestResult) AddFinding(f Finding) {
	t.Findings = append(t.Findings, f)

	if f.Severity.rank() > t.Severity.rank() {
		t.Severity = f.Severity
	}

	if t.Category == CategorySecurityFinding || t.Category == "" {
		t.Category = CategorySecurityFinding
	}
	if t.Status == StatusPassed || t.Status == "" {
		t.Status = StatusFailed
	}
}

// Duration returns the wall time the case took.
func (t *TestResult) Duration() time.Duration {
	return t.FinishedAt.Sub(t.StartedAt)
}
