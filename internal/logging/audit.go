package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names one harness operation in the audit trail.
type AuditEventType string

const (
	AuditAttackStart    AuditEventType = "attack_start"
	AuditAttackComplete AuditEventType = "attack_complete"
	AuditAttackError    AuditEventType = "attack_error"
	AuditCacheHit       AuditEventType = "cache_hit"
	AuditFallback       AuditEventType = "fallback"

	AuditVerifyStart    AuditEventType = "verify_start"
	AuditVerifyCase     AuditEventType = "verify_case"
	AuditVerifyComplete AuditEventType = "verify_complete"

	AuditOrchestratorTurn AuditEventType = "orchestrator_turn"
	AuditBudgetExceeded   AuditEventType = "budget_exceeded"
)

// AuditEvent is one JSONL record in the audit trail.
type AuditEvent struct {
	Timestamp int64          `json:"ts"`
	Event     AuditEventType `json:"event"`
	RunID     string         `json:"run,omitempty"`

	Method         string `json:"method,omitempty"`
	Implementation string `json:"impl,omitempty"`
	CaseID         string `json:"case,omitempty"`
	Model          string `json:"model,omitempty"`

	Success    bool    `json:"success"`
	DurationMs int64   `json:"dur_ms,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	Error      string  `json:"error,omitempty"`

	Fields map[string]interface{} `json:"fields,omitempty"`
}

// AuditLog appends events to a JSONL file. Safe for concurrent use; a nil
// *AuditLog is a valid no-op so callers never branch on configuration.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// OpenAudit opens (or creates) the audit file for appending.
func OpenAudit(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLog{file: f, now: time.Now}, nil
}

// Record appends one event. The timestamp is stamped here.
func (a *AuditLog) Record(ev AuditEvent) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ev.Timestamp = a.now().UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
