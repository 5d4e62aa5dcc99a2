// Package cost tracks per-operation token usage and USD spend against a
// static pricing table, and enforces an optional budget ceiling.
package cost

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PricingDate records when the static table below was last refreshed.
// Summaries carry it so stale pricing is visible in reports.
const PricingDate = "2025-06-01"

// MarginOfError is the stated accuracy of the pricing table. Real invoices
// drift as vendors reprice, so every summary reports a +/-5% range.
const MarginOfError = 0.05

// ModelPricing is USD per million tokens, input and output.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultPricing is keyed by model name prefix. Unknown models fall back to
// gpt-3.5 pricing with a warning; a safe default beats a silent zero.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4-turbo":       {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	"gpt-4":             {InputPerMTok: 30.00, OutputPerMTok: 60.00},
	"gpt-3.5-turbo":     {InputPerMTok: 0.50, OutputPerMTok: 1.50},
	"claude-3-opus":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	"llama-3":           {InputPerMTok: 0.20, OutputPerMTok: 0.20},
	"mistral-large":     {InputPerMTok: 2.00, OutputPerMTok: 6.00},
}

const fallbackModel = "gpt-3.5-turbo"

// Operation is one recorded model call.
type Operation struct {
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// Summary aggregates the tracker state for reporting.
type Summary struct {
	TotalUSD       float64            `json:"total_usd"`
	LowUSD         float64            `json:"low_usd"`
	HighUSD        float64            `json:"high_usd"`
	ByOperation    map[string]float64 `json:"by_operation"`
	ByModel        map[string]float64 `json:"by_model"`
	OperationCount int                `json:"operation_count"`
	PricingDate    string             `json:"pricing_date"`
}

// Tracker accounts token usage. Record both appends and reads running totals,
// so it is mutex-protected for sharing across workers.
type Tracker struct {
	mu         sync.Mutex
	pricing    map[string]ModelPricing
	ops        []Operation
	total      float64
	budgetUSD  float64
	overBudget bool
	logger     *zap.Logger
}

// NewTracker creates a tracker. budgetUSD <= 0 disables budget checks.
func NewTracker(budgetUSD float64, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		pricing:   defaultPricing,
		budgetUSD: budgetUSD,
		logger:    logger,
	}
}

// PriceFor resolves the pricing row for a model, falling back to gpt-3.5
// pricing for unknown names. The bool reports whether the model was known.
func (t *Tracker) PriceFor(model string) (ModelPricing, bool) {
	lower := strings.ToLower(model)
	if p, ok := t.pricing[lower]; ok {
		return p, true
	}
	// Longest-prefix match so "gpt-4o-2024-08-06" resolves to "gpt-4o".
	var best string
	for name := range t.pricing {
		if strings.HasPrefix(lower, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return t.pricing[best], true
	}
	return t.pricing[fallbackModel], false
}

// Record accounts one operation and returns its computed USD cost.
// Crossing the budget emits exactly one warning per transition.
func (t *Tracker) Record(operation, model string, inputTokens, outputTokens int) float64 {
	pricing, known := t.PriceFor(model)
	cost := float64(inputTokens)/1e6*pricing.InputPerMTok +
		float64(outputTokens)/1e6*pricing.OutputPerMTok

	t.mu.Lock()
	defer t.mu.Unlock()

	if !known {
		t.logger.Warn("unknown model, using fallback pricing",
			zap.String("model", model),
			zap.String("fallback", fallbackModel))
	}

	t.ops = append(t.ops, Operation{
		Name:         operation,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	})
	t.total += cost

	if t.budgetUSD > 0 {
		if t.total > t.budgetUSD && !t.overBudget {
			t.overBudget = true
			t.logger.Warn("budget exceeded",
				zap.Float64("budget_usd", t.budgetUSD),
				zap.Float64("total_usd", t.total))
		} else if t.total <= t.budgetUSD {
			t.overBudget = false
		}
	}

	return cost
}

// Total returns the accumulated USD spend.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// OverBudget reports whether the configured budget has been crossed.
func (t *Tracker) OverBudget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budgetUSD > 0 && t.total > t.budgetUSD
}

// Summarize builds the reporting view: totals, per-operation and per-model
// breakdowns, and the +/-5% margin range.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		TotalUSD:       t.total,
		LowUSD:         t.total * (1 - MarginOfError),
		HighUSD:        t.total * (1 + MarginOfError),
		ByOperation:    make(map[string]float64),
		ByModel:        make(map[string]float64),
		OperationCount: len(t.ops),
		PricingDate:    PricingDate,
	}
	for _, op := range t.ops {
		s.ByOperation[op.Name] += op.CostUSD
		s.ByModel[op.Model] += op.CostUSD
	}
	return s
}

// Operations returns a copy of the recorded operations.
func (t *Tracker) Operations() []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Operation, len(t.ops))
	copy(out, t.ops)
	return out
}

// String renders a one-line spend summary for log lines.
func (s Summary) String() string {
	return fmt.Sprintf("$%.4f (range $%.4f-$%.4f, %d ops, pricing %s)",
		s.TotalUSD, s.LowUSD, s.HighUSD, s.OperationCount, s.PricingDate)
}
