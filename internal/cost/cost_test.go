package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecordComputesCostFromPricingTable(t *testing.T) {
	tr := NewTracker(0, nil)

	// gpt-3.5-turbo: $0.50/M in, $1.50/M out
	cost := tr.Record("judge", "gpt-3.5-turbo", 1_000_000, 1_000_000)
	assert.InDelta(t, 2.00, cost, 1e-9)
	assert.InDelta(t, 2.00, tr.Total(), 1e-9)
}

func TestUnknownModelFallsBackWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr := NewTracker(0, zap.New(core))

	cost := tr.Record("attack", "totally-unknown-model", 2_000_000, 0)
	// falls back to gpt-3.5 pricing: 2M * $0.50/M
	assert.InDelta(t, 1.00, cost, 1e-9)

	entries := logs.FilterMessage("unknown model, using fallback pricing").All()
	require.Len(t, entries, 1)
}

func TestPrefixMatchResolvesDatedModelNames(t *testing.T) {
	tr := NewTracker(0, nil)
	p, known := tr.PriceFor("gpt-4o-2024-08-06")
	assert.True(t, known)
	assert.InDelta(t, 2.50, p.InputPerMTok, 1e-9)

	// Longest prefix wins: gpt-4o-mini-x must not resolve to gpt-4o.
	p, known = tr.PriceFor("GPT-4o-mini-2024")
	assert.True(t, known)
	assert.InDelta(t, 0.15, p.InputPerMTok, 1e-9)
}

func TestBudgetWarnsOncePerTransition(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr := NewTracker(1.00, zap.New(core))

	// Each record is $0.60 (gpt-4: 20k in * $30/M = $0.60).
	tr.Record("a", "gpt-4", 20_000, 0)
	assert.False(t, tr.OverBudget())
	tr.Record("b", "gpt-4", 20_000, 0)
	tr.Record("c", "gpt-4", 20_000, 0)
	assert.True(t, tr.OverBudget())

	entries := logs.FilterMessage("budget exceeded").All()
	assert.Len(t, entries, 1)
}

func TestSummarizeBreakdowns(t *testing.T) {
	tr := NewTracker(0, nil)
	tr.Record("attack", "gpt-4", 10_000, 0)
	tr.Record("attack", "gpt-3.5-turbo", 10_000, 0)
	tr.Record("judge", "gpt-3.5-turbo", 10_000, 0)

	s := tr.Summarize()
	assert.Equal(t, 3, s.OperationCount)
	assert.Equal(t, PricingDate, s.PricingDate)
	assert.Len(t, s.ByOperation, 2)
	assert.Len(t, s.ByModel, 2)
	assert.InDelta(t, s.TotalUSD*0.95, s.LowUSD, 1e-9)
	assert.InDelta(t, s.TotalUSD*1.05, s.HighUSD, 1e-9)
	assert.Greater(t, s.ByOperation["attack"], s.ByOperation["judge"])
}
