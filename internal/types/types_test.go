package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFindingPromotesPassedToFailed(t *testing.T) {
	result := &TestResult{CaseID: "tc-1", Status: StatusPassed}

	result.AddFinding(Finding{
		RuleID:   "LLM01",
		Title:    "Prompt injection succeeded",
		Severity: SeverityHigh,
	})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, CategorySecurityFinding, result.Category)
	assert.Equal(t, SeverityHigh, result.Severity)
}

func TestAddFindingSeverityTracksHighest(t *testing.T) {
	result := &TestResult{Status: StatusPassed}

	result.AddFinding(Finding{RuleID: "local/low", Severity: SeverityLow})
	result.AddFinding(Finding{RuleID: "LLM06", Severity: SeverityCritical})
	result.AddFinding(Finding{RuleID: "local/med", Severity: SeverityMedium})

	assert.Equal(t, SeverityCritical, result.Severity)
	assert.Len(t, result.Findings, 3)
}

func TestAddFindingKeepsInfrastructureCategory(t *testing.T) {
	result := &TestResult{Status: StatusError, Category: CategoryInfrastructureError}
	result.AddFinding(Finding{RuleID: "local/x", Severity: SeverityInfo})

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, CategoryInfrastructureError, result.Category)
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	params := map[string]interface{}{
		"zebra": 1,
		"alpha": map[string]interface{}{"inner_b": true, "inner_a": "x"},
		"list":  []interface{}{3, 2, 1},
	}

	out, err := CanonicalJSON(params)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"inner_a":"x","inner_b":true},"list":[3,2,1],"zebra":1}`, string(out))
}

func TestCanonicalJSONStableUnderReencoding(t *testing.T) {
	params := map[string]interface{}{"a": 1.5, "b": []interface{}{"x", map[string]interface{}{"k": 2}}}

	first, err := CanonicalJSON(params)
	require.NoError(t, err)

	var decoded interface{}
	require.NoError(t, json.Unmarshal(first, &decoded))
	second, err := CanonicalJSON(decoded)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestInputHashIgnoresParamOrder(t *testing.T) {
	a := map[string]interface{}{"num_streams": 3, "iterations_per_stream": 5, "attacker_model": "gpt-4"}
	b := map[string]interface{}{"attacker_model": "gpt-4", "num_streams": 3, "iterations_per_stream": 5}

	ha, err := InputHash("prompt", "gpt-3.5-turbo", a)
	require.NoError(t, err)
	hb, err := InputHash("prompt", "gpt-3.5-turbo", b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestInputHashSensitiveToInputs(t *testing.T) {
	base := map[string]interface{}{"k": 1}

	h1, err := InputHash("p", "m", base)
	require.NoError(t, err)
	h2, err := InputHash("p2", "m", base)
	require.NoError(t, err)
	h3, err := InputHash("p", "m2", base)
	require.NoError(t, err)
	h4, err := InputHash("p", "m", map[string]interface{}{"k": 2})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4)
}

func TestCacheKeyShape(t *testing.T) {
	key, err := CacheKey("0.4.0", "pair", "legacy", "X", "gpt-3.5-turbo", nil)
	require.NoError(t, err)
	assert.Regexp(t, `^aipop:v0\.4\.0:pair:legacy:[0-9a-f]{64}$`, key)
}

func TestBestPrompt(t *testing.T) {
	r := &AttackResult{}
	assert.Equal(t, "", r.BestPrompt())

	r.AdversarialPrompts = []string{"best", "second"}
	r.Scores = []float64{9.1, 4.0}
	assert.Equal(t, "best", r.BestPrompt())
}
