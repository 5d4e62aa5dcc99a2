package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aipop/internal/types"
)

func TestResultStoreRecordAndRecent(t *testing.T) {
	store, err := NewResultStore(filepath.Join(t.TempDir(), "resp.db"))
	require.NoError(t, err)

	for i, status := range []types.Status{types.StatusPassed, types.StatusFailed, types.StatusError} {
		res := types.TestResult{
			CaseID:   "case-" + string(rune('a'+i)),
			Status:   status,
			Prompt:   "probe",
			Response: "reply",
			Findings: []types.Finding{{RuleID: "asr.jailbreak", Severity: types.SeverityHigh}},
		}
		require.NoError(t, store.Record("smoke", res))
	}

	recent, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "case-c", recent[0].Result.CaseID, "newest first")
	assert.Equal(t, "smoke", recent[0].SuiteID)
	assert.Equal(t, "asr.jailbreak", recent[0].Result.Findings[0].RuleID)
	assert.WithinDuration(t, time.Now(), recent[0].RecordedAt, time.Minute)
}

func TestResultStoreStatusCounts(t *testing.T) {
	store, err := NewResultStore(filepath.Join(t.TempDir(), "resp.db"))
	require.NoError(t, err)

	require.NoError(t, store.Record("s1", types.TestResult{CaseID: "a", Status: types.StatusFailed}))
	require.NoError(t, store.Record("s1", types.TestResult{CaseID: "b", Status: types.StatusFailed}))
	require.NoError(t, store.Record("s1", types.TestResult{CaseID: "c", Status: types.StatusPassed}))
	require.NoError(t, store.Record("s2", types.TestResult{CaseID: "d", Status: types.StatusPassed}))

	counts, err := store.StatusCounts("s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"failed": 2, "passed": 1}, counts)

	all, err := store.StatusCounts("")
	require.NoError(t, err)
	assert.Equal(t, 2, all["passed"])
}

func TestResultStoreSharesResponseCacheFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resp.db")
	rc, err := NewResponseCache(path)
	require.NoError(t, err)
	require.NoError(t, rc.Put("p", "m", "r"))

	store, err := NewResultStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record("s", types.TestResult{CaseID: "x", Status: types.StatusPassed}))

	// Both tables live in one file.
	got, err := rc.Get("p", "m")
	require.NoError(t, err)
	assert.Equal(t, "r", got)
	recent, err := store.Recent(1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
