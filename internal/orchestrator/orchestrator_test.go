package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aipop/internal/adapter"
	"aipop/internal/cost"
	"aipop/internal/strategy"
)

func TestRunSucceedsOnFlag(t *testing.T) {
	target := adapter.NewMock("gpt-4o").Script(
		"I can browse files with read_file and list_dir.",
		"Here you go: flag{c0ngr4ts}",
	)
	o, err := New(Options{Target: target, Objective: "extract-prompt", MaxTurns: 5})
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, ReasonObjectiveMet, res.Metadata["termination_reason"])
	assert.Equal(t, strategy.StateSuccess, res.Metadata["final_state"])
	assert.Equal(t, 2, res.NumQueries)
	assert.Contains(t, res.Metadata["final_response"], "flag{c0ngr4ts}")
	assert.Equal(t, 4, o.Conversation().TurnCount(), "two user and two assistant turns")
}

func TestRunGivesUpAfterDenials(t *testing.T) {
	target := adapter.NewMock("m").Script("I cannot help with that request.")
	o, err := New(Options{Target: target, Objective: "extract-prompt", MaxTurns: 10, MaxDenials: 3})
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonGaveUp, res.Metadata["termination_reason"])
	assert.Equal(t, strategy.StateFailed, res.Metadata["final_state"])
	assert.Equal(t, 3, res.NumQueries)
	assert.Equal(t, 3, o.Machine().Knowledge().DenialCount)
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	target := adapter.NewMock("m").Script("Interesting question, tell me more.")
	o, err := New(Options{Target: target, Objective: "extract-prompt",
		MaxTurns: 2, MaxDenials: 99, MaxSameState: 99})
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonMaxTurns, res.Metadata["termination_reason"])
	assert.Equal(t, 2, res.NumQueries)
}

func TestRunCancellation(t *testing.T) {
	target := adapter.NewMock("m").Script("ok")
	o, err := New(Options{Target: target, Objective: "mcp-inject", MaxTurns: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonCancelled, res.Metadata["termination_reason"])
	assert.Equal(t, strategy.StateFailed, res.Metadata["final_state"])
}

func TestRunTimeout(t *testing.T) {
	slow := adapter.NewMock("m").Script("Let me think about that at length.")
	o, err := New(Options{Target: slow, Objective: "extract-prompt",
		MaxTurns: 50, MaxDenials: 99, MaxSameState: 99, Timeout: time.Nanosecond})
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonTimeout, res.Metadata["termination_reason"])
	assert.Equal(t, 1, res.NumQueries, "timeout is checked after the first turn")
}

func TestRunCostCeiling(t *testing.T) {
	target := adapter.NewMock("gpt-4o").Script("A perfectly ordinary answer of some length to bill against.")
	tracker := cost.NewTracker(0, nil)
	o, err := New(Options{Target: target, Objective: "extract-prompt",
		MaxTurns: 50, MaxDenials: 99, MaxSameState: 99,
		Costs: tracker, CostCeilingUSD: 0.0000001})
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonCostCeiling, res.Metadata["termination_reason"])
	assert.Greater(t, res.Cost, 0.0)
}

func TestBranchTruncatesHistory(t *testing.T) {
	target := adapter.NewMock("m").Script("I cannot help with that request.")
	o, err := New(Options{Target: target, Objective: "extract-prompt", MaxTurns: 10, MaxDenials: 3})
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)

	parent := o.Conversation().ID
	require.Equal(t, 6, o.Conversation().TurnCount())

	o.Branch(2)
	assert.Equal(t, 2, o.Conversation().TurnCount())
	assert.Equal(t, parent, o.Conversation().ParentID)
	assert.NotEqual(t, parent, o.Conversation().ID)
}

func TestResetDiscardsState(t *testing.T) {
	target := adapter.NewMock("m").Script("I cannot help with that request.")
	o, err := New(Options{Target: target, Objective: "extract-prompt", MaxTurns: 10, MaxDenials: 2})
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)
	require.NotZero(t, o.Conversation().TurnCount())

	old := o.Conversation().ID
	o.Reset()
	assert.Zero(t, o.Conversation().TurnCount())
	assert.NotEqual(t, old, o.Conversation().ID)
	assert.Equal(t, 0, o.Machine().Knowledge().DenialCount)
}

func TestFirstTurnUsesInitialPrompt(t *testing.T) {
	target := adapter.NewMock("m").Script("flag{done}")
	o, err := New(Options{Target: target, Objective: "mcp-inject", MaxTurns: 3})
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)

	s, _ := strategy.Get("mcp-inject")
	assert.Equal(t, s.InitialPrompts[0], target.Calls()[0])
}
