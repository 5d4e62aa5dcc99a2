// Package orchestrator drives bounded multi-turn objective attacks: plan a
// prompt, send it, parse and score the response, advance the state machine,
// repeat until a terminal state or a budget runs out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aipop/internal/adapter"
	"aipop/internal/cost"
	"aipop/internal/mcp"
	"aipop/internal/parser"
	"aipop/internal/planner"
	"aipop/internal/ratelimit"
	"aipop/internal/score"
	"aipop/internal/strategy"
	"aipop/internal/types"
)

// Termination reasons recorded in the result metadata.
const (
	ReasonObjectiveMet = "objective_met"
	ReasonGaveUp       = "gave_up"
	ReasonMaxTurns     = "max_turns"
	ReasonTimeout      = "timeout"
	ReasonCancelled    = "cancelled"
	ReasonCostCeiling  = "cost_ceiling"
)

// Defaults for unset options.
const (
	DefaultMaxTurns     = 10
	DefaultMaxDenials   = 3
	DefaultMaxSameState = 3
)

// Options configures one orchestrated attack.
type Options struct {
	Target    adapter.Adapter
	Objective string

	// Attacker, when set, enables model-driven planning.
	Attacker adapter.Adapter

	MaxTurns     int
	Timeout      time.Duration
	MaxDenials   int
	MaxSameState int

	// Scorer defaults to the composite flag/tool/exfil stack.
	Scorer score.Scorer

	// Limiter, when set, gates each turn.
	Limiter *ratelimit.Limiter

	// Tools, when set, exposes an MCP server's tool registry: the tool
	// names are seeded into the knowledge base so the planner can target
	// them from turn one.
	Tools *mcp.Provider

	// Costs, when set, meters each target call. CostWarnUSD emits a warning
	// through the tracker's budget; CostCeilingUSD aborts the attack.
	Costs          *cost.Tracker
	CostCeilingUSD float64

	Logger *zap.Logger
}

// Orchestrator runs one objective against one target. It owns its
// conversation and state machine; Reset discards them between test cases.
type Orchestrator struct {
	opts Options

	strat   *strategy.Strategy
	machine *strategy.Machine
	conv    *Conversation
	plan    *planner.Planner
	scorer  score.Scorer
	logger  *zap.Logger
}

// New builds an orchestrator for the objective named in opts.
func New(opts Options) (*Orchestrator, error) {
	if opts.Target == nil {
		return nil, errors.New("orchestrator requires a target adapter")
	}
	strat, err := strategy.Get(opts.Objective)
	if err != nil {
		return nil, err
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.MaxDenials <= 0 {
		opts.MaxDenials = DefaultMaxDenials
	}
	if opts.MaxSameState <= 0 {
		opts.MaxSameState = DefaultMaxSameState
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = score.NewComposite()
	}

	o := &Orchestrator{
		opts:   opts,
		strat:  strat,
		scorer: scorer,
		plan:   planner.New(opts.Attacker, logger),
		logger: logger,
	}
	o.Reset()
	return o, nil
}

// Reset discards the conversation and state machine, preparing the
// orchestrator for a fresh run.
func (o *Orchestrator) Reset() {
	o.machine = o.strat.NewMachine()
	o.conv = NewConversation()
}

// Conversation returns the current conversation history.
func (o *Orchestrator) Conversation() *Conversation { return o.conv }

// Machine returns the current state machine.
func (o *Orchestrator) Machine() *strategy.Machine { return o.machine }

// Branch forks the conversation at turn k and continues from there: a new
// conversation whose parent is the current one, truncated to the first k
// entries. The state machine is not rewound; callers who need a clean
// machine call Reset instead.
func (o *Orchestrator) Branch(k int) {
	o.conv = o.conv.Branch(k)
}

// Run executes the attack loop and returns a summary result. Cooperative
// cancellation terminates with reason "cancelled".
func (o *Orchestrator) Run(ctx context.Context) (*types.AttackResult, error) {
	start := time.Now()
	var deadline time.Time
	if o.opts.Timeout > 0 {
		deadline = start.Add(o.opts.Timeout)
	}

	result := &types.AttackResult{}
	result.SetMeta("objective", o.opts.Objective)
	result.SetMeta("conversation_id", o.conv.ID)

	if o.opts.Tools != nil {
		var names []string
		for _, t := range o.opts.Tools.Tools() {
			names = append(names, t.Name)
		}
		if len(names) > 0 {
			o.machine.UpdateKnowledge(&types.ParsedResponse{ToolsDetected: names})
			result.SetMeta("mcp_tools", names)
		}
	}

	var (
		lastResponse string
		lastParsed   *types.ParsedResponse
		tried        []string
		reason       = ReasonMaxTurns
	)

	for turn := 1; turn <= o.opts.MaxTurns; turn++ {
		if err := o.acquire(ctx); err != nil {
			reason = ReasonCancelled
			o.machine.TransitionTo(strategy.StateFailed, reason)
			break
		}

		prompt := o.nextPrompt(ctx, turn, lastResponse, lastParsed, tried)
		tried = append(tried, prompt)
		o.conv.Append("user", prompt, map[string]interface{}{"turn": turn, "state": o.machine.Current()})

		resp, err := o.opts.Target.Invoke(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				reason = ReasonCancelled
				o.machine.TransitionTo(strategy.StateFailed, reason)
				break
			}
			return nil, fmt.Errorf("target invocation failed on turn %d: %w", turn, err)
		}
		result.NumQueries++
		o.meter(prompt, resp)
		o.conv.Append("assistant", resp.Text, map[string]interface{}{"turn": turn})
		lastResponse = resp.Text

		parsed := parser.Parse(resp.Text, resp.ToolCalls)
		lastParsed = &parsed
		o.machine.UpdateKnowledge(&parsed)

		turnScore, success := o.scorer.Score(resp.Text, parsed)
		result.AdversarialPrompts = append(result.AdversarialPrompts, prompt)
		result.Scores = append(result.Scores, turnScore)
		o.logger.Debug("turn complete",
			zap.Int("turn", turn),
			zap.String("state", o.machine.Current()),
			zap.Float64("score", turnScore),
			zap.Bool("success", success))

		if success {
			result.Success = true
			reason = ReasonObjectiveMet
			o.machine.TransitionTo(strategy.StateSuccess, reason)
			break
		}

		o.advance(&parsed)

		if o.machine.ShouldGiveUp(o.opts.MaxDenials, o.opts.MaxSameState) {
			reason = ReasonGaveUp
			o.machine.TransitionTo(strategy.StateFailed, reason)
			break
		}
		if o.opts.CostCeilingUSD > 0 && o.opts.Costs != nil && o.opts.Costs.Total() >= o.opts.CostCeilingUSD {
			reason = ReasonCostCeiling
			o.machine.TransitionTo(strategy.StateFailed, reason)
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			reason = ReasonTimeout
			o.machine.TransitionTo(strategy.StateFailed, reason)
			break
		}
	}

	if o.opts.Costs != nil {
		result.Cost = o.opts.Costs.Total()
	}
	result.ExecutionTime = time.Since(start).Seconds()
	result.SetMeta("turns_used", o.conv.TurnCount()/2)
	result.SetMeta("final_state", o.machine.Current())
	result.SetMeta("termination_reason", reason)
	result.SetMeta("final_response", lastResponse)
	result.SetMeta("state_history", o.machine.History())
	return result, nil
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	if o.opts.Limiter == nil {
		return ctx.Err()
	}
	return o.opts.Limiter.Acquire(ctx)
}

// nextPrompt uses the strategy's opener on turn 1 and the planner afterward.
func (o *Orchestrator) nextPrompt(ctx context.Context, turn int, lastResponse string,
	lastParsed *types.ParsedResponse, tried []string) string {
	if turn == 1 && len(o.strat.InitialPrompts) > 0 {
		return o.strat.InitialPrompts[0]
	}
	return o.plan.NextPrompt(ctx, o.strat, o.machine, lastResponse, lastParsed, tried)
}

// advance transitions to the best acceptable suggestion, if any.
func (o *Orchestrator) advance(parsed *types.ParsedResponse) {
	for _, s := range o.machine.SuggestNextStates(parsed) {
		if s.State == strategy.StateFailed || s.State == strategy.StateSuccess {
			continue
		}
		if o.machine.TransitionTo(s.State, "suggested") {
			return
		}
	}
}

func (o *Orchestrator) meter(prompt string, resp *types.ModelResponse) {
	if o.opts.Costs == nil {
		return
	}
	inTok := len(prompt) / 4
	outTok := len(resp.Text) / 4
	if v, ok := resp.Metadata["input_tokens"].(int); ok {
		inTok = v
	}
	if v, ok := resp.Metadata["output_tokens"].(int); ok {
		outTok = v
	}
	model := resp.Model()
	if model == "" {
		model = o.opts.Target.Model()
	}
	o.opts.Costs.Record("ctf_turn", model, inTok, outTok)
}
