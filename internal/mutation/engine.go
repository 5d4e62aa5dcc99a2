package mutation

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// guardrailPriorities orders mutators by published effectiveness against
// each guardrail family. Mutators not listed keep their default order after
// the prioritized ones.
var guardrailPriorities = map[string][]string{
	"promptguard":          {TypeUnicode, TypeEncoding},
	"llama_guard_3":        {TypeEncoding, TypeUnicode, TypeHTML},
	"azure_content_safety": {TypeEncoding, TypeHTML},
	"constitutional_ai":    {TypeParaphrase, TypeGenetic},
	"rebuff":               {TypeHTML, TypeEncoding},
	"nemo_guardrails":      {TypeEncoding, TypeUnicode},
	"unknown":              {TypeEncoding, TypeUnicode, TypeHTML},
}

// defaultEpsilon is the exploration rate for RL-weighted selection.
const defaultEpsilon = 0.1

// Engine composes mutators and orders them by guardrail fit and recorded
// success.
type Engine struct {
	mutators []Mutator
	stats    *StatsStore
	epsilon  float64
	rng      *rand.Rand
	logger   *zap.Logger
}

// NewEngine builds an engine over the full default mutator stack. A nil
// stats store disables RL feedback.
func NewEngine(stats *StatsStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		mutators: []Mutator{
			EncodingMutator{},
			UnicodeMutator{},
			HTMLMutator{},
			ParaphraseMutator{},
			GeneticMutator{},
		},
		stats:   stats,
		epsilon: defaultEpsilon,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}
}

// WithMutators replaces the mutator stack; tests use it to pin ordering.
func (e *Engine) WithMutators(ms ...Mutator) *Engine {
	e.mutators = ms
	return e
}

// MutatorOrder returns the current mutator names in priority order.
func (e *Engine) MutatorOrder() []string {
	out := make([]string, len(e.mutators))
	for i, m := range e.mutators {
		out[i] = m.Name()
	}
	return out
}

// SetGuardrailOptimization reorders the mutator list so the techniques
// known to work against guardrail run first. Unrecognized guardrails use
// the "unknown" ordering.
func (e *Engine) SetGuardrailOptimization(guardrail string) {
	priority, ok := guardrailPriorities[guardrail]
	if !ok {
		priority = guardrailPriorities["unknown"]
	}
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[name] = i
	}

	reordered := make([]Mutator, 0, len(e.mutators))
	for _, name := range priority {
		for _, m := range e.mutators {
			if m.Name() == name {
				reordered = append(reordered, m)
			}
		}
	}
	for _, m := range e.mutators {
		if _, prioritized := rank[m.Name()]; !prioritized {
			reordered = append(reordered, m)
		}
	}
	e.mutators = reordered
	e.logger.Debug("mutator order optimized",
		zap.String("guardrail", guardrail), zap.Strings("order", e.MutatorOrder()))
}

// Mutate runs the enabled mutators in priority order and concatenates their
// outputs. With RL feedback enabled, mutator order within a call is chosen
// epsilon-greedily by recorded success rate.
func (e *Engine) Mutate(prompt string) []Mutation {
	mutators := e.mutators
	if e.stats != nil {
		mutators = e.rlOrder()
	}
	var out []Mutation
	for _, m := range mutators {
		out = append(out, m.Mutate(prompt)...)
	}
	return out
}

// RecordOutcome feeds an attempt back into the statistics store.
func (e *Engine) RecordOutcome(mutationType string, success bool) {
	if e.stats == nil {
		return
	}
	if err := e.stats.Record(mutationType, success); err != nil {
		e.logger.Warn("failed to record mutation outcome", zap.Error(err))
	}
}

// rlOrder sorts mutators by observed success rate, with an epsilon chance
// of a uniformly random shuffle to keep exploring.
func (e *Engine) rlOrder() []Mutator {
	out := make([]Mutator, len(e.mutators))
	copy(out, e.mutators)

	if e.rng.Float64() < e.epsilon {
		e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}

	rates, err := e.stats.SuccessRates()
	if err != nil {
		e.logger.Warn("failed to load mutation stats", zap.Error(err))
		return out
	}
	// Stable sort: unscored mutators keep their guardrail-priority order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rates[out[j].Name()] > rates[out[j-1].Name()]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
