// Package strategy holds the attack state machine and the registry of
// built-in multi-turn strategies. The machine is pure bookkeeping: the
// planner decides what to say, the parser decides what was heard, and the
// machine only tracks where the conversation stands and what it has learned.
package strategy

import (
	"fmt"
	"sort"

	"aipop/internal/types"
)

// Terminal states, always reachable from anywhere.
const (
	StateSuccess = "SUCCESS"
	StateFailed  = "FAILED"
)

// Common non-terminal states shared across the built-in strategies.
const (
	StateRecon              = "RECONNAISSANCE"
	StateDirectExtraction   = "DIRECT_EXTRACTION"
	StateEncodingBypass     = "ENCODING_BYPASS"
	StateRolePlay           = "ROLE_PLAY"
	StateGradualExtraction  = "GRADUAL_EXTRACTION"
	StateToolDiscovery      = "TOOL_DISCOVERY"
	StateParameterInjection = "PARAMETER_INJECTION"
	StateToolChaining       = "TOOL_CHAINING"
	StateContextStuffing    = "CONTEXT_STUFFING"
	StateInstructionSmuggle = "INSTRUCTION_SMUGGLE"
	StatePoisonRetrieval    = "POISON_RETRIEVAL"
	StateTriggerRetrieval   = "TRIGGER_RETRIEVAL"
)

// Suggestion is a ranked next-state candidate.
type Suggestion struct {
	State      string
	Confidence float64
}

// KnowledgeBase accumulates what the attack has learned about the target.
// It only grows: tools and hints are sets, counters never decrease.
type KnowledgeBase struct {
	Tools            map[string]struct{}
	Hints            map[string]struct{}
	CapitalizedWords map[string]struct{}
	DenialCount      int
	PartialCount     int
	Extra            map[string]interface{}
}

// NewKnowledgeBase returns an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		Tools:            make(map[string]struct{}),
		Hints:            make(map[string]struct{}),
		CapitalizedWords: make(map[string]struct{}),
		Extra:            make(map[string]interface{}),
	}
}

// ToolList returns the discovered tool names, sorted.
func (kb *KnowledgeBase) ToolList() []string {
	out := make([]string, 0, len(kb.Tools))
	for t := range kb.Tools {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// HintList returns the accumulated hints, sorted.
func (kb *KnowledgeBase) HintList() []string {
	out := make([]string, 0, len(kb.Hints))
	for h := range kb.Hints {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Machine tracks the state of one multi-turn attack.
type Machine struct {
	Strategy string

	current     string
	history     []string
	transitions map[string][]string
	visits      map[string]int
	kb          *KnowledgeBase
}

// NewMachine builds a machine from a strategy's transition graph, starting
// at initial.
func NewMachine(strategyName, initial string, transitions map[string][]string) *Machine {
	m := &Machine{
		Strategy:    strategyName,
		current:     initial,
		history:     []string{initial},
		transitions: transitions,
		visits:      map[string]int{initial: 1},
		kb:          NewKnowledgeBase(),
	}
	return m
}

// Current returns the current state.
func (m *Machine) Current() string { return m.current }

// History returns the ordered state history including the current state.
func (m *Machine) History() []string {
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

// Knowledge returns the machine's knowledge base.
func (m *Machine) Knowledge() *KnowledgeBase { return m.kb }

// InTerminal reports whether the machine has reached SUCCESS or FAILED.
func (m *Machine) InTerminal() bool {
	return m.current == StateSuccess || m.current == StateFailed
}

// CanTransition reports whether current -> next is permitted. Terminals are
// always reachable.
func (m *Machine) CanTransition(next string) bool {
	if next == StateSuccess || next == StateFailed {
		return true
	}
	for _, s := range m.transitions[m.current] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves to next if the graph permits it and returns whether the
// transition was accepted. The reason is recorded nowhere but validated for
// non-emptiness to keep call sites honest.
func (m *Machine) TransitionTo(next, reason string) bool {
	if reason == "" {
		reason = "unspecified"
	}
	_ = reason
	if !m.CanTransition(next) {
		return false
	}
	m.current = next
	m.history = append(m.history, next)
	m.visits[next]++
	return true
}

// UpdateKnowledge merges a parsed response into the knowledge base. The merge
// is monotone: nothing is ever removed and counters only increase.
func (m *Machine) UpdateKnowledge(parsed *types.ParsedResponse) {
	if parsed == nil {
		return
	}
	for _, t := range parsed.ToolsDetected {
		m.kb.Tools[t] = struct{}{}
	}
	for _, h := range parsed.Hints {
		m.kb.Hints[h] = struct{}{}
	}
	for _, w := range parsed.CapitalizedWords {
		m.kb.CapitalizedWords[w] = struct{}{}
	}
	if parsed.DenialDetected {
		m.kb.DenialCount++
	}
	if parsed.PartialSuccess {
		m.kb.PartialCount++
	}
}

// SuggestNextStates ranks candidate successors for the parsed response.
// Success indicators dominate; otherwise tool, denial, and partial cues
// raise the confidence of matching state families.
func (m *Machine) SuggestNextStates(parsed *types.ParsedResponse) []Suggestion {
	if parsed != nil && len(parsed.SuccessIndicators) > 0 {
		return []Suggestion{{State: StateSuccess, Confidence: 1.0}}
	}

	candidates := append([]string{}, m.transitions[m.current]...)
	scored := make([]Suggestion, 0, len(candidates)+1)
	for _, c := range candidates {
		conf := 0.3
		if parsed != nil {
			switch {
			case len(parsed.ToolsDetected) > 0 && isToolState(c):
				conf = 0.8
			case parsed.DenialDetected && isBypassState(c):
				conf = 0.7
			case parsed.PartialSuccess && c == StateGradualExtraction:
				conf = 0.75
			}
		}
		scored = append(scored, Suggestion{State: c, Confidence: conf})
	}
	if parsed != nil && parsed.DenialDetected {
		scored = append(scored, Suggestion{State: StateFailed, Confidence: 0.2})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})
	return scored
}

// ShouldGiveUp reports whether the attack has stalled: the denial counter
// reached maxDenials, or the current state was visited maxSameState times.
func (m *Machine) ShouldGiveUp(maxDenials, maxSameState int) bool {
	if maxDenials > 0 && m.kb.DenialCount >= maxDenials {
		return true
	}
	if maxSameState > 0 && m.visits[m.current] >= maxSameState {
		return true
	}
	return false
}

// Summary renders a compact one-line view for logs and planner context.
func (m *Machine) Summary() string {
	return fmt.Sprintf("strategy=%s state=%s turns=%d tools=%d denials=%d partials=%d",
		m.Strategy, m.current, len(m.history), len(m.kb.Tools), m.kb.DenialCount, m.kb.PartialCount)
}

func isToolState(s string) bool {
	switch s {
	case StateToolDiscovery, StateParameterInjection, StateToolChaining:
		return true
	}
	return false
}

func isBypassState(s string) bool {
	switch s {
	case StateEncodingBypass, StateRolePlay, StateInstructionSmuggle, StateContextStuffing:
		return true
	}
	return false
}
