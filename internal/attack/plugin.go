package attack

import (
	"context"

	"aipop/internal/types"
)

// Availability is a plugin's preflight verdict. The message for an
// unavailable plugin enumerates remediation steps and names the fallback.
type Availability struct {
	Available bool
	Message   string
}

// Plugin is one jailbreak method implementation.
type Plugin interface {
	// Name returns the stable lowercase identifier, e.g. "pair".
	Name() string
	// CheckAvailable runs the preflight. It must never call the target.
	CheckAvailable() Availability
	// EstimateCost predicts the run cost from config fields alone.
	EstimateCost(cfg *Config) types.CostEstimate
	// Run executes the attack.
	Run(ctx context.Context, cfg *Config) (*types.AttackResult, error)
}

// Canonical method names.
const (
	MethodGCG     = "gcg"
	MethodAutoDAN = "autodan"
	MethodPAIR    = "pair"
)

// Implementation tags.
const (
	ImplOfficial = "official"
	ImplLegacy   = "legacy"
)
