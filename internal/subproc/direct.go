package subproc

import (
	"context"

	"aipop/internal/types"
)

// RunFunc is an in-process plugin entry point.
type RunFunc func(ctx context.Context, cfg map[string]interface{}) (*types.AttackResult, error)

// Direct invokes a plugin in-process. It is functionally equivalent to
// Executor but shares the harness's dependencies, so it is only used when
// the caller has already asserted compatibility.
type Direct struct {
	Fn RunFunc
}

// Run calls the wrapped entry point.
func (d *Direct) Run(ctx context.Context, cfg map[string]interface{}) (*types.AttackResult, error) {
	return d.Fn(ctx, cfg)
}
