package attack

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aipop/internal/subproc"
	"aipop/internal/types"
)

// Registry resolves (method, implementation) pairs to concrete plugins.
type Registry struct {
	EnvRoot  string
	Progress subproc.ProgressSink
	Logger   *zap.Logger
}

// NewRegistry builds a plugin registry.
func NewRegistry(envRoot string, progress subproc.ProgressSink, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{EnvRoot: envRoot, Progress: progress, Logger: logger}
}

// Methods lists the canonical method names.
func Methods() []string {
	return []string{MethodAutoDAN, MethodGCG, MethodPAIR}
}

func (r *Registry) legacy(method string) (Plugin, error) {
	switch method {
	case MethodGCG:
		return NewLegacyGCG(r.Logger), nil
	case MethodAutoDAN:
		return NewLegacyAutoDAN(r.Logger), nil
	case MethodPAIR:
		return NewLegacyPAIR(r.Logger), nil
	}
	return nil, fmt.Errorf("unknown attack method %q (available: %v)", method, Methods())
}

// LoadPlugin resolves the concrete plugin. When the official implementation
// reports unavailable, the loader silently falls back to legacy; the
// returned plugin annotates its results with fallback_used and the original
// unavailability message.
func (r *Registry) LoadPlugin(method, implementation string) (Plugin, error) {
	switch implementation {
	case ImplLegacy, "":
		return r.legacy(method)
	case ImplOfficial:
		official := NewOfficial(method, r.EnvRoot, r.Progress, r.Logger)
		if avail := official.CheckAvailable(); !avail.Available {
			r.Logger.Info("official plugin unavailable, falling back to legacy",
				zap.String("method", method), zap.String("reason", avail.Message))
			legacy, err := r.legacy(method)
			if err != nil {
				return nil, err
			}
			return &fallbackPlugin{Plugin: legacy, reason: avail.Message}, nil
		}
		return official, nil
	}
	return nil, fmt.Errorf("unknown implementation %q (want %q or %q)",
		implementation, ImplOfficial, ImplLegacy)
}

// fallbackPlugin wraps the legacy plugin substituted for an unavailable
// official one and stamps provenance into every result.
type fallbackPlugin struct {
	Plugin
	reason string
}

func (f *fallbackPlugin) Run(ctx context.Context, cfg *Config) (*types.AttackResult, error) {
	result, err := f.Plugin.Run(ctx, cfg)
	if err != nil {
		return nil, err
	}
	result.SetMeta("fallback_used", true)
	result.SetMeta("fallback_reason", f.reason)
	return result, nil
}
