package attack

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"aipop/internal/cache"
	"aipop/internal/types"
)

// Runner executes attacks behind the attack cache: a fresh cached result
// short-circuits without loading a plugin or touching the target.
type Runner struct {
	Registry *Registry
	Cache    *cache.AttackCache
	Logger   *zap.Logger
}

// NewRunner builds a cache-fronted attack runner. A nil cache disables
// memoization.
func NewRunner(registry *Registry, attackCache *cache.AttackCache, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Registry: registry, Cache: attackCache, Logger: logger}
}

// Run resolves the plugin for (method, implementation) and executes it,
// consulting the cache on the way in and offering the result to the cache on
// the way out. Cached results carry cache_hit=true in their metadata.
func (r *Runner) Run(ctx context.Context, method, implementation string, options map[string]interface{}) (*types.AttackResult, error) {
	cfg, err := ParseConfig(options)
	if err != nil {
		return nil, err
	}
	params := cfg.CacheParams(method)
	model := cfg.Model()

	if r.Cache != nil {
		cached, err := r.Cache.Get(method, cfg.Prompt, model, implementation, params)
		if err == nil {
			r.Logger.Debug("attack cache hit",
				zap.String("method", method), zap.String("implementation", implementation))
			result := cached.Result
			result.SetMeta("cache_hit", true)
			result.SetMeta("cached_at", cached.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
			return &result, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			r.Logger.Warn("attack cache read failed", zap.Error(err))
		}
	}

	plugin, err := r.Registry.LoadPlugin(method, implementation)
	if err != nil {
		return nil, err
	}
	result, err := plugin.Run(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		if err := r.Cache.Put(method, cfg.Prompt, model, implementation, params, result, 0); err != nil {
			r.Logger.Warn("attack cache write failed", zap.Error(err))
		}
	}
	return result, nil
}
