package attack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"aipop/internal/subproc"
	"aipop/internal/types"
)

// EnvRootDefault is where per-plugin interpreter environments live unless
// overridden.
const EnvRootDefault = ".aipop/envs"

// officialTimeout bounds a research-reference run. The official variants
// load model weights and can legitimately take minutes.
const officialTimeout = 30 * time.Minute

// Official wraps a research reference implementation executed in its own
// interpreter environment.
type Official struct {
	method  string
	envRoot string
	exec    *subproc.Executor
	logger  *zap.Logger
}

// NewOfficial builds the official wrapper for method. envRoot empty selects
// EnvRootDefault. The progress sink receives the child's stderr ticks.
func NewOfficial(method, envRoot string, progress subproc.ProgressSink, logger *zap.Logger) *Official {
	if envRoot == "" {
		envRoot = EnvRootDefault
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Official{method: method, envRoot: envRoot, logger: logger}
	o.exec = &subproc.Executor{
		Interpreter: o.interpreterPath(),
		Runner:      o.runnerPath(),
		Timeout:     officialTimeout,
		Progress:    progress,
		Logger:      logger,
	}
	return o
}

func (o *Official) interpreterPath() string {
	return filepath.Join(o.envRoot, o.method, "bin", "python")
}

func (o *Official) runnerPath() string {
	return filepath.Join(o.envRoot, o.method, "runner.py")
}

// Name implements Plugin.
func (o *Official) Name() string { return o.method }

// CheckAvailable implements Plugin. It only stats the environment; it never
// calls the target.
func (o *Official) CheckAvailable() Availability {
	missing := ""
	if _, err := os.Stat(o.interpreterPath()); err != nil {
		missing = "interpreter " + o.interpreterPath()
	} else if _, err := os.Stat(o.runnerPath()); err != nil {
		missing = "runner " + o.runnerPath()
	}
	if missing == "" {
		return Availability{Available: true}
	}
	return Availability{
		Available: false,
		Message: fmt.Sprintf(
			"official %s environment is missing %s. To install it: "+
				"run `aipop setup %s`, or create the environment manually under %s. "+
				"Falling back to the legacy %s implementation.",
			o.method, missing, o.method, filepath.Join(o.envRoot, o.method), o.method),
	}
}

// EstimateCost implements Plugin. Official runs are dominated by local GPU
// time, not API billing.
func (o *Official) EstimateCost(cfg *Config) types.CostEstimate {
	est := types.CostEstimate{
		Confidence: types.ConfidenceLow,
		Caveats:    []string{"official implementation runs locally; API cost is zero but GPU time is not"},
	}
	switch o.method {
	case MethodPAIR:
		est.NumQueries = orDefault(cfg.NumStreams, defaultNumStreams) *
			orDefault(cfg.IterationsPerStream, defaultIterationsPerStream)
		est.TotalUSD = float64(est.NumQueries) * 0.002
		est.Confidence = types.ConfidenceMedium
	case MethodGCG:
		est.NumQueries = orDefault(cfg.MaxIterations, defaultGCGIterations)
	case MethodAutoDAN:
		est.NumQueries = orDefault(cfg.PopulationSize, defaultPopulationSize) *
			orDefault(cfg.NumGenerations, defaultNumGenerations)
	}
	return est
}

// Run implements Plugin.
func (o *Official) Run(ctx context.Context, cfg *Config) (*types.AttackResult, error) {
	payload := map[string]interface{}{
		"prompt": cfg.Prompt,
		"target": cfg.Target,
	}
	if cfg.AdapterModel != "" {
		payload["adapter_model"] = cfg.AdapterModel
	}
	switch o.method {
	case MethodPAIR:
		payload["num_streams"] = orDefault(cfg.NumStreams, defaultNumStreams)
		payload["iterations_per_stream"] = orDefault(cfg.IterationsPerStream, defaultIterationsPerStream)
		if cfg.AttackerModel != "" {
			payload["attacker_model"] = cfg.AttackerModel
		}
		if cfg.JudgeModel != "" {
			payload["judge_model"] = cfg.JudgeModel
		}
	case MethodGCG:
		payload["max_iterations"] = orDefault(cfg.MaxIterations, defaultGCGIterations)
		payload["batch_size"] = orDefault(cfg.BatchSize, defaultGCGBatchSize)
		payload["top_k"] = orDefault(cfg.TopK, defaultGCGTopK)
		if cfg.Device != "" {
			payload["device"] = cfg.Device
		}
	case MethodAutoDAN:
		payload["population_size"] = orDefault(cfg.PopulationSize, defaultPopulationSize)
		payload["num_generations"] = orDefault(cfg.NumGenerations, defaultNumGenerations)
		if cfg.MutatorModel != "" {
			payload["mutator_model"] = cfg.MutatorModel
		}
	}
	for k, v := range cfg.Extras {
		payload[k] = v
	}

	o.logger.Info("running official plugin",
		zap.String("method", o.method), zap.String("env", o.envRoot))
	return o.exec.Run(ctx, payload)
}
