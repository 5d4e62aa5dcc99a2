package verifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aipop/internal/adapter"
	"aipop/internal/cache"
	"aipop/internal/classify"
	"aipop/internal/cost"
	"aipop/internal/judge"
	"aipop/internal/orchestrator"
	"aipop/internal/ratelimit"
	"aipop/internal/score"
	"aipop/internal/stats"
	"aipop/internal/types"
)

// CategoryReport is the per-category slice of a verification run.
type CategoryReport struct {
	Category  string         `json:"category"`
	Trials    int            `json:"trials"`
	Successes int            `json:"successes"`
	Errors    int            `json:"errors"`
	ASR       stats.Interval `json:"asr"`
}

// JudgeInfo surfaces what judged the run and what it cannot see.
type JudgeInfo struct {
	Model       string `json:"model,omitempty"`
	Limitations string `json:"limitations,omitempty"`
}

// Report is the outcome of one verification run.
type Report struct {
	SuiteID      string           `json:"suite_id"`
	SampledCases int              `json:"sampled_cases"`
	Aggregate    stats.Interval   `json:"aggregate_asr"`
	Categories   []CategoryReport `json:"categories"`
	Results      []types.TestResult `json:"results"`
	CacheHits    int              `json:"cache_hits"`
	CacheMisses  int              `json:"cache_misses"`
	CacheHitRate float64          `json:"cache_hit_rate"`
	TotalCostUSD float64          `json:"total_cost_usd"`
	Judge        JudgeInfo        `json:"judge"`
	Elapsed      float64          `json:"elapsed_seconds"`
}

// Options configures a verification run.
type Options struct {
	Target adapter.Adapter
	Judge  judge.Judge

	// SampleRate is the stratified sampling fraction; 0 means the default
	// 30%, >= 1 runs everything.
	SampleRate float64
	// Parallel bounds concurrent cases. Default 1: safe around
	// rate-limited APIs.
	Parallel int
	// Confidence level for ASR intervals, default 0.95.
	Confidence float64
	// Threshold passed through to the judge, default judge.DefaultThreshold.
	Threshold float64

	// MultiTurnMode aggregates per-turn verdicts for orchestrated cases.
	MultiTurnMode score.Mode

	// Responses, when set, memoizes (prompt, model) pairs.
	Responses *cache.ResponseCache
	// Results, when set, persists every case outcome for later inspection.
	Results *cache.ResultStore
	// Limiter, when set, gates each adapter call.
	Limiter *ratelimit.Limiter
	// Costs, when set, meters every call.
	Costs *cost.Tracker

	// NewOrchestrator, when set, builds an orchestrator for cases that
	// carry an objective; those cases run multi-turn.
	NewOrchestrator func(tc types.TestCase) (*orchestrator.Orchestrator, error)

	// OnResult, when set, is called after each case completes. Calls are
	// serialized.
	OnResult func(types.TestResult)

	// Seed pins sampling for reproducible runs; 0 means random.
	Seed int64

	Logger *zap.Logger
}

// Verifier runs suites.
type Verifier struct {
	opts Options
}

// New builds a verifier. Target and Judge are required.
func New(opts Options) (*Verifier, error) {
	if opts.Target == nil {
		return nil, errors.New("verifier requires a target adapter")
	}
	if opts.Judge == nil {
		opts.Judge = judge.NewKeywordJudge()
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = 0.95
	}
	if opts.Threshold <= 0 {
		opts.Threshold = judge.DefaultThreshold
	}
	if opts.MultiTurnMode == "" {
		opts.MultiTurnMode = score.ModeAny
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Verifier{opts: opts}, nil
}

// Run samples the suite and verifies every sampled case.
func (v *Verifier) Run(ctx context.Context, suite *Suite) (*Report, error) {
	start := time.Now()

	var rng *rand.Rand
	if v.opts.Seed != 0 {
		rng = rand.New(rand.NewSource(v.opts.Seed))
	}
	cases := suite.Sample(v.opts.SampleRate, rng)
	v.opts.Logger.Info("verification starting",
		zap.String("suite", suite.ID),
		zap.Int("sampled", len(cases)),
		zap.Int("total", len(suite.Cases)),
		zap.Int("parallel", v.opts.Parallel))

	results := make([]types.TestResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Parallel)
	var mu sync.Mutex

	for i, tc := range cases {
		i, tc := i, tc
		g.Go(func() error {
			res := v.runCase(gctx, tc)
			mu.Lock()
			results[i] = res
			if v.opts.OnResult != nil {
				v.opts.OnResult(res)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if v.opts.Results != nil {
		for _, res := range results {
			if err := v.opts.Results.Record(suite.ID, res); err != nil {
				v.opts.Logger.Warn("result store write failed", zap.Error(err))
			}
		}
	}

	report := v.assemble(suite, cases, results)
	report.Elapsed = time.Since(start).Seconds()
	return report, nil
}

// runCase executes one case. Infrastructure errors become error-status
// results; anything unclassified propagates as a panic-free error result
// with its message preserved.
func (v *Verifier) runCase(ctx context.Context, tc types.TestCase) types.TestResult {
	result := types.TestResult{
		CaseID:    tc.ID,
		Category:  types.CategorySecurityFinding,
		Status:    types.StatusPassed,
		StartedAt: time.Now(),
		Adapter:   v.opts.Target.Name(),
		Model:     v.opts.Target.Model(),
	}
	defer func() {
		result.FinishedAt = time.Now()
	}()

	if tc.Objective != "" && v.opts.NewOrchestrator != nil {
		v.runMultiTurn(ctx, tc, &result)
		return result
	}
	v.runSingleTurn(ctx, tc, &result)
	return result
}

func (v *Verifier) runSingleTurn(ctx context.Context, tc types.TestCase, result *types.TestResult) {
	response, err := v.invoke(ctx, tc.Prompt)
	if err != nil {
		v.classifyError(err, result)
		return
	}
	result.Prompt = tc.Prompt
	result.Response = response

	j, err := v.opts.Judge.ScoreResponse(ctx, tc.Prompt, response, v.opts.Threshold)
	if err != nil {
		v.classifyError(err, result)
		return
	}
	if j.IsJailbreak {
		result.AddFinding(types.Finding{
			RuleID:      "asr.jailbreak",
			Title:       "target complied with adversarial prompt",
			Description: j.Reasoning,
			Severity:    types.SeverityHigh,
			Confidence:  j.Confidence,
		})
	}
}

func (v *Verifier) runMultiTurn(ctx context.Context, tc types.TestCase, result *types.TestResult) {
	orch, err := v.opts.NewOrchestrator(tc)
	if err != nil {
		v.classifyError(err, result)
		return
	}
	defer orch.Reset()

	attackRes, err := orch.Run(ctx)
	if err != nil {
		v.classifyError(err, result)
		return
	}

	turns := orch.Conversation().AssistantTexts()
	verdicts := make([]types.Judgment, 0, len(turns))
	for _, turn := range turns {
		j, err := v.opts.Judge.ScoreResponse(ctx, tc.Prompt, turn, v.opts.Threshold)
		if err != nil {
			v.classifyError(err, result)
			return
		}
		verdicts = append(verdicts, j)
	}
	if len(turns) == 0 {
		result.Status = types.StatusSkipped
		return
	}
	result.Response = turns[len(turns)-1]

	folded, err := score.Aggregate(verdicts, v.opts.MultiTurnMode)
	if err != nil {
		v.classifyError(err, result)
		return
	}
	if folded.Success || attackRes.Success {
		confidence := folded.BestScore / 10
		if attackRes.Success && confidence < 0.8 {
			confidence = 0.8
		}
		result.AddFinding(types.Finding{
			RuleID:      "asr.multi_turn",
			Title:       "objective met in multi-turn attack",
			Description: fmt.Sprintf("objective %q, %d turns, %d jailbroken", tc.Objective, folded.Turns, folded.Jailbroken),
			Severity:    types.SeverityHigh,
			Confidence:  confidence,
		})
	}
}

// invoke routes through the response cache and the rate limiter.
func (v *Verifier) invoke(ctx context.Context, prompt string) (string, error) {
	model := v.opts.Target.Model()
	if v.opts.Responses != nil {
		if cached, err := v.opts.Responses.Get(prompt, model); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			v.opts.Logger.Warn("response cache read failed", zap.Error(err))
		}
	}
	if v.opts.Limiter != nil {
		if err := v.opts.Limiter.Acquire(ctx); err != nil {
			return "", err
		}
	}
	resp, err := v.opts.Target.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	if v.opts.Costs != nil {
		v.opts.Costs.Record("verify", model, len(prompt)/4, len(resp.Text)/4)
	}
	if v.opts.Responses != nil {
		if err := v.opts.Responses.Put(prompt, model, resp.Text); err != nil {
			v.opts.Logger.Warn("response cache write failed", zap.Error(err))
		}
	}
	return resp.Text, nil
}

func (v *Verifier) classifyError(err error, result *types.TestResult) {
	if result.Metadata == nil {
		result.Metadata = make(map[string]interface{})
	}
	if c, ok := classify.Classify(err); ok {
		result.Status = c.Status
		result.Category = c.Category
		result.Metadata["error_name"] = c.ErrorName
		result.Metadata["error"] = err.Error()
		return
	}
	result.Status = types.StatusError
	result.Metadata["error"] = err.Error()
}

func (v *Verifier) assemble(suite *Suite, cases []types.TestCase, results []types.TestResult) *Report {
	report := &Report{
		SuiteID:      suite.ID,
		SampledCases: len(cases),
		Results:      results,
	}

	type bucket struct {
		trials, successes, errors int
	}
	buckets := make(map[string]*bucket)
	totalTrials, totalSuccesses := 0, 0
	for i, res := range results {
		cat := cases[i].Category
		b := buckets[cat]
		if b == nil {
			b = &bucket{}
			buckets[cat] = b
		}
		if res.Category == types.CategoryInfrastructureError || res.Status == types.StatusError {
			b.errors++
			continue
		}
		b.trials++
		totalTrials++
		if res.Status == types.StatusFailed {
			// A failed security test means the attack succeeded.
			b.successes++
			totalSuccesses++
		}
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := buckets[name]
		cr := CategoryReport{Category: name, Trials: b.trials, Successes: b.successes, Errors: b.errors}
		if b.trials > 0 {
			if iv, err := stats.ConfidenceInterval(b.successes, b.trials, stats.MethodAuto, v.opts.Confidence); err == nil {
				cr.ASR = iv
			}
		}
		report.Categories = append(report.Categories, cr)
	}
	if totalTrials > 0 {
		if iv, err := stats.ConfidenceInterval(totalSuccesses, totalTrials, stats.MethodAuto, v.opts.Confidence); err == nil {
			report.Aggregate = iv
		}
	}

	if v.opts.Responses != nil {
		hits, misses, rate := v.opts.Responses.HitRate()
		report.CacheHits, report.CacheMisses, report.CacheHitRate = hits, misses, rate
	}
	if v.opts.Costs != nil {
		report.TotalCostUSD = v.opts.Costs.Total()
	}
	report.Judge.Model = v.opts.Target.Model()
	if lim, ok := v.opts.Judge.(judge.Limitations); ok {
		report.Judge.Limitations = lim.GetLimitationsText()
	}
	if mj, ok := v.opts.Judge.(*judge.ModelJudge); ok {
		report.Judge.Model = mj.ModelName()
	}
	return report
}
