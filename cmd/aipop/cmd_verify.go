package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"aipop/internal/cache"
	"aipop/internal/cost"
	"aipop/internal/judge"
	"aipop/internal/logging"
	"aipop/internal/orchestrator"
	"aipop/internal/ratelimit"
	"aipop/internal/types"
	"aipop/internal/verifier"
)

var (
	verifySampleRate float64
	verifyParallel   int
	verifySeed       int64
	verifyJSON       bool
	verifyOutput     string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <suite.yaml>",
	Short: "Run a test suite and report attack success rates",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().Float64Var(&verifySampleRate, "sample-rate", 0, "stratified sample fraction (default from config)")
	verifyCmd.Flags().IntVar(&verifyParallel, "parallel", 0, "concurrent cases (default from config)")
	verifyCmd.Flags().Int64Var(&verifySeed, "seed", 0, "sampling seed for reproducible runs")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "emit the full report as JSON")
	verifyCmd.Flags().StringVar(&verifyOutput, "output", "", "write the JSON report to a file")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	suite, err := verifier.LoadSuite(args[0])
	if err != nil {
		return err
	}

	target, err := buildAdapter(cfg.Target)
	if err != nil {
		return err
	}
	attacker, err := buildAdapter(cfg.Attacker)
	if err != nil {
		return err
	}

	responses, err := cache.NewResponseCache(cfg.Cache.ResponseDB)
	if err != nil {
		return err
	}
	results, err := cache.NewResultStore(cfg.Cache.ResponseDB)
	if err != nil {
		return err
	}
	var limiter *ratelimit.Limiter
	if cfg.Limits.RequestsPerMinute > 0 {
		limiter, err = ratelimit.New(float64(cfg.Limits.RequestsPerMinute), cfg.Limits.Burst)
		if err != nil {
			return err
		}
	}
	costs := cost.NewTracker(cfg.Limits.BudgetUSD, logs.Get(logging.CategoryCost))

	var j judge.Judge
	switch cfg.Judge.Mode {
	case "model":
		// The attacker endpoint doubles as the evaluator.
		model := cfg.Judge.Model
		if model == "" {
			model = attacker.Model()
		}
		j = judge.NewModelJudge(attacker, model)
	default:
		j = judge.NewKeywordJudge()
	}

	sampleRate := verifySampleRate
	if sampleRate == 0 {
		sampleRate = cfg.Verify.SampleRate
	}
	parallel := verifyParallel
	if parallel == 0 {
		parallel = cfg.Verify.Parallel
	}
	seed := verifySeed
	if seed == 0 {
		seed = cfg.Verify.Seed
	}

	var bar *progressbar.ProgressBar
	v, err := verifier.New(verifier.Options{
		Target:     target,
		Judge:      j,
		SampleRate: sampleRate,
		Parallel:   parallel,
		Confidence: cfg.Verify.Confidence,
		Threshold:  cfg.Judge.Threshold,
		Responses:  responses,
		Results:    results,
		Limiter:    limiter,
		Costs:      costs,
		Seed:       seed,
		Logger:     logs.Get(logging.CategoryVerifier),
		NewOrchestrator: func(tc types.TestCase) (*orchestrator.Orchestrator, error) {
			return orchestrator.New(orchestrator.Options{
				Target:    target,
				Attacker:  attacker,
				Objective: tc.Objective,
				MaxTurns:  tc.MaxTurns,
				Limiter:   limiter,
				Costs:     costs,
				Logger:    logs.Get(logging.CategoryOrchestrator),
			})
		},
		OnResult: func(res types.TestResult) {
			if bar != nil {
				_ = bar.Add(1)
			}
			_ = audit.Record(logging.AuditEvent{
				Event: logging.AuditVerifyCase, CaseID: res.CaseID,
				Model: res.Model, Success: res.Status == types.StatusFailed,
			})
		},
	})
	if err != nil {
		return err
	}

	sampled := len(suite.Sample(sampleRate, nil))
	bar = progressbar.NewOptions(sampled,
		progressbar.OptionSetDescription("verifying "+suite.ID),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	_ = audit.Record(logging.AuditEvent{Event: logging.AuditVerifyStart, Fields: map[string]interface{}{"suite": suite.ID}})
	start := time.Now()
	report, err := v.Run(cmd.Context(), suite)
	_ = bar.Finish()
	if err != nil {
		return err
	}
	_ = audit.Record(logging.AuditEvent{
		Event: logging.AuditVerifyComplete, Success: true,
		DurationMs: time.Since(start).Milliseconds(), CostUSD: report.TotalCostUSD,
		Fields: map[string]interface{}{"suite": suite.ID, "asr": report.Aggregate.PointEstimate},
	})

	if verifyOutput != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(verifyOutput, data, 0644); err != nil {
			return err
		}
	}
	if verifyJSON {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	printReport(report)
	return nil
}

func printReport(r *verifier.Report) {
	fmt.Printf("suite %s: %d cases sampled, %.1fs, $%.4f\n",
		r.SuiteID, r.SampledCases, r.Elapsed, r.TotalCostUSD)
	fmt.Printf("aggregate ASR %.1f%% [%.1f%%, %.1f%%] (%s)\n",
		r.Aggregate.PointEstimate*100, r.Aggregate.Lower*100, r.Aggregate.Upper*100,
		r.Aggregate.MethodUsed)
	if r.Aggregate.Warning != "" {
		fmt.Printf("  warning: %s\n", r.Aggregate.Warning)
	}
	for _, c := range r.Categories {
		fmt.Printf("  %-20s %d/%d succeeded", c.Category, c.Successes, c.Trials)
		if c.Trials > 0 {
			fmt.Printf(", ASR %.1f%% [%.1f%%, %.1f%%]", c.ASR.PointEstimate*100, c.ASR.Lower*100, c.ASR.Upper*100)
		}
		if c.Errors > 0 {
			fmt.Printf(", %d errors", c.Errors)
		}
		fmt.Println()
	}
	if r.CacheHits+r.CacheMisses > 0 {
		fmt.Printf("response cache: %d hits, %d misses (%.0f%%)\n",
			r.CacheHits, r.CacheMisses, r.CacheHitRate*100)
	}
	if r.Judge.Limitations != "" {
		fmt.Printf("judge: %s\n", r.Judge.Limitations)
	}
}
