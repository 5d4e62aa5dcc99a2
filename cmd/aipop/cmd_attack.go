package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"aipop/internal/attack"
	"aipop/internal/cache"
	"aipop/internal/logging"
)

var (
	attackPrompt   string
	attackTarget   string
	attackImpl     string
	attackOptions  []string
	attackJSON     bool
	attackEstimate bool
	attackNoCache  bool
)

var attackCmd = &cobra.Command{
	Use:     "attack <method>",
	Aliases: []string{"run"},
	Short:   "Run a single jailbreak attack (gcg, autodan, pair)",
	Args:    cobra.ExactArgs(1),
	RunE:    runAttack,
}

func init() {
	attackCmd.Flags().StringVarP(&attackPrompt, "prompt", "p", "", "attack objective prompt (required)")
	attackCmd.Flags().StringVar(&attackTarget, "target", "", "attack target string (default \"Sure, here is\")")
	attackCmd.Flags().StringVar(&attackImpl, "impl", "", "implementation: official or legacy (default from config)")
	attackCmd.Flags().StringArrayVarP(&attackOptions, "option", "o", nil, "method option as key=value, repeatable")
	attackCmd.Flags().BoolVar(&attackJSON, "json", false, "emit the raw result as JSON")
	attackCmd.Flags().BoolVar(&attackEstimate, "estimate", false, "print the cost estimate and exit")
	attackCmd.Flags().BoolVar(&attackNoCache, "no-cache", false, "bypass the attack cache")
	_ = attackCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(attackCmd)
}

func runAttack(cmd *cobra.Command, args []string) error {
	method := args[0]
	impl := attackImpl
	if impl == "" {
		impl = cfg.Attack.Implementation
	}

	target, err := buildAdapter(cfg.Target)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("running "+method),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	attackLog := logs.Get(logging.CategoryAttack)
	registry := attack.NewRegistry(cfg.Attack.EnvRoot, func(line string) {
		bar.Describe(line)
		_ = bar.Add(1)
	}, attackLog)

	var attackCache *cache.AttackCache
	if !attackNoCache {
		attackCache, err = cache.NewAttackCache(cfg.Cache.AttackDB)
		if err != nil {
			return err
		}
	}
	runner := attack.NewRunner(registry, attackCache, attackLog)

	options := map[string]interface{}{
		"prompt":        attackPrompt,
		"adapter":       target,
		"adapter_model": target.Model(),
	}
	if attackTarget != "" {
		options["target"] = attackTarget
	}
	if method == "pair" && cfg.Attacker.Model != "" {
		options["attacker_model"] = cfg.Attacker.Model
	}
	for _, kv := range attackOptions {
		k, v, err := splitOption(kv)
		if err != nil {
			return err
		}
		options[k] = v
	}

	if attackEstimate {
		return printEstimate(method, impl, options)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.AttackTimeout())
	defer cancel()

	_ = audit.Record(logging.AuditEvent{
		Event: logging.AuditAttackStart, Method: method, Implementation: impl,
		Model: target.Model(),
	})
	start := time.Now()
	result, err := runner.Run(ctx, method, impl, options)
	_ = bar.Finish()
	if err != nil {
		_ = audit.Record(logging.AuditEvent{
			Event: logging.AuditAttackError, Method: method, Implementation: impl,
			Error: err.Error(), DurationMs: time.Since(start).Milliseconds(),
		})
		return err
	}
	_ = audit.Record(logging.AuditEvent{
		Event: logging.AuditAttackComplete, Method: method, Implementation: impl,
		Model: target.Model(), Success: result.Success,
		DurationMs: time.Since(start).Milliseconds(), CostUSD: result.Cost,
	})

	if attackJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	if result.Success {
		fmt.Printf("jailbreak found after %d queries ($%.4f)\n", result.NumQueries, result.Cost)
		fmt.Printf("\n%s\n", result.BestPrompt())
	} else {
		fmt.Printf("no jailbreak after %d queries ($%.4f)\n", result.NumQueries, result.Cost)
	}
	if v, ok := result.Metadata["fallback_used"]; ok && v == true {
		fmt.Fprintf(os.Stderr, "note: fell back to the legacy implementation: %v\n",
			result.Metadata["fallback_reason"])
	}
	if v, ok := result.Metadata["cache_hit"]; ok && v == true {
		fmt.Fprintf(os.Stderr, "note: served from cache (cached %v)\n", result.Metadata["cached_at"])
	}
	return nil
}

func printEstimate(method, impl string, options map[string]interface{}) error {
	plugin, err := attack.NewRegistry(cfg.Attack.EnvRoot, nil, logger).LoadPlugin(method, impl)
	if err != nil {
		return err
	}
	pcfg, err := attack.ParseConfig(options)
	if err != nil {
		return err
	}
	est := plugin.EstimateCost(pcfg)
	fmt.Printf("%s/%s: ~%d queries, ~$%.4f (%s confidence)\n",
		method, impl, est.NumQueries, est.TotalUSD, est.Confidence)
	for _, caveat := range est.Caveats {
		fmt.Printf("  caveat: %s\n", caveat)
	}
	return nil
}

// splitOption parses key=value, coercing numeric values so counts like
// num_streams arrive as ints.
func splitOption(kv string) (string, interface{}, error) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", nil, fmt.Errorf("option %q is not key=value", kv)
	}
	key, raw := kv[:i], kv[i+1:]
	if n, err := strconv.Atoi(raw); err == nil {
		return key, n, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, f, nil
	}
	return key, raw, nil
}
