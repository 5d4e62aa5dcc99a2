package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aipop/internal/cost"
	"aipop/internal/logging"
	"aipop/internal/mcp"
	"aipop/internal/orchestrator"
	"aipop/internal/ratelimit"
	"aipop/internal/strategy"
)

var (
	ctfMaxTurns   int
	ctfTimeout    time.Duration
	ctfCeilingUSD float64
	ctfMCPServer  string
	ctfJSON       bool
)

var ctfCmd = &cobra.Command{
	Use:   "ctf <strategy>",
	Short: "Run a multi-turn CTF-style attack session",
	Long: `Runs the orchestrator against the configured target with the named
strategy. Available strategies:

  ` + strings.Join(strategy.Names(), "\n  "),
	Args: cobra.ExactArgs(1),
	RunE: runCTF,
}

func init() {
	ctfCmd.Flags().IntVar(&ctfMaxTurns, "max-turns", 0, "turn budget (default 10)")
	ctfCmd.Flags().DurationVar(&ctfTimeout, "timeout", 0, "wall-clock budget for the session")
	ctfCmd.Flags().Float64Var(&ctfCeilingUSD, "cost-ceiling", 0, "abort when session spend exceeds this")
	ctfCmd.Flags().StringVar(&ctfMCPServer, "mcp-server", "", "command for an MCP tool server to attack through")
	ctfCmd.Flags().BoolVar(&ctfJSON, "json", false, "emit the raw result as JSON")
	rootCmd.AddCommand(ctfCmd)
}

func runCTF(cmd *cobra.Command, args []string) error {
	target, err := buildAdapter(cfg.Target)
	if err != nil {
		return err
	}
	attacker, err := buildAdapter(cfg.Attacker)
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

	var tools *mcp.Provider
	if ctfMCPServer != "" {
		mcpLog := logs.Get(logging.CategoryMCP)
		transport := mcp.NewStdioTransport(ctfMCPServer, mcpLog)
		tools = mcp.NewProvider(transport, mcpLog)
		if _, err := tools.Connect(cmd.Context()); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		defer tools.Close()
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Target:         target,
		Attacker:       attacker,
		Objective:      args[0],
		MaxTurns:       ctfMaxTurns,
		Timeout:        ctfTimeout,
		Limiter:        limiter,
		Costs:          costs,
		Tools:          tools,
		CostCeilingUSD: ctfCeilingUSD,
		Logger:         logs.Get(logging.CategoryOrchestrator),
	})
	if err != nil {
		return err
	}

	result, err := orch.Run(cmd.Context())
	if err != nil {
		return err
	}
	_ = audit.Record(logging.AuditEvent{
		Event: logging.AuditAttackComplete, Method: "ctf", Model: target.Model(),
		Success: result.Success, CostUSD: result.Cost,
		Fields: map[string]interface{}{
			"strategy": args[0],
			"turns":    result.Metadata["turns_used"],
			"reason":   result.Metadata["termination_reason"],
		},
	})

	if ctfJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Printf("strategy %s: %v after %v turns (%v, $%.4f)\n",
		args[0], result.Metadata["termination_reason"], result.Metadata["turns_used"],
		result.Metadata["final_state"], result.Cost)
	if result.Success {
		fmt.Printf("\nwinning prompt:\n%s\n", result.BestPrompt())
		fmt.Printf("\nfinal response:\n%v\n", result.Metadata["final_response"])
	}
	return nil
}
