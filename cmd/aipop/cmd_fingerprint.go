package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aipop/internal/fingerprint"
	"aipop/internal/mutation"
)

var fingerprintJSON bool

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Probe the target and identify its guardrail family",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := buildAdapter(cfg.Target)
		if err != nil {
			return err
		}

		result, probes, err := fingerprint.New(logger).Run(cmd.Context(), target)
		if err != nil {
			return err
		}

		if fingerprintJSON {
			return json.NewEncoder(os.Stdout).Encode(struct {
				Result interface{} `json:"result"`
				Probes interface{} `json:"probes"`
			}{result, probes})
		}

		fmt.Printf("guardrail: %s (confidence %.2f)\n", result.Guardrail, result.Confidence)
		for _, e := range result.Evidence {
			fmt.Printf("  evidence: %s\n", e)
		}
		for _, s := range result.BypassSuggestions {
			fmt.Printf("  suggested bypass: %s\n", s)
		}

		engine := mutation.NewEngine(nil, logger)
		engine.SetGuardrailOptimization(result.Guardrail)
		fmt.Printf("mutator order: %v\n", engine.MutatorOrder())
		return nil
	},
}

func init() {
	fingerprintCmd.Flags().BoolVar(&fingerprintJSON, "json", false, "emit probes and result as JSON")
	rootCmd.AddCommand(fingerprintCmd)
}
