// Command aipop is the red-team harness CLI: single attack runs, multi-turn
// CTF sessions, suite verification, guardrail fingerprinting, and cache
// maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aipop/internal/adapter"
	"aipop/internal/config"
	"aipop/internal/logging"
	"aipop/internal/version"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logs   *logging.Registry
	logger *zap.Logger
	audit  *logging.AuditLog

	// adapters resolves config providers to adapter implementations.
	// Vendor adapters register here when aipop is embedded as a library;
	// the standalone binary ships with the mock provider only.
	adapters = adapter.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:     "aipop",
	Short:   "aipop - automated LLM red-team harness",
	Version: version.Core,
	Long: `aipop runs jailbreak attacks (GCG, AutoDAN, PAIR) against LLM endpoints,
orchestrates multi-turn CTF-style attack sessions, and verifies test suites
with attack-success-rate confidence intervals.

Attack results are cached per core version; official plugin environments run
as subprocesses and fall back to built-in legacy variants when missing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logs, err = logging.NewRegistry(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logs.Base()
		if cfg.Logging.AuditFile != "" {
			audit, err = logging.OpenAudit(cfg.Logging.AuditFile)
			if err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			logs.Close()
		}
		_ = audit.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the core version that scopes cache keys",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aipop %s\n", version.Core)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".aipop/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	adapters.Register("mock", func(options map[string]interface{}) (adapter.Adapter, error) {
		model, _ := options["model"].(string)
		if model == "" {
			model = "mock-model"
		}
		return adapter.NewMock(model), nil
	})
}

// buildAdapter resolves one endpoint from config through the registry.
func buildAdapter(a config.AdapterConfig) (adapter.Adapter, error) {
	ad, err := adapters.Create(a.Provider, map[string]interface{}{
		"model":    a.Model,
		"api_key":  a.APIKey,
		"base_url": a.BaseURL,
		"timeout":  a.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q is not available in this build "+
			"(vendor adapters register via the adapter registry): %w", a.Provider, err)
	}
	return ad, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
