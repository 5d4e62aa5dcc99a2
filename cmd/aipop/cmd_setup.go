package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"aipop/internal/attack"
)

// officialRepos names the reference implementation for each method.
var officialRepos = map[string]string{
	attack.MethodGCG:     "https://github.com/llm-attacks/llm-attacks",
	attack.MethodAutoDAN: "https://github.com/SheltonLiu-N/AutoDAN",
	attack.MethodPAIR:    "https://github.com/patrickrchao/JailbreakingLLMs",
}

var setupCmd = &cobra.Command{
	Use:   "setup <method>",
	Short: "Prepare the environment directory for an official plugin",
	Long: `Creates the environment skeleton under the configured env root and
prints the remaining manual steps. Official plugins run out of
<env_root>/<method>/ with their own Python interpreter; aipop never installs
Python packages itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := args[0]
		repo, ok := officialRepos[method]
		if !ok {
			return fmt.Errorf("unknown method %q: valid methods are autodan, gcg, pair", method)
		}

		dir := filepath.Join(cfg.Attack.EnvRoot, method)
		if err := os.MkdirAll(filepath.Join(dir, "bin"), 0755); err != nil {
			return err
		}

		fmt.Printf("created %s\n\n", dir)
		fmt.Printf("finish the %s environment by hand:\n", method)
		fmt.Printf("  python -m venv %s\n", dir)
		fmt.Printf("  %s/bin/pip install -r <checkout>/requirements.txt   # from %s\n", dir, repo)
		fmt.Printf("  cp <runner for %s> %s/runner.py\n\n", method, dir)
		fmt.Printf("then `aipop attack %s --impl official` will use it.\n", method)

		official := attack.NewOfficial(method, cfg.Attack.EnvRoot, nil, logger)
		if avail := official.CheckAvailable(); avail.Available {
			fmt.Println("environment already complete.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
