package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"veridian-hq/callisto/pkg/cli"
	"veridian-hq/callisto/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, apply environment overrides, and report
every validation error found.

The command exits non-zero when the configuration is invalid, so it can
gate deployments.

Examples:
  # Validate the default config
  callisto validate

  # Validate a specific file
  callisto validate --config /etc/callisto/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s: %d validation error(s)\n", cfgFile, len(verr.Errors))
			for _, fieldErr := range verr.Errors {
				fmt.Printf("  - %s\n", fieldErr.Error())
			}
			// Errors already printed; keep the exit-status contract.
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true
			return verr
		}
		return cli.NewConfigError(cfgFile, err)
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  tiers: %d, budget classes: %d, storage: %s\n",
		len(cfg.Dispatch.Tiers), len(cfg.Budget.Classes), cfg.Storage.Backend)
	return nil
}
