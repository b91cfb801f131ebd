package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "callisto",
	Short: "Callisto - budget-gated dispatch daemon for tiered compute",
	Long: `Callisto dispatches units of work to external compute tiers while
enforcing per-tenant budgets, per-tier rate limits, and priority ordering.

Every submission is checked against the tenant's daily budget before it is
queued, admitted through a sliding-window rate limiter, and retried with
exponential backoff when the tier reports a transient rejection. Budget
reservations are committed on success and refunded on every other outcome.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
