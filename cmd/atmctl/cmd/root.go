// Package cmd holds the atmctl subcommands: signing withdraw links the way
// ATM firmware does, minting admin tokens and applying migrations.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "atmctl",
	Short:         "operator tooling for the LNURL ATM gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the gateway config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
