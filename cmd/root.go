package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"billsync/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "billsync",
	Short: "billsync - invoice lifecycle synchronizer",
	Long: `billsync keeps a tabular record store and the billing provider's
invoice base in agreement.

Each subcommand runs one synchronization pass (import, generate,
settle, cancel, remind); "run" executes the full sequence and "serve"
exposes the HTTP trigger.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("billsync executed")

		fmt.Println("billsync - invoice lifecycle synchronizer")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
