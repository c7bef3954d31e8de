// Package commands implements the assistant CLI commands.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rtvpioli/assistant-engine/cmd/assistant-cli/ui"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Back-office tooling for the RTV Pioli virtual assistant",
	Long: `The assistant CLI manages the data the virtual assistant answers from:
it imports and reindexes knowledge base documents, verifies the AI provider,
sends the suggestion digest to the review team and purges stale sessions.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine, environment variables still apply.
		_ = godotenv.Load()
		ui.InitUI(noColor, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
