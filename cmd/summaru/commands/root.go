// Package commands implements the Summaru CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "summaru",
		Short: "Summaru - Discord conversation summarizer",
		Long: `Summaru is a Discord bot that summarizes channel conversations and
answers questions with chat context, backed by a fallback chain of
Gemini models.

Examples:
  summaru serve
  summaru deploy
  summaru secret set gemini_api_key`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newDeployCmd(),
		newSecretCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
