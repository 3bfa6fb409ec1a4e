// Package cmd wires configuration, logging, and the collection pipeline
// behind the CLI surface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tubewatch",
	Short: "Video search collection pipeline",
	Long: `tubewatch collects fresh video metadata from search result pages,
deduplicates against a shared store, and hands accepted records to an
upload queue for delivery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}
