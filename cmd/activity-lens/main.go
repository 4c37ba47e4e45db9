// ./cmd/activity-lens/main.go
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "activity-lens",
	Short: "Turn screen captures into a classified activity timeline",
	Long: `activity-lens processes screen captures through OCR, summarization, and
nearest-centroid classification, keeping per-record progress in a durable
store so interrupted runs resume where they left off.`,
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		"",
		"Path to activity-lens.toml (default: the user config directory)",
	)
}

func main() {
	// Load .env if present so API keys can live outside the config file.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
