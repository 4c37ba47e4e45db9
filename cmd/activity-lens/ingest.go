package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/activity-lens/activity-lens/internal/ingest"
)

var ingestCommand = &cobra.Command{
	Use:   "ingest",
	Short: "Register new captures from the captures directory",
	Long: `Scans the configured captures directory for screenshot and text files
named after their capture time and registers a record for each new capture.
Files the capture tool has already run OCR on count as OCR-complete.`,
	RunE: ingestCaptures,
}

func init() {
	rootCmd.AddCommand(ingestCommand)
}

func ingestCaptures(_ *cobra.Command, _ []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}

	scanner := ingest.NewScanner(
		application.cfg.Paths.CapturesDir,
		application.store,
		application.log,
	)

	report, err := scanner.Scan()
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf(
		"Scanned %s: %d screenshots, %d text files, %d new records, %d entries skipped\n",
		application.cfg.Paths.CapturesDir,
		report.Screenshots,
		report.TextFiles,
		report.NewRecords,
		report.Skipped,
	)

	return nil
}
