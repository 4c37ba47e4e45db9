package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/activity-lens/activity-lens/internal/report"
)

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Export processed records as CSV for analysis",
	Long: `Writes one CSV row per processed record, in capture order, ready to paste
into an analysis conversation. An optional prompt file is prepended above the
header so the whole output can be used as a single message.`,
	RunE: writeReport,
}

var (
	reportOutput     string
	reportPromptFile string
	reportAllRecords bool
	reportApp        string
	reportSince      string
	reportUntil      string
)

func init() {
	flags := reportCommand.Flags()
	flags.StringVarP(&reportOutput, "output", "o", "", "Write to this file instead of stdout")
	flags.StringVar(&reportPromptFile, "prompt-file", "", "Prepend this file's contents as an analysis prompt")
	flags.BoolVar(&reportAllRecords, "all", false, "Include records no stage has processed yet")
	flags.StringVar(&reportApp, "app", "", "Only records captured from this application")
	flags.StringVar(&reportSince, "since", "", "Only records captured at or after this time (2006-01-02 or RFC 3339)")
	flags.StringVar(&reportUntil, "until", "", "Only records captured at or before this time (2006-01-02 or RFC 3339)")

	rootCmd.AddCommand(reportCommand)
}

func writeReport(_ *cobra.Command, _ []string) error {
	selector, err := buildSelector(reportApp, reportSince, reportUntil)
	if err != nil {
		return err
	}

	opts := report.Options{IncludeIncomplete: reportAllRecords}

	if reportPromptFile != "" {
		prompt, err := os.ReadFile(reportPromptFile)
		if err != nil {
			return fmt.Errorf("read prompt file: %w", err)
		}
		opts.Prompt = strings.TrimSpace(string(prompt))
	}

	application, err := newApp()
	if err != nil {
		return err
	}

	records := application.store.Records(selector)

	if reportOutput == "" {
		return report.WriteCSV(os.Stdout, records, opts)
	}

	file, err := os.Create(reportOutput)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}

	if err := report.WriteCSV(file, records, opts); err != nil {
		_ = file.Close()

		return err
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}

	fmt.Printf("Wrote report for %d records to %s\n", len(records), reportOutput)

	return nil
}
