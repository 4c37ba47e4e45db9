package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/activity-lens/activity-lens/internal/record"
	"github.com/activity-lens/activity-lens/internal/store"
)

var resetCommand = &cobra.Command{
	Use:   "reset",
	Short: "Clear derived fields so stages can run again",
	Long: `Clears OCR text, summaries, or classifications from matching records so
the next run regenerates them. Capture metadata is never touched. Shows what
would be cleared and asks for confirmation unless --force is given.`,
	RunE: resetRecords,
}

var (
	resetOCR        bool
	resetSummary    bool
	resetClassify   bool
	resetAll        bool
	resetRemoveText bool
	resetApp        string
	resetSince      string
	resetUntil      string
	resetDryRun     bool
	resetForce      bool
)

func init() {
	flags := resetCommand.Flags()
	flags.BoolVar(&resetOCR, "ocr", false, "Clear OCR text and sidecar references")
	flags.BoolVar(&resetSummary, "summary", false, "Clear activity summaries")
	flags.BoolVar(&resetClassify, "classification", false, "Clear classifications")
	flags.BoolVar(&resetAll, "all", false, "Clear every derived field")
	flags.BoolVar(
		&resetRemoveText,
		"remove-text-files",
		false,
		"Also delete the sidecar text files cleared OCR references point at",
	)
	flags.StringVar(&resetApp, "app", "", "Only records captured from this application")
	flags.StringVar(&resetSince, "since", "", "Only records captured at or after this time (2006-01-02 or RFC 3339)")
	flags.StringVar(&resetUntil, "until", "", "Only records captured at or before this time (2006-01-02 or RFC 3339)")
	flags.BoolVar(&resetDryRun, "dry-run", false, "Report what would be cleared without changing anything")
	flags.BoolVar(&resetForce, "force", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(resetCommand)
}

func resetRecords(cmd *cobra.Command, _ []string) error {
	fields := store.ResetFields{
		OCR:            resetOCR || resetAll,
		Summary:        resetSummary || resetAll,
		Classification: resetClassify || resetAll,
	}
	if !fields.OCR && !fields.Summary && !fields.Classification {
		return errors.New("nothing selected: pass --ocr, --summary, --classification, or --all")
	}

	selector, err := buildSelector(resetApp, resetSince, resetUntil)
	if err != nil {
		return err
	}

	application, err := newApp()
	if err != nil {
		return err
	}

	preview, err := application.store.Reset(selector, fields, store.ResetOptions{DryRun: true})
	if err != nil {
		return fmt.Errorf("reset preview: %w", err)
	}

	if resetDryRun || !resetForce {
		printResetReport(preview, true)
	}
	if resetDryRun {
		return nil
	}
	if preview.ClearedOCR+preview.ClearedSummary+preview.ClearedClassify == 0 {
		fmt.Println("Nothing to clear.")

		return nil
	}

	if !resetForce {
		confirmed, err := confirm(cmd.InOrStdin(), "Proceed?")
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")

			return nil
		}
	}

	report, err := application.store.Reset(selector, fields, store.ResetOptions{
		RemoveSidecars: resetRemoveText,
		CapturesDir:    application.cfg.Paths.CapturesDir,
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	printResetReport(report, false)

	return nil
}

func buildSelector(app, since, until string) (record.Filter, error) {
	var filters []record.Filter

	if app != "" {
		filters = append(filters, record.ByApp(app))
	}

	if since != "" || until != "" {
		from, err := parseTimeFlag(since, false)
		if err != nil {
			return nil, err
		}

		to, err := parseTimeFlag(until, true)
		if err != nil {
			return nil, err
		}

		filters = append(filters, record.CapturedBetween(from, to))
	}

	if len(filters) == 0 {
		return record.All, nil
	}

	return record.And(filters...), nil
}

// parseTimeFlag accepts a bare date or a full RFC 3339 timestamp. Bare dates
// are local, matching the capture timestamps, and a bare date used as an
// upper bound covers the whole day.
func parseTimeFlag(value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if parsed, err := time.ParseInLocation("2006-01-02", value, time.Local); err == nil {
		if endOfDay {
			parsed = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}

		return parsed, nil
	}

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q (want 2006-01-02 or RFC 3339): %w", value, err)
	}

	return parsed, nil
}

func confirm(in io.Reader, prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes", nil
}

func printResetReport(report store.ResetReport, preview bool) {
	verb := "Cleared"
	if preview {
		verb = "Would clear"
	}

	fmt.Printf(
		"%s %d OCR, %d summary, %d classification fields across %d matched records.\n",
		verb,
		report.ClearedOCR,
		report.ClearedSummary,
		report.ClearedClassify,
		report.Matched,
	)

	if report.RemovedSidecars > 0 {
		fmt.Printf("Removed %d sidecar text files.\n", report.RemovedSidecars)
	}
}
