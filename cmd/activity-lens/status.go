package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/activity-lens/activity-lens/internal/pipeline"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show how far processing has gotten",
	Long: `Prints per-stage completion counts for the record store plus a breakdown
of assigned classifications.`,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCommand)
}

func showStatus(_ *cobra.Command, _ []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}

	records := application.store.Records()

	fmt.Printf("%d records in %s\n", len(records), application.store.Path())

	if len(records) == 0 {
		return nil
	}

	fmt.Printf(
		"Captured between %s and %s\n\n",
		records[0].CapturedAt.Format(time.RFC3339),
		records[len(records)-1].CapturedAt.Format(time.RFC3339),
	)

	var ocrDone, summaryDone, classifyDone int

	classifications := make(map[string]int)

	for _, rec := range records {
		if rec.HasOCRText() {
			ocrDone++
		}
		if rec.HasSummary() {
			summaryDone++
		}
		if rec.IsClassified() {
			classifyDone++
		}
		if rec.Classification != "" {
			classifications[rec.Classification]++
		}
	}

	total := len(records)
	fmt.Printf("  %-10s %d complete, %d pending\n", pipeline.StageOCR, ocrDone, total-ocrDone)
	fmt.Printf("  %-10s %d complete, %d pending\n", pipeline.StageSummarize, summaryDone, total-summaryDone)
	fmt.Printf("  %-10s %d complete, %d pending\n", pipeline.StageClassify, classifyDone, total-classifyDone)

	if len(classifications) == 0 {
		return nil
	}

	fmt.Println("\nClassification breakdown:")

	names := make([]string, 0, len(classifications))
	width := 0

	for name := range classifications {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}

	sort.Slice(names, func(i, j int) bool {
		if classifications[names[i]] == classifications[names[j]] {
			return names[i] < names[j]
		}

		return classifications[names[i]] > classifications[names[j]]
	})

	for _, name := range names {
		fmt.Printf("  %-*s %4d\n", width, name, classifications[name])
	}

	return nil
}
