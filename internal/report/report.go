// Package report renders records as CSV for downstream analysis, typically
// for pasting into a language model together with an analysis prompt.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/activity-lens/activity-lens/internal/record"
)

const csvHeader = `"Timestamp","App Name","Window Title","Activity Summary","Classification"`

// fieldFlattener folds every line break and tab into a plain space so each
// record stays on one CSV row. Windows breaks fold first so they do not
// leave a stray newline behind.
var fieldFlattener = strings.NewReplacer(
	"\r\n", " ",
	"\r", " ",
	"\n", " ",
	"\t", " ",
)

// Options controls the rendered report.
type Options struct {
	// Prompt is prepended verbatim before the CSV block, separated by a
	// blank line.
	Prompt string

	// IncludeIncomplete also renders records that have neither a summary
	// nor a classification yet.
	IncludeIncomplete bool
}

// WriteCSV renders the records in the given order. By default only records
// with a summary or a classification appear; capture metadata alone is not
// worth a row. Every field is quoted so commas and stray quotes in window
// titles never break a consumer.
func WriteCSV(w io.Writer, records []record.Record, opts Options) error {
	var sb strings.Builder

	if opts.Prompt != "" {
		sb.WriteString(opts.Prompt)
		sb.WriteString("\n\n")
	}

	sb.WriteString(csvHeader)
	sb.WriteString("\n")

	for _, rec := range records {
		if !opts.IncludeIncomplete && !rec.HasSummary() && !rec.IsClassified() {
			continue
		}

		fields := []string{
			csvField(rec.CapturedAt.Format(time.RFC3339)),
			csvField(rec.AppName),
			csvField(rec.WindowTitle),
			csvField(rec.SummaryText),
			csvField(rec.Classification),
		}

		sb.WriteString(strings.Join(fields, ","))
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

// csvField quotes one value, flattening it onto a single line and doubling
// embedded quotes.
func csvField(value string) string {
	value = fieldFlattener.Replace(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, `"`, `""`)

	return `"` + value + `"`
}
