package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/activity-lens/activity-lens/internal/record"
	"github.com/activity-lens/activity-lens/internal/report"
)

func summarizedRecord(id string, minute int) record.Record {
	return record.Record{
		ID:          id,
		CapturedAt:  time.Date(2026, 3, 1, 9, minute, 0, 0, time.UTC),
		AppName:     "Terminal",
		WindowTitle: "zsh",
		SummaryText: "Running the test suite.",
	}
}

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	t.Parallel()

	records := []record.Record{
		summarizedRecord("a", 10),
		summarizedRecord("b", 20),
	}
	records[1].Classification = "coding"

	var sb strings.Builder

	err := report.WriteCSV(&sb, records, report.Options{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(
		t,
		`"Timestamp","App Name","Window Title","Activity Summary","Classification"`,
		lines[0],
	)
	require.Equal(
		t,
		`"2026-03-01T09:10:00Z","Terminal","zsh","Running the test suite.",""`,
		lines[1],
	)
	require.Equal(
		t,
		`"2026-03-01T09:20:00Z","Terminal","zsh","Running the test suite.","coding"`,
		lines[2],
	)
}

func TestWriteCSV_FlattensAndEscapesFields(t *testing.T) {
	t.Parallel()

	rec := summarizedRecord("a", 10)
	rec.WindowTitle = "draft, v2"
	rec.SummaryText = "Editing \"notes\"\r\nacross\ttwo lines\n"

	var sb strings.Builder

	err := report.WriteCSV(&sb, []record.Record{rec}, report.Options{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Equal(
		t,
		`"2026-03-01T09:10:00Z","Terminal","draft, v2","Editing ""notes"" across two lines",""`,
		lines[1],
	)
}

func TestWriteCSV_SkipsUnprocessedRecords(t *testing.T) {
	t.Parallel()

	pending := record.Record{
		ID:         "pending",
		CapturedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		AppName:    "Mail",
	}
	classifiedOnly := record.Record{
		ID:             "meta",
		CapturedAt:     time.Date(2026, 3, 1, 9, 40, 0, 0, time.UTC),
		AppName:        "Sheets",
		Classification: record.Unclassified,
	}
	records := []record.Record{summarizedRecord("a", 10), pending, classifiedOnly}

	var sb strings.Builder

	err := report.WriteCSV(&sb, records, report.Options{})
	require.NoError(t, err)

	out := sb.String()
	require.NotContains(t, out, `"Mail"`)
	require.Contains(t, out, `"Sheets"`)
	require.Contains(t, out, `"Terminal"`)
}

func TestWriteCSV_IncludeIncompleteKeepsEveryRecord(t *testing.T) {
	t.Parallel()

	pending := record.Record{
		ID:         "pending",
		CapturedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		AppName:    "Mail",
	}

	var sb strings.Builder

	err := report.WriteCSV(&sb, []record.Record{pending}, report.Options{IncludeIncomplete: true})
	require.NoError(t, err)

	require.Contains(t, sb.String(), `"Mail"`)
}

func TestWriteCSV_PromptPrepended(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	err := report.WriteCSV(&sb, []record.Record{summarizedRecord("a", 10)}, report.Options{
		Prompt: "Analyze my day.",
	})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(sb.String(), "Analyze my day.\n\n\"Timestamp\""))
}

func TestWriteCSV_NoRecordsStillWritesHeader(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	err := report.WriteCSV(&sb, nil, report.Options{})
	require.NoError(t, err)

	require.Equal(
		t,
		"\"Timestamp\",\"App Name\",\"Window Title\",\"Activity Summary\",\"Classification\"\n",
		sb.String(),
	)
}
