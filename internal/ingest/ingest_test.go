package ingest_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"

	"github.com/activity-lens/activity-lens/internal/ingest"
	"github.com/activity-lens/activity-lens/internal/record"
	"github.com/activity-lens/activity-lens/internal/store"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "ingest_test.log")
	require.NoError(t, err)

	return log
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "records.json"), newTestLogger(t))
	require.NoError(t, err)

	return st
}

func writeCapture(t *testing.T, dir, name string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
}

func TestScan_RegistersScreenshots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "screen_20260301_091500.png")

	st := newTestStore(t)
	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	report, err := scanner.Scan()
	require.NoError(t, err)

	require.Equal(t, 1, report.Screenshots)
	require.Equal(t, 1, report.NewRecords)
	require.Equal(t, 0, report.Skipped)

	rec, ok := st.Get("screen_20260301_091500")
	require.True(t, ok)
	require.Equal(t, "screen_20260301_091500.png", rec.ScreenshotRef)
	require.Equal(t, time.Date(2026, 3, 1, 9, 15, 0, 0, time.Local), rec.CapturedAt)
	require.False(t, rec.HasOCRText())
	require.Empty(t, rec.AppName)
}

func TestScan_ReadableStemCarriesAppName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "20260301 091500 - Safari.png")

	st := newTestStore(t)
	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	_, err := scanner.Scan()
	require.NoError(t, err)

	rec, ok := st.Get("20260301 091500 - Safari")
	require.True(t, ok)
	require.Equal(t, "Safari", rec.AppName)
	require.Equal(t, time.Date(2026, 3, 1, 9, 15, 0, 0, time.Local), rec.CapturedAt)
}

func TestScan_ProducerTextCountsAsCompletedOCR(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "20260301 103000 - Notes.txt")

	st := newTestStore(t)
	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	report, err := scanner.Scan()
	require.NoError(t, err)

	require.Equal(t, 0, report.Screenshots)
	require.Equal(t, 1, report.TextFiles)

	rec, ok := st.Get("20260301 103000 - Notes")
	require.True(t, ok)
	require.True(t, rec.HasOCRText())
	require.Equal(t, "20260301 103000 - Notes.txt", rec.OCRTextRef)
	require.Empty(t, rec.ScreenshotRef)
}

func TestScan_PairsSidecarWithScreenshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "screen_20260301_091500.png")
	writeCapture(t, dir, "screen_20260301_091500.txt")

	st := newTestStore(t)
	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	report, err := scanner.Scan()
	require.NoError(t, err)

	require.Equal(t, 1, report.Screenshots)
	require.Equal(t, 1, report.TextFiles)
	require.Equal(t, 1, report.NewRecords)
	require.Equal(t, 1, st.Len())

	rec, ok := st.Get("screen_20260301_091500")
	require.True(t, ok)
	require.Equal(t, "screen_20260301_091500.png", rec.ScreenshotRef)
	require.Equal(t, "screen_20260301_091500.txt", rec.OCRTextRef)
}

func TestScan_SecondScanAddsNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "screen_20260301_091500.png")
	writeCapture(t, dir, "20260301 092000 - Mail.png")

	st := newTestStore(t)
	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	first, err := scanner.Scan()
	require.NoError(t, err)
	require.Equal(t, 2, first.NewRecords)

	second, err := scanner.Scan()
	require.NoError(t, err)
	require.Equal(t, 0, second.NewRecords)
	require.Equal(t, 2, second.Screenshots)
	require.Equal(t, 2, st.Len())
}

func TestScan_DoesNotClobberDerivedFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "screen_20260301_091500.png")

	st := newTestStore(t)
	require.NoError(t, st.Upsert(record.Record{
		ID:          "screen_20260301_091500",
		CapturedAt:  time.Date(2026, 3, 1, 9, 15, 0, 0, time.Local),
		SummaryText: "Drafting release notes.",
	}))

	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	_, err := scanner.Scan()
	require.NoError(t, err)

	rec, ok := st.Get("screen_20260301_091500")
	require.True(t, ok)
	require.Equal(t, "Drafting release notes.", rec.SummaryText)
	require.Equal(t, "screen_20260301_091500.png", rec.ScreenshotRef)
}

func TestScan_SkipsUnrecognizedEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "notes.md")
	writeCapture(t, dir, ".DS_Store")
	writeCapture(t, dir, "random.png")
	writeCapture(t, dir, "20260301 0915 - Short.png")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0o755))

	st := newTestStore(t)
	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	report, err := scanner.Scan()
	require.NoError(t, err)

	require.Equal(t, 0, report.Screenshots)
	require.Equal(t, 0, report.TextFiles)
	require.Equal(t, 5, report.Skipped)
	require.Equal(t, 0, st.Len())
}

func TestScan_PersistsRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCapture(t, dir, "screen_20260301_091500.png")

	st := newTestStore(t)
	scanner := ingest.NewScanner(dir, st, newTestLogger(t))

	_, err := scanner.Scan()
	require.NoError(t, err)

	reopened, err := store.Open(st.Path(), newTestLogger(t))
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Len())
}

func TestScan_MissingDirectoryFails(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	scanner := ingest.NewScanner(filepath.Join(t.TempDir(), "nope"), st, newTestLogger(t))

	_, err := scanner.Scan()
	require.Error(t, err)
}
