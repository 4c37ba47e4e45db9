// Package ingest discovers capture artifacts on disk and registers them as
// store records. It is the boundary to the capture producer: the producer
// drops screenshots and optional pre-extracted text files into the captures
// directory, and a scan turns them into records for the pipeline.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/record"
	"github.com/activity-lens/activity-lens/internal/store"
)

// Capture stems come in two producer conventions. The compact form carries
// only the timestamp; the readable form also carries the app name.
const (
	compactStemPrefix  = "screen_"
	compactStemLayout  = "20060102_150405"
	readableStemLayout = "20060102 150405"
	readableSeparator  = " - "
)

// Scanner walks the captures directory and upserts one record per capture
// stem. A text file with a recognized stem counts as completed OCR, whether
// the producer scraped it from the UI or a previous pipeline run wrote it.
type Scanner struct {
	dir   string
	store *store.Store
	log   *logger.Logger
}

// NewScanner creates a scanner over the given captures directory.
func NewScanner(dir string, st *store.Store, log *logger.Logger) *Scanner {
	return &Scanner{
		dir:   dir,
		store: st,
		log:   log,
	}
}

// Report counts one scan's findings.
type Report struct {
	// Screenshots and TextFiles count recognized capture artifacts,
	// including ones already registered.
	Screenshots int
	TextFiles   int

	// NewRecords counts record ids first seen by this scan.
	NewRecords int

	// Skipped counts directory entries that are not capture artifacts.
	Skipped int
}

// Scan reads the captures directory once and upserts a record for every
// recognized artifact, then saves the store. Re-scanning is harmless: known
// artifacts merge into their existing records without clobbering anything.
func (s *Scanner) Scan() (Report, error) {
	var report Report

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return report, fmt.Errorf("read captures directory %s: %w", s.dir, err)
	}

	seen := make(map[string]bool)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			report.Skipped++

			continue
		}

		update, ok := parseArtifact(name)
		if !ok {
			report.Skipped++

			continue
		}

		if update.ScreenshotRef != "" {
			report.Screenshots++
		} else {
			report.TextFiles++
		}

		if _, exists := s.store.Get(update.ID); !exists && !seen[update.ID] {
			report.NewRecords++
			seen[update.ID] = true
		}

		if err := s.store.Upsert(update); err != nil {
			return report, fmt.Errorf("register capture %s: %w", name, err)
		}
	}

	if report.Screenshots+report.TextFiles > 0 {
		if err := s.store.Save(); err != nil {
			return report, err
		}
	}

	s.log.Info(
		"Scan of %s: %d screenshots, %d text files, %d new records, %d skipped",
		s.dir,
		report.Screenshots,
		report.TextFiles,
		report.NewRecords,
		report.Skipped,
	)

	return report, nil
}

// parseArtifact maps one directory entry to a sparse record update. Only
// .png and .txt files with a parseable capture stem are artifacts.
func parseArtifact(name string) (record.Record, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".png" && ext != ".txt" {
		return record.Record{}, false
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))

	capturedAt, appName, ok := parseStem(stem)
	if !ok {
		return record.Record{}, false
	}

	update := record.Record{
		ID:         stem,
		CapturedAt: capturedAt,
		AppName:    appName,
	}

	if ext == ".png" {
		update.ScreenshotRef = name
	} else {
		update.OCRTextRef = name
	}

	return update, true
}

// parseStem extracts the capture timestamp, and the app name when the stem
// carries one, from the two recognized forms:
//
//	screen_20260301_091500
//	20260301 091500 - Safari
//
// Timestamps are the producer's wall clock, so they parse in local time.
func parseStem(stem string) (time.Time, string, bool) {
	if rest, found := strings.CutPrefix(stem, compactStemPrefix); found {
		capturedAt, err := time.ParseInLocation(compactStemLayout, rest, time.Local)
		if err != nil {
			return time.Time{}, "", false
		}

		return capturedAt, "", true
	}

	if len(stem) < len(readableStemLayout) {
		return time.Time{}, "", false
	}

	capturedAt, err := time.ParseInLocation(
		readableStemLayout,
		stem[:len(readableStemLayout)],
		time.Local,
	)
	if err != nil {
		return time.Time{}, "", false
	}

	rest := stem[len(readableStemLayout):]
	if rest != "" && !strings.HasPrefix(rest, readableSeparator) {
		return time.Time{}, "", false
	}

	appName := strings.TrimPrefix(rest, readableSeparator)

	return capturedAt, strings.TrimSpace(appName), true
}
