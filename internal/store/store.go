// Package store owns the durable collection of event records: a single
// JSON file loaded fully into memory and rewritten atomically on save, so
// readers only ever see a complete prior state or a complete new state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/record"
)

const storeVersion = 1

var (
	// ErrCorrupt marks a store file that exists but cannot be parsed.
	// The store is never silently reset; the caller must decide.
	ErrCorrupt = errors.New("record store file is corrupt")

	// ErrMissingID marks an upsert of a record without an identifier.
	ErrMissingID = errors.New("record id is required")
)

type storeFile struct {
	Version int                      `json:"version"`
	Records map[string]record.Record `json:"records"`
}

// Store is a durable id-to-record mapping with a single-writer contract:
// one process mutates a given store file at a time. Within the process all
// access is serialized by an internal mutex so a parallel runner's
// write-backs stay safe.
type Store struct {
	path    string
	mu      sync.Mutex
	records map[string]record.Record
	log     *logger.Logger
}

// Open loads the store file at path, creating the parent directory if
// needed. A missing file starts an empty store; an unparseable file is
// ErrCorrupt.
func Open(path string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	s := &Store{
		path:    path,
		records: make(map[string]record.Record),
		log:     log,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("No store file at %s, starting fresh", path)
			return s, nil
		}
		return nil, fmt.Errorf("read store file %s: %w", path, err)
	}

	var payload storeFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCorrupt, path, err)
	}
	if payload.Version != storeVersion {
		return nil, fmt.Errorf("%w: %s has unsupported version %d", ErrCorrupt, path, payload.Version)
	}
	if payload.Records != nil {
		s.records = payload.Records
	}

	log.Info("Loaded %d records from %s", len(s.records), path)
	return s, nil
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Upsert inserts the record if its id is unseen, otherwise merges the
// update's non-absent fields into the existing record. Absent fields never
// clobber present ones, so re-applying the same update is a no-op. The
// change is in-memory only until Save.
func (s *Store) Upsert(update record.Record) error {
	if update.ID == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[update.ID]
	if !ok {
		s.records[update.ID] = update
		return nil
	}
	existing.Merge(update)
	s.records[update.ID] = existing
	return nil
}

// Records returns a snapshot of all records matching every filter, sorted
// by capture timestamp ascending with id as tie-break. Callers may re-query
// after mutations; the snapshot itself never changes under them.
func (s *Store) Records(filters ...record.Filter) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]record.Record, 0, len(s.records))
	for _, rec := range s.records {
		if record.And(filters...)(rec) {
			matched = append(matched, rec)
		}
	}
	record.SortByCaptureTime(matched)
	return matched
}

// Save atomically rewrites the store file: marshal, write to a temp file in
// the same directory, fsync, rename. A crash mid-save leaves the prior
// complete state in place. Map keys marshal in sorted order, so saving the
// same state twice produces identical bytes.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	payload := storeFile{
		Version: storeVersion,
		Records: s.records,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	data = append(data, '\n')

	if err := WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save store %s: %w", s.path, err)
	}
	return nil
}

// ResetFields names the derived fields a reset clears. Capture metadata is
// never clearable.
type ResetFields struct {
	OCR            bool
	Summary        bool
	Classification bool
}

// ResetOptions controls how a reset applies.
type ResetOptions struct {
	// DryRun computes the report without mutating the store or disk.
	DryRun bool
	// RemoveSidecars deletes the sidecar text file referenced by a
	// cleared ocr_text_ref. Off by default; artifact removal is a
	// caller's explicit choice.
	RemoveSidecars bool
	// CapturesDir resolves sidecar references for removal.
	CapturesDir string
}

// ResetReport summarizes what a reset did, or would do under DryRun.
type ResetReport struct {
	Matched         int
	ClearedOCR      int
	ClearedSummary  int
	ClearedClassify int
	RemovedSidecars int
}

// Reset clears exactly the named derived fields on every record matching
// the selector, then saves once. Matching zero records is success. The id,
// capture timestamp, and capture metadata are never touched.
func (s *Store) Reset(selector record.Filter, fields ResetFields, opts ResetOptions) (ResetReport, error) {
	if selector == nil {
		selector = record.All
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var report ResetReport
	changed := false

	for id, rec := range s.records {
		if !selector(rec) {
			continue
		}
		report.Matched++

		mutated := false
		if fields.OCR && rec.HasOCRText() {
			report.ClearedOCR++
			if !opts.DryRun {
				if opts.RemoveSidecars && rec.OCRTextRef != "" {
					if s.removeSidecar(opts.CapturesDir, rec.OCRTextRef) {
						report.RemovedSidecars++
					}
				}
				rec.OCRText = ""
				rec.OCRTextRef = ""
				mutated = true
			}
		}
		if fields.Summary && rec.HasSummary() {
			report.ClearedSummary++
			if !opts.DryRun {
				rec.SummaryText = ""
				mutated = true
			}
		}
		if fields.Classification && rec.IsClassified() {
			report.ClearedClassify++
			if !opts.DryRun {
				rec.Classification = ""
				mutated = true
			}
		}

		if mutated {
			s.records[id] = rec
			changed = true
		}
	}

	if changed {
		if err := s.saveLocked(); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *Store) removeSidecar(dir, ref string) bool {
	path := filepath.Join(dir, ref)
	err := os.Remove(path)
	if err == nil {
		return true
	}
	if !os.IsNotExist(err) {
		s.log.Warn("Could not remove sidecar %s: %v", path, err)
	}
	return false
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by a rename, the persistence discipline every other
// artifact in the data directory reuses.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
