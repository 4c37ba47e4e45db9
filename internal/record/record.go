// Package record defines the per-capture event record shared by the store,
// the stage runner, and the classifier, together with its merge and
// completion semantics.
package record

import (
	"sort"
	"strings"
	"time"
)

// Unclassified is the sentinel label for records whose best similarity to
// any bucket centroid falls below the configured threshold.
const Unclassified = "unclassified"

// Record is one captured screen event plus its derived artifacts. Optional
// fields use the empty string (or zero time) to mean "absent"; an absent
// field never overwrites a present one during a merge.
type Record struct {
	// ID is derived from the capture filename and is immutable.
	ID string `json:"id"`
	// CapturedAt is the capture timestamp supplied by the producer.
	CapturedAt time.Time `json:"captured_at"`

	// Capture metadata, owned by the producer. Never cleared by reset.
	AppName       string `json:"app_name,omitempty"`
	WindowTitle   string `json:"window_title,omitempty"`
	ScreenshotRef string `json:"screenshot_ref,omitempty"`

	// OCRText holds extracted text inline; OCRTextRef points at a sidecar
	// text file relative to the captures directory. Which one the OCR
	// stage writes is a configuration choice, but the presence of either
	// marks the OCR stage complete.
	OCRText    string `json:"ocr_text,omitempty"`
	OCRTextRef string `json:"ocr_text_ref,omitempty"`

	// SummaryText is the one-sentence activity summary.
	SummaryText string `json:"summary_text,omitempty"`

	// Classification is a bucket name or Unclassified.
	Classification string `json:"classification,omitempty"`
}

// HasOCRText reports whether the OCR stage is complete for this record,
// in either the inline or the sidecar representation.
func (r Record) HasOCRText() bool {
	return r.OCRText != "" || r.OCRTextRef != ""
}

// HasSummary reports whether the summarize stage is complete.
func (r Record) HasSummary() bool {
	return r.SummaryText != ""
}

// IsClassified reports whether the classify stage is complete. The
// Unclassified sentinel counts as complete: the stage ran and decided.
func (r Record) IsClassified() bool {
	return r.Classification != ""
}

// Merge applies the non-absent fields of update onto r. Fields absent from
// the update are left untouched, so re-applying the same update is a no-op.
// The ID is never changed.
func (r *Record) Merge(update Record) {
	if !update.CapturedAt.IsZero() {
		r.CapturedAt = update.CapturedAt
	}
	if update.AppName != "" {
		r.AppName = update.AppName
	}
	if update.WindowTitle != "" {
		r.WindowTitle = update.WindowTitle
	}
	if update.ScreenshotRef != "" {
		r.ScreenshotRef = update.ScreenshotRef
	}
	if update.OCRText != "" {
		r.OCRText = update.OCRText
	}
	if update.OCRTextRef != "" {
		r.OCRTextRef = update.OCRTextRef
	}
	if update.SummaryText != "" {
		r.SummaryText = update.SummaryText
	}
	if update.Classification != "" {
		r.Classification = update.Classification
	}
}

// Filter selects records from the store.
type Filter func(Record) bool

// All matches every record.
func All(Record) bool { return true }

// MissingOCR matches records the OCR stage has not completed.
func MissingOCR(r Record) bool { return !r.HasOCRText() }

// MissingSummary matches records the summarize stage has not completed.
func MissingSummary(r Record) bool { return !r.HasSummary() }

// MissingClassification matches records the classify stage has not completed.
func MissingClassification(r Record) bool { return !r.IsClassified() }

// ByApp matches records captured from the named application,
// case-insensitively.
func ByApp(name string) Filter {
	return func(r Record) bool {
		return strings.EqualFold(r.AppName, name)
	}
}

// CapturedBetween matches records captured in [from, to]. A zero bound is
// open on that side.
func CapturedBetween(from, to time.Time) Filter {
	return func(r Record) bool {
		if !from.IsZero() && r.CapturedAt.Before(from) {
			return false
		}
		if !to.IsZero() && r.CapturedAt.After(to) {
			return false
		}
		return true
	}
}

// And matches records satisfying every given filter.
func And(filters ...Filter) Filter {
	return func(r Record) bool {
		for _, f := range filters {
			if !f(r) {
				return false
			}
		}
		return true
	}
}

// SortByCaptureTime orders records by capture timestamp ascending, with the
// ID as a deterministic tie-break. This is the processing order of every
// pipeline run.
func SortByCaptureTime(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CapturedAt.Equal(records[j].CapturedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CapturedAt.Before(records[j].CapturedAt)
	})
}
