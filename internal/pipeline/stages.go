package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/classify"
	"github.com/activity-lens/activity-lens/internal/ocr"
	"github.com/activity-lens/activity-lens/internal/record"
	"github.com/activity-lens/activity-lens/internal/summarize"
)

// Canonical stage names, in pipeline order.
const (
	StageOCR       = "ocr"
	StageSummarize = "summarize"
	StageClassify  = "classify"
)

const sidecarFilePermission = 0o644

// OCRProcessor extracts text from one capture image.
type OCRProcessor interface {
	ProcessImage(ctx context.Context, imagePath string) (string, error)
}

// OCRStageConfig wires the OCR stage.
type OCRStageConfig struct {
	// CapturesDir is the directory holding capture images and sidecar
	// text files; record refs resolve against it.
	CapturesDir string

	// InlineText selects the authoritative OCR representation: inline
	// text on the record, or a sidecar file next to the capture.
	InlineText bool
}

// NewOCRStage builds the stage that turns capture images into text. In
// sidecar mode a blank capture still completes with an empty sidecar; in
// inline mode it fails, since an empty inline field cannot mark completion.
func NewOCRStage(processor OCRProcessor, cfg OCRStageConfig, log *logger.Logger) Stage {
	return Stage{
		Name: StageOCR,
		Complete: func(rec record.Record) bool {
			return rec.HasOCRText()
		},
		Ready: func(rec record.Record) bool {
			return rec.ScreenshotRef != ""
		},
		Run: func(ctx context.Context, rec record.Record) (record.Record, error) {
			imagePath := filepath.Join(cfg.CapturesDir, rec.ScreenshotRef)

			log.Info("Running OCR on %s", rec.ScreenshotRef)

			text, err := processor.ProcessImage(ctx, imagePath)
			blank := errors.Is(err, ocr.ErrNoText)
			if err != nil && !blank {
				return record.Record{}, fmt.Errorf("ocr %s: %w", rec.ScreenshotRef, err)
			}

			if cfg.InlineText {
				if blank {
					return record.Record{}, fmt.Errorf("ocr %s: %w", rec.ScreenshotRef, err)
				}

				return record.Record{ID: rec.ID, OCRText: text}, nil
			}

			sidecar := sidecarName(rec.ScreenshotRef)
			sidecarPath := filepath.Join(cfg.CapturesDir, sidecar)

			writeErr := os.WriteFile(sidecarPath, []byte(text), sidecarFilePermission)
			if writeErr != nil {
				return record.Record{}, fmt.Errorf("write sidecar %s: %w", sidecar, writeErr)
			}

			return record.Record{ID: rec.ID, OCRTextRef: sidecar}, nil
		},
	}
}

// sidecarName maps a capture image ref to its text sidecar ref.
func sidecarName(screenshotRef string) string {
	return strings.TrimSuffix(screenshotRef, filepath.Ext(screenshotRef)) + ".txt"
}

// NewSummarizeStage builds the stage that generates activity summaries from
// OCR text. Records whose OCR text turns out empty are skipped, not failed:
// there is nothing to summarize on a blank screen.
func NewSummarizeStage(
	summarizer summarize.Summarizer,
	capturesDir string,
	log *logger.Logger,
) Stage {
	return Stage{
		Name: StageSummarize,
		Complete: func(rec record.Record) bool {
			return rec.HasSummary()
		},
		Ready: func(rec record.Record) bool {
			return rec.HasOCRText()
		},
		Run: func(ctx context.Context, rec record.Record) (record.Record, error) {
			text, err := resolveOCRText(rec, capturesDir)
			if err != nil {
				return record.Record{}, err
			}
			if strings.TrimSpace(text) == "" {
				return record.Record{}, fmt.Errorf("%s: no text to summarize: %w", rec.ID, ErrNotReady)
			}

			log.Info("Summarizing %s", rec.ID)

			summary, err := summarizer.Summarize(ctx, summarize.Request{
				AppName:     rec.AppName,
				WindowTitle: rec.WindowTitle,
				Text:        text,
			})
			if err != nil {
				return record.Record{}, fmt.Errorf("summarize %s: %w", rec.ID, err)
			}

			return record.Record{ID: rec.ID, SummaryText: summary}, nil
		},
	}
}

// RecordClassifier labels one record's best text.
type RecordClassifier interface {
	Classify(ctx context.Context, input classify.Input) (classify.Result, error)
}

// ClassifyStageConfig wires the classify stage.
type ClassifyStageConfig struct {
	CapturesDir string

	// AllowMetadataFallback admits records with no OCR text when their
	// window title or app name can stand in.
	AllowMetadataFallback bool
}

// NewClassifyStage builds the stage that assigns bucket labels. Blank
// records classify as unclassified, which is terminal: reset the field to
// force another pass.
func NewClassifyStage(
	classifier RecordClassifier,
	cfg ClassifyStageConfig,
	log *logger.Logger,
) Stage {
	return Stage{
		Name: StageClassify,
		Complete: func(rec record.Record) bool {
			return rec.IsClassified()
		},
		Ready: func(rec record.Record) bool {
			if rec.HasOCRText() || rec.HasSummary() {
				return true
			}

			return cfg.AllowMetadataFallback &&
				(rec.WindowTitle != "" || rec.AppName != "")
		},
		Run: func(ctx context.Context, rec record.Record) (record.Record, error) {
			input := classify.Input{
				Summary:     rec.SummaryText,
				WindowTitle: rec.WindowTitle,
				AppName:     rec.AppName,
			}

			// The summary outranks OCR text, so the sidecar read is
			// only worth it without one.
			if !rec.HasSummary() && rec.HasOCRText() {
				text, err := resolveOCRText(rec, cfg.CapturesDir)
				if err != nil {
					return record.Record{}, err
				}

				input.OCRText = text
			}

			result, err := classifier.Classify(ctx, input)
			if err != nil {
				return record.Record{}, fmt.Errorf("classify %s: %w", rec.ID, err)
			}

			log.Info("Classified %s as %s", rec.ID, result.Bucket)

			return record.Record{ID: rec.ID, Classification: result.Bucket}, nil
		},
	}
}

// resolveOCRText returns the record's OCR text, reading the sidecar when the
// text is not inline. A missing sidecar counts as not ready so the record
// retries after the OCR stage recreates it.
func resolveOCRText(rec record.Record, capturesDir string) (string, error) {
	if rec.OCRText != "" {
		return rec.OCRText, nil
	}
	if rec.OCRTextRef == "" {
		return "", nil
	}

	data, err := os.ReadFile(filepath.Join(capturesDir, rec.OCRTextRef))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%s: sidecar %s missing: %w", rec.ID, rec.OCRTextRef, ErrNotReady)
	}
	if err != nil {
		return "", fmt.Errorf("read sidecar %s: %w", rec.OCRTextRef, err)
	}

	return string(data), nil
}
