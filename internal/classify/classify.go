// Package classify assigns activity buckets to records by embedding their
// best available text and searching the centroid index.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/centroid"
	"github.com/activity-lens/activity-lens/internal/embed"
	"github.com/activity-lens/activity-lens/internal/record"
)

// DefaultThreshold is the cosine similarity below which a record is labeled
// unclassified.
const DefaultThreshold = 0.6

// Config carries the tunables for a classifier.
type Config struct {
	// Threshold is the minimum cosine similarity for a bucket label.
	Threshold float64

	// AllowMetadataFallback permits classifying on window title or app
	// name when a record has no OCR text and no summary.
	AllowMetadataFallback bool

	// Fingerprint is the expected index fingerprint for the current
	// bucket configuration and embedding model.
	Fingerprint string
}

// Input is the text available for one record, most useful field first.
type Input struct {
	Summary     string
	OCRText     string
	WindowTitle string
	AppName     string
}

// Result is one classification outcome.
type Result struct {
	// Bucket is a bucket name, or record.Unclassified when nothing
	// cleared the threshold.
	Bucket string

	// Similarity is the best cosine similarity found, zero when no
	// embedding call was made.
	Similarity float64
}

// Classifier labels records against a fixed centroid index. Read-only after
// construction; safe for concurrent use.
type Classifier struct {
	embedder  embed.Embedder
	index     *centroid.Index
	threshold float64
	fallback  bool
	log       *logger.Logger
}

// New builds a classifier, refusing an index whose fingerprint does not
// match the current bucket configuration and embedding model.
func New(embedder embed.Embedder, index *centroid.Index, cfg Config, log *logger.Logger) (*Classifier, error) {
	if err := index.VerifyFingerprint(cfg.Fingerprint); err != nil {
		return nil, err
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	return &Classifier{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		fallback:  cfg.AllowMetadataFallback,
		log:       log,
	}, nil
}

// Classify embeds the input's best text and returns the nearest bucket at or
// above the threshold, or record.Unclassified below it. An input with no
// usable text is unclassified without an embedding call.
func (c *Classifier) Classify(ctx context.Context, input Input) (Result, error) {
	text := c.bestText(input)
	if text == "" {
		return Result{Bucket: record.Unclassified}, nil
	}

	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("embed record text: %w", err)
	}

	bucket, similarity, err := c.index.Search(vector)
	if err != nil {
		return Result{}, fmt.Errorf("search centroid index: %w", err)
	}

	result := Result{Bucket: bucket, Similarity: similarity}
	if similarity < c.threshold {
		result.Bucket = record.Unclassified
	}
	return result, nil
}

// bestText picks the first non-empty field in priority order. Window title
// and app name only participate when the metadata fallback is enabled.
func (c *Classifier) bestText(input Input) string {
	candidates := []string{input.Summary, input.OCRText}
	if c.fallback {
		candidates = append(candidates, input.WindowTitle, input.AppName)
	}

	for _, candidate := range candidates {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
