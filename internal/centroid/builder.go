package centroid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/buckets"
	"github.com/activity-lens/activity-lens/internal/embed"
)

// ErrZeroCentroid is returned when a bucket's example embeddings average out
// to a zero vector, which would make the bucket unreachable by any query.
var ErrZeroCentroid = errors.New("bucket examples produced a zero centroid")

// Builder turns a bucket configuration into a centroid set and index by
// embedding every example text.
type Builder struct {
	embedder embed.Embedder
	log      *logger.Logger
}

// NewBuilder creates a builder over the given embedder.
func NewBuilder(embedder embed.Embedder, log *logger.Logger) *Builder {
	return &Builder{embedder: embedder, log: log}
}

// Build validates the configuration, embeds every bucket example in file
// order, and returns the mean-vector set with its search index. The
// configuration is rejected before any embedding work starts, so a bad
// buckets file never costs model calls. Rebuilding from an unchanged
// configuration and model yields identical vectors.
func (b *Builder) Build(ctx context.Context, cfg *buckets.Config) (*Set, *Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	fingerprint := cfg.Fingerprint(b.embedder.Model())
	centroids := make(map[string][]float32, len(cfg.Buckets))
	dimensions := 0

	for _, bucket := range cfg.Buckets {
		b.log.Info("Embedding %d examples for bucket %q", len(bucket.Examples), bucket.Name)

		mean, err := b.bucketMean(ctx, bucket, dimensions)
		if err != nil {
			return nil, nil, err
		}
		if dimensions == 0 {
			dimensions = len(mean)
		}

		centroids[bucket.Name] = mean
	}

	set := &Set{
		Fingerprint: fingerprint,
		Model:       b.embedder.Model(),
		Dimensions:  dimensions,
		BuiltAt:     time.Now().UTC(),
		Centroids:   centroids,
	}

	return set, NewIndex(set), nil
}

// bucketMean embeds the bucket's examples, normalizes each embedding, and
// averages them. Averaging normalized vectors keeps a single long example
// from dominating the centroid.
func (b *Builder) bucketMean(ctx context.Context, bucket buckets.Bucket, dimensions int) ([]float32, error) {
	var sum []float64
	count := 0

	for _, example := range bucket.Examples {
		text := strings.TrimSpace(example)
		if text == "" {
			continue
		}

		vector, err := b.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed example for bucket %q: %w", bucket.Name, err)
		}
		if dimensions != 0 && len(vector) != dimensions {
			return nil, fmt.Errorf("bucket %q: embedding has %d dimensions, expected %d",
				bucket.Name, len(vector), dimensions)
		}
		if sum == nil {
			sum = make([]float64, len(vector))
		}
		if len(vector) != len(sum) {
			return nil, fmt.Errorf("bucket %q: embedding has %d dimensions, expected %d",
				bucket.Name, len(vector), len(sum))
		}

		for i, value := range normalize(vector) {
			sum[i] += float64(value)
		}
		count++
	}

	mean := make([]float32, len(sum))
	zero := true
	for i := range sum {
		mean[i] = float32(sum[i] / float64(count))
		if mean[i] != 0 {
			zero = false
		}
	}
	if zero {
		return nil, fmt.Errorf("%w: bucket %q", ErrZeroCentroid, bucket.Name)
	}

	return mean, nil
}
