// Package centroid builds, persists, and searches the per-bucket centroid
// vectors the classifier compares embeddings against. The centroid set and
// its search index are written as a matched pair sharing a configuration
// fingerprint; classification against a pair built from a different bucket
// configuration is refused.
package centroid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/activity-lens/activity-lens/internal/store"
)

const metricCosine = "cosine"

var (
	// ErrStaleIndex is returned when an index was built from a different
	// bucket configuration or embedding model than the one in use.
	ErrStaleIndex = errors.New("centroid index does not match the current bucket configuration; run build-centroids")

	// ErrPairMismatch is returned when the centroid set and index on disk
	// carry different fingerprints.
	ErrPairMismatch = errors.New("centroid set and index were built from different configurations; run build-centroids")

	// ErrEmptyIndex is returned when a search runs against an index with
	// no buckets.
	ErrEmptyIndex = errors.New("centroid index has no buckets")

	// ErrDimensionMismatch is returned when a query vector's length does
	// not match the indexed vectors, which means a different embedding
	// model produced it.
	ErrDimensionMismatch = errors.New("query vector dimensions do not match the centroid index")
)

// Set holds one mean vector per bucket plus the provenance needed to detect
// staleness.
type Set struct {
	Fingerprint string               `json:"fingerprint"`
	Model       string               `json:"model"`
	Dimensions  int                  `json:"dimensions"`
	BuiltAt     time.Time            `json:"built_at"`
	Centroids   map[string][]float32 `json:"centroids"`
}

// Save writes the set atomically.
func (s *Set) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal centroid set: %w", err)
	}
	data = append(data, '\n')

	if err := store.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("save centroid set %s: %w", path, err)
	}
	return nil
}

// LoadSet reads a persisted centroid set.
func LoadSet(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read centroid set %s: %w", path, err)
	}

	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse centroid set %s: %w", path, err)
	}
	return &s, nil
}

// Index is the search-ready form of a centroid set: bucket names in
// lexicographic order, one L2-normalized vector per bucket. Read-only after
// construction.
type Index struct {
	fingerprint string
	names       []string
	vectors     [][]float32
}

type indexFile struct {
	Fingerprint string      `json:"fingerprint"`
	Metric      string      `json:"metric"`
	Buckets     []string    `json:"buckets"`
	Vectors     [][]float32 `json:"vectors"`
}

// NewIndex builds the index for a set. Names are sorted so that equal
// similarities always resolve to the lexicographically first bucket.
func NewIndex(s *Set) *Index {
	names := make([]string, 0, len(s.Centroids))
	for name := range s.Centroids {
		names = append(names, name)
	}
	sort.Strings(names)

	vectors := make([][]float32, len(names))
	for i, name := range names {
		vectors[i] = normalize(s.Centroids[name])
	}

	return &Index{
		fingerprint: s.Fingerprint,
		names:       names,
		vectors:     vectors,
	}
}

// Fingerprint returns the configuration fingerprint the index was built
// from.
func (x *Index) Fingerprint() string {
	return x.fingerprint
}

// Len returns the number of buckets.
func (x *Index) Len() int {
	return len(x.names)
}

// Dimensions returns the vector length, or zero for an empty index.
func (x *Index) Dimensions() int {
	if len(x.vectors) == 0 {
		return 0
	}
	return len(x.vectors[0])
}

// Names returns the bucket names in index order.
func (x *Index) Names() []string {
	names := make([]string, len(x.names))
	copy(names, x.names)
	return names
}

// VerifyFingerprint confirms the index matches the given configuration
// fingerprint, returning ErrStaleIndex otherwise.
func (x *Index) VerifyFingerprint(want string) error {
	if x.fingerprint != want {
		return ErrStaleIndex
	}
	return nil
}

// Search returns the bucket nearest to the query by cosine similarity. The
// query is normalized here; index rows already are, so the inner product is
// the cosine. Equal similarities keep the earlier, lexicographically first
// bucket.
func (x *Index) Search(query []float32) (string, float64, error) {
	if len(x.names) == 0 {
		return "", 0, ErrEmptyIndex
	}
	if len(query) != x.Dimensions() {
		return "", 0, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), x.Dimensions())
	}

	normalized := normalize(query)

	best := math.Inf(-1)
	bestIndex := 0
	for i, vector := range x.vectors {
		similarity := dot(normalized, vector)
		if similarity > best {
			best = similarity
			bestIndex = i
		}
	}
	return x.names[bestIndex], best, nil
}

// Save writes the index artifact atomically.
func (x *Index) Save(path string) error {
	payload := indexFile{
		Fingerprint: x.fingerprint,
		Metric:      metricCosine,
		Buckets:     x.names,
		Vectors:     x.vectors,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal centroid index: %w", err)
	}
	data = append(data, '\n')

	if err := store.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("save centroid index %s: %w", path, err)
	}
	return nil
}

// LoadIndex reads a persisted index artifact.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read centroid index %s: %w", path, err)
	}

	var payload indexFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse centroid index %s: %w", path, err)
	}
	if payload.Metric != metricCosine {
		return nil, fmt.Errorf("centroid index %s declares metric %q, only %q is supported",
			path, payload.Metric, metricCosine)
	}
	if len(payload.Buckets) != len(payload.Vectors) {
		return nil, fmt.Errorf("parse centroid index %s: %d buckets but %d vectors",
			path, len(payload.Buckets), len(payload.Vectors))
	}

	return &Index{
		fingerprint: payload.Fingerprint,
		names:       payload.Buckets,
		vectors:     payload.Vectors,
	}, nil
}

// SavePair persists the set and index together. A crash between the two
// writes leaves a mismatched pair, which LoadPair reports rather than uses.
func SavePair(s *Set, x *Index, setPath, indexPath string) error {
	if err := s.Save(setPath); err != nil {
		return err
	}
	return x.Save(indexPath)
}

// LoadPair loads both artifacts and confirms they were built from the same
// configuration.
func LoadPair(setPath, indexPath string) (*Set, *Index, error) {
	s, err := LoadSet(setPath)
	if err != nil {
		return nil, nil, err
	}
	x, err := LoadIndex(indexPath)
	if err != nil {
		return nil, nil, err
	}
	if s.Fingerprint != x.Fingerprint() {
		return nil, nil, ErrPairMismatch
	}
	return s, x, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, value := range v {
		sum += float64(value) * float64(value)
	}

	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, value := range v {
		out[i] = float32(float64(value) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
