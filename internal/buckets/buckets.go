// Package buckets loads and validates the user-edited activity bucket
// configuration, and fingerprints it so derived centroid artifacts can be
// matched against the configuration they were built from.
package buckets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoBuckets marks a configuration with no buckets at all.
	ErrNoBuckets = errors.New("bucket configuration has no buckets")

	// ErrEmptyName marks a bucket without a name.
	ErrEmptyName = errors.New("bucket name is empty")

	// ErrDuplicateName marks two buckets sharing a name.
	ErrDuplicateName = errors.New("duplicate bucket name")

	// ErrNoExamples marks a bucket with no example phrases.
	ErrNoExamples = errors.New("bucket has no examples")
)

// Bucket is one named activity category with its representative phrases.
type Bucket struct {
	Name     string   `yaml:"name"`
	Examples []string `yaml:"examples"`
}

// Config is the full bucket file.
type Config struct {
	Buckets []Bucket `yaml:"buckets"`
}

// Load reads and validates a bucket file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bucket file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse bucket file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bucket file %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks names and examples. Whitespace-only entries count as
// absent.
func (c *Config) Validate() error {
	if len(c.Buckets) == 0 {
		return ErrNoBuckets
	}

	seen := make(map[string]bool, len(c.Buckets))
	for i, bucket := range c.Buckets {
		name := strings.TrimSpace(bucket.Name)
		if name == "" {
			return fmt.Errorf("bucket %d: %w", i+1, ErrEmptyName)
		}
		if seen[name] {
			return fmt.Errorf("bucket %q: %w", name, ErrDuplicateName)
		}
		seen[name] = true

		examples := 0
		for _, example := range bucket.Examples {
			if strings.TrimSpace(example) != "" {
				examples++
			}
		}
		if examples == 0 {
			return fmt.Errorf("bucket %q: %w", name, ErrNoExamples)
		}
	}
	return nil
}

// Names returns the bucket names in file order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Buckets))
	for _, bucket := range c.Buckets {
		names = append(names, bucket.Name)
	}
	return names
}

// Fingerprint hashes the embedding model identifier plus every bucket name
// and example in file order. Any edit to the file, and any change of
// embedding model, yields a different fingerprint, which forces a centroid
// rebuild before the next classify run.
func (c *Config) Fingerprint(embeddingModel string) string {
	h := sha256.New()
	h.Write([]byte(embeddingModel))
	for _, bucket := range c.Buckets {
		h.Write([]byte{0x1e})
		h.Write([]byte(bucket.Name))
		for _, example := range bucket.Examples {
			h.Write([]byte{0x1f})
			h.Write([]byte(example))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
