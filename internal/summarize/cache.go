package summarize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/store"
)

var (
	reClockText   = regexp.MustCompile(`\d{1,2}:\d{2}(:\d{2})?`)
	reDateText    = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
	rePunctuation = regexp.MustCompile(`[^\w\s]`)
	reChromeWords = regexp.MustCompile(`\b(close|minimize|maximize|window|button|tab)\b`)
	reStatusWords = regexp.MustCompile(`\b(loading|saving|processing|please wait)\b`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

// NormalizeForHash reduces screen text to its stable content: lowercased,
// clock and date strings removed, punctuation stripped, transient window
// chrome and status words removed, whitespace collapsed. Two captures of the
// same screen taken moments apart normalize to the same string.
func NormalizeForHash(text string) string {
	normalized := strings.ToLower(text)
	normalized = reClockText.ReplaceAllString(normalized, "")
	normalized = reDateText.ReplaceAllString(normalized, "")
	normalized = rePunctuation.ReplaceAllString(normalized, "")
	normalized = reChromeWords.ReplaceAllString(normalized, "")
	normalized = reStatusWords.ReplaceAllString(normalized, "")
	normalized = reWhitespace.ReplaceAllString(normalized, " ")

	return strings.TrimSpace(normalized)
}

// ContentHash returns the cache key for screen text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeForHash(text)))

	return hex.EncodeToString(sum[:])
}

// Cache is a durable summary cache keyed by normalized content hash. The
// cache is derived data: where the record store treats a parse failure as
// fatal, a cache that fails to parse is moved aside and replaced.
type Cache struct {
	path string
	log  *logger.Logger

	mu      sync.Mutex
	entries map[string]string
	dirty   bool
}

// OpenCache loads the cache at path, starting empty when the file is
// missing. A corrupted cache file is backed up to path + ".backup" and the
// cache starts fresh.
func OpenCache(path string, log *logger.Logger) (*Cache, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	cache := &Cache{
		path:    path,
		log:     log,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Info("No summary cache at %s, starting fresh", path)

		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read summary cache %s: %w", path, err)
	}

	err = json.Unmarshal(data, &cache.entries)
	if err != nil {
		backupPath := path + ".backup"
		log.Warn(
			"Summary cache %s failed to parse, backing up to %s: %v",
			path,
			backupPath,
			err,
		)

		renameErr := os.Rename(path, backupPath)
		if renameErr != nil {
			return nil, fmt.Errorf("back up corrupted cache: %w", renameErr)
		}

		cache.entries = make(map[string]string)
	}

	return cache, nil
}

// Get looks up the cached summary for screen text.
func (c *Cache) Get(text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary, ok := c.entries[ContentHash(text)]

	return summary, ok
}

// Put records a summary for screen text.
func (c *Cache) Put(text, summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[ContentHash(text)] = summary
	c.dirty = true
}

// Len returns the number of cached summaries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Save writes the cache atomically. A no-op when nothing changed since the
// last save.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary cache: %w", err)
	}
	data = append(data, '\n')

	err = store.WriteFileAtomic(c.path, data)
	if err != nil {
		return fmt.Errorf("save summary cache %s: %w", c.path, err)
	}

	c.dirty = false

	return nil
}

// CachingSummarizer wraps a Summarizer with the content-addressed cache.
// Each fresh summary is persisted immediately so an interrupted run keeps
// what it paid for.
type CachingSummarizer struct {
	inner Summarizer
	cache *Cache
	log   *logger.Logger
}

// NewCachingSummarizer wraps inner with cache.
func NewCachingSummarizer(inner Summarizer, cache *Cache, log *logger.Logger) *CachingSummarizer {
	return &CachingSummarizer{
		inner: inner,
		cache: cache,
		log:   log,
	}
}

// Summarize returns the cached summary when the normalized text was seen
// before, and otherwise delegates and caches the result.
func (c *CachingSummarizer) Summarize(ctx context.Context, req Request) (string, error) {
	if summary, ok := c.cache.Get(req.Text); ok {
		c.log.Info("Using cached summary for %s", ContentHash(req.Text)[:8])

		return summary, nil
	}

	summary, err := c.inner.Summarize(ctx, req)
	if err != nil {
		return "", err
	}

	c.cache.Put(req.Text, summary)

	err = c.cache.Save()
	if err != nil {
		c.log.Warn("Could not save summary cache: %v", err)
	}

	return summary, nil
}
