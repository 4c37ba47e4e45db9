/*
GOLDEN RULES & DEVELOPER MANIFESTO (THE NORTH STAR)
--------------------------------------------------------------------------------
"Work is love made visible. And if you cannot work with love but only with
distaste, it is better that you should leave your work and sit at the gate of
the temple and take alms of those who work with joy." — Kahlil Gibran

1.  LOVE AND CARE (Primary Driver)
    - This is a craft. Build with pride, honesty, and kindness.
    - If you put love in your work, you build something deserving of love.
    - Be helpful: Code is read more than written; optimize for the reader.

2.  WRITE WHAT YOU MEAN (Explicit > Implicit)
    - Use WHOLE WORDS: `RequestIdentifier` not `ReqID`.
    - No magic numbers: Move application settings to `activity-lens.toml`.
    - Secure by design: Keep API keys and secrets strictly in `.env`.
    - No ambiguity: If you assume something, document it.

3.  SIMPLE IS EFFICIENT (Minimal Viable Elegance)
    - Avoid over-engineering. Small interfaces, clear structs.
    - If a design requires a hack, stop. Redesign it with elegance.
    - Lean, Clean, Mean: Delete dead code immediately.

4.  NO BASELESS ASSUMPTIONS (Scientific Rigor)
    - Do not guess. Base decisions on documentation and proven patterns.
    - If you do not know, ask or verify.

5.  NON-BLOCKING & ROBUST
    - Never block the main goroutine. Use Context for cancellation.
    - Handle errors explicitly: Don't just return them, wrap them with context.

--------------------------------------------------------------------------------
EXAMPLES OF "LOVE AND CARE" IN THIS CONTEXT:
--------------------------------------------------------------------------------
(A) NAMING
    Indifferent:  func Cls(p string, t float64)
    With Love:    func NewClassifier(embedder embed.Embedder, index *centroid.Index, cfg Config)
    *Why: The Agent reading this next year will know exactly what it does and what it needs.*

(B) CONFIGURATION
    Indifferent:  const Threshold = 0.6 // Hardcoded
    With Love:    config.Classify.Threshold // Loaded from activity-lens.toml
    *Why: Allows behavior tuning without recompiling or touching the codebase.*

(C) ERROR HANDLING
    Indifferent:  if err != nil { return err }
    With Love:    if err != nil { return fmt.Errorf("failed to open record store: %w", err) }
    *Why: Wrapping the error gives the user the 'trace of breadcrumbs' they need to fix it. That is kindness.*
--------------------------------------------------------------------------------
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultConfigFilename is the config file name looked up under the
	// user config directory.
	DefaultConfigFilename = "activity-lens.toml"

	appDirName = "activity-lens"

	storeFilename         = "records.json"
	centroidSetFilename   = "centroids.json"
	centroidIndexFilename = "index.json"
	summaryCacheFilename  = "summary_cache.json"
	bucketsFilename       = "buckets.yaml"
)

// Summarizer backends.
const (
	BackendOllama = "ollama"
	BackendGemini = "gemini"
)

var (
	// ErrInvalidThreshold marks a classify threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("classify threshold must be between 0 and 1")

	// ErrUnknownBackend marks a summarize backend that is neither ollama
	// nor gemini.
	ErrUnknownBackend = errors.New("unknown summarize backend")

	// ErrInvalidWorkers marks a non-positive worker count.
	ErrInvalidWorkers = errors.New("pipeline workers must be at least 1")

	// ErrInvalidSaveBatch marks a non-positive save batch.
	ErrInvalidSaveBatch = errors.New("pipeline save_batch must be at least 1")
)

// Config is the full project configuration, loaded from TOML with defaults
// applied before validation.
type Config struct {
	Paths     PathsSettings     `toml:"paths"`
	OCR       OCRSettings       `toml:"ocr"`
	Summarize SummarizeSettings `toml:"summarize"`
	Ollama    OllamaSettings    `toml:"ollama"`
	Gemini    GeminiSettings    `toml:"gemini"`
	Classify  ClassifySettings  `toml:"classify"`
	Pipeline  PipelineSettings  `toml:"pipeline"`
}

// PathsSettings locates everything the pipeline reads and writes. All paths
// support ~ expansion.
type PathsSettings struct {
	// DataDir holds the record store, centroid artifacts, summary cache,
	// and logs.
	DataDir string `toml:"data_dir"`

	// CapturesDir is where the capture producer drops screenshots and
	// text files.
	CapturesDir string `toml:"captures_dir"`

	// LogDir overrides the default log location under DataDir.
	LogDir string `toml:"log_dir"`

	// BucketsFile is the bucket definition YAML.
	BucketsFile string `toml:"buckets_file"`
}

// OCRSettings tunes the Tesseract collaborator.
type OCRSettings struct {
	Language       string `toml:"language"`
	OEM            int    `toml:"oem"`
	PSM            int    `toml:"psm"`
	FallbackPSM    int    `toml:"fallback_psm"`
	DPI            int    `toml:"dpi"`
	TimeoutSeconds int    `toml:"timeout_seconds"`

	// InlineText stores extracted text on the record instead of a sidecar
	// file next to the capture.
	InlineText bool `toml:"inline_text"`
}

// SummarizeSettings selects and tunes the summary backend.
type SummarizeSettings struct {
	// Backend is ollama or gemini.
	Backend string `toml:"backend"`

	// MaxInputChars bounds the screen text included in a prompt.
	MaxInputChars int `toml:"max_input_chars"`

	// PromptTemplate overrides the built-in summary instruction.
	PromptTemplate string `toml:"prompt_template"`

	// DisableCache turns off the normalized-text summary cache.
	DisableCache bool `toml:"disable_cache"`
}

// OllamaSettings tunes the local-model backend, used for summaries and for
// embeddings.
type OllamaSettings struct {
	BaseURL string `toml:"base_url"`

	// Model pins the summary model; empty discovers one from
	// PreferredModels against the installed models.
	Model           string   `toml:"model"`
	PreferredModels []string `toml:"preferred_models"`

	// EmbedModel is the embedding model shared by build-centroids and
	// classify. Changing it invalidates the centroid index.
	EmbedModel string `toml:"embed_model"`

	Temperature       float64 `toml:"temperature"`
	NumPredict        int     `toml:"num_predict"`
	NumCtx            int     `toml:"num_ctx"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	MaxRetries        int     `toml:"max_retries"`
	RetryDelaySeconds int     `toml:"retry_delay_seconds"`
}

// GeminiSettings tunes the hosted backend. The API key itself never appears
// in configuration; only the name of the environment variable holding it.
type GeminiSettings struct {
	APIKeyVariable    string   `toml:"api_key_variable"`
	Models            []string `toml:"models"`
	Temperature       float64  `toml:"temperature"`
	MaxTokens         int      `toml:"max_tokens"`
	MaxRetries        int      `toml:"max_retries"`
	RetryDelaySeconds int      `toml:"retry_delay_seconds"`
}

// ClassifySettings tunes the nearest-centroid classifier.
type ClassifySettings struct {
	// Threshold is the minimum cosine similarity for a bucket label.
	Threshold float64 `toml:"threshold"`

	// AllowMetadataFallback lets records with no screen text classify on
	// their window title or app name. Off unless asked for: labeling a
	// record from metadata alone should be a deliberate choice.
	AllowMetadataFallback bool `toml:"allow_metadata_fallback"`
}

// PipelineSettings tunes the stage runner.
type PipelineSettings struct {
	Workers   int `toml:"workers"`
	SaveBatch int `toml:"save_batch"`
}

// DefaultPath returns the conventional config location under the user
// config directory.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFilename
	}

	return filepath.Join(base, appDirName, DefaultConfigFilename)
}

// Load reads the TOML configuration, applies defaults, and validates. An
// empty filePath means the conventional location, where a missing file is
// fine and yields pure defaults; an explicitly given file must exist.
func Load(filePath string, log *logger.Logger) (*Config, error) {
	explicit := filePath != ""
	if !explicit {
		filePath = DefaultPath()
	}

	var configuration Config

	configFile, err := os.Open(filePath)

	switch {
	case err == nil:
		defer func() {
			if closeErr := configFile.Close(); closeErr != nil {
				log.Warn("Failed to close config file: %v", closeErr)
			}
		}()

		decoder := toml.NewDecoder(configFile)
		if decodeErr := decoder.Decode(&configuration); decodeErr != nil {
			return nil, fmt.Errorf("decode config file %s: %w", filePath, decodeErr)
		}
	case os.IsNotExist(err) && !explicit:
		log.Info("No config file at %s, using defaults", filePath)
	default:
		return nil, fmt.Errorf("open config file %s: %w", filePath, err)
	}

	configuration.applyDefaults()

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return &configuration, nil
}

func (c *Config) applyDefaults() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = defaultDataDir()
	}
	c.Paths.DataDir = expandPath(c.Paths.DataDir)

	if c.Paths.CapturesDir == "" {
		c.Paths.CapturesDir = filepath.Join(c.Paths.DataDir, "captures")
	}
	c.Paths.CapturesDir = expandPath(c.Paths.CapturesDir)

	if c.Paths.LogDir == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	c.Paths.LogDir = expandPath(c.Paths.LogDir)

	if c.Paths.BucketsFile == "" {
		c.Paths.BucketsFile = filepath.Join(filepath.Dir(DefaultPath()), bucketsFilename)
	}
	c.Paths.BucketsFile = expandPath(c.Paths.BucketsFile)

	c.applyOCRDefaults()
	c.applySummarizeDefaults()
	c.applyClassifyDefaults()
	c.applyPipelineDefaults()
}

func (c *Config) applyOCRDefaults() {
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.OEM == 0 {
		c.OCR.OEM = 3
	}
	if c.OCR.PSM == 0 {
		c.OCR.PSM = 6
	}
	if c.OCR.FallbackPSM == 0 {
		c.OCR.FallbackPSM = 11
	}
	if c.OCR.DPI == 0 {
		c.OCR.DPI = 600
	}
	if c.OCR.TimeoutSeconds == 0 {
		c.OCR.TimeoutSeconds = 120
	}
}

func (c *Config) applySummarizeDefaults() {
	if c.Summarize.Backend == "" {
		c.Summarize.Backend = BackendOllama
	}
	if c.Summarize.MaxInputChars == 0 {
		c.Summarize.MaxInputChars = 15000
	}

	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = "http://localhost:11434"
	}
	if len(c.Ollama.PreferredModels) == 0 {
		c.Ollama.PreferredModels = []string{
			"llama3.2:3b", "llama3.2", "llama3", "llama2", "mistral",
		}
	}
	if c.Ollama.EmbedModel == "" {
		c.Ollama.EmbedModel = "nomic-embed-text"
	}
	if c.Ollama.NumPredict == 0 {
		c.Ollama.NumPredict = 100
	}
	if c.Ollama.NumCtx == 0 {
		c.Ollama.NumCtx = 16384
	}
	if c.Ollama.TimeoutSeconds == 0 {
		c.Ollama.TimeoutSeconds = 60
	}
	if c.Ollama.MaxRetries == 0 {
		c.Ollama.MaxRetries = 3
	}
	if c.Ollama.RetryDelaySeconds == 0 {
		c.Ollama.RetryDelaySeconds = 2
	}

	if c.Gemini.APIKeyVariable == "" {
		c.Gemini.APIKeyVariable = "GEMINI_API_KEY"
	}
	if len(c.Gemini.Models) == 0 {
		c.Gemini.Models = []string{"gemini-2.5-flash", "gemini-2.0-flash"}
	}
	if c.Gemini.MaxTokens == 0 {
		c.Gemini.MaxTokens = 256
	}
	if c.Gemini.MaxRetries == 0 {
		c.Gemini.MaxRetries = 3
	}
	if c.Gemini.RetryDelaySeconds == 0 {
		c.Gemini.RetryDelaySeconds = 5
	}
}

func (c *Config) applyClassifyDefaults() {
	if c.Classify.Threshold == 0 {
		c.Classify.Threshold = 0.6
	}
}

func (c *Config) applyPipelineDefaults() {
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 1
	}
	if c.Pipeline.SaveBatch == 0 {
		c.Pipeline.SaveBatch = 1
	}
}

// Validate checks the configuration after defaults.
func (c *Config) Validate() error {
	if c.Classify.Threshold < 0 || c.Classify.Threshold > 1 {
		return fmt.Errorf("%w, got %v", ErrInvalidThreshold, c.Classify.Threshold)
	}

	if c.Summarize.Backend != BackendOllama && c.Summarize.Backend != BackendGemini {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Summarize.Backend)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidWorkers, c.Pipeline.Workers)
	}

	if c.Pipeline.SaveBatch < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidSaveBatch, c.Pipeline.SaveBatch)
	}

	return nil
}

// GetAPIKey resolves the Gemini API key from the environment variable named
// in configuration. The key itself is never stored on disk.
func (c *Config) GetAPIKey() string {
	return os.Getenv(c.Gemini.APIKeyVariable)
}

// EnsureDirectories creates the data, captures, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.CapturesDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// StorePath locates the record store file.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, storeFilename)
}

// CentroidSetPath locates the persisted centroid set.
func (c *Config) CentroidSetPath() string {
	return filepath.Join(c.Paths.DataDir, centroidSetFilename)
}

// CentroidIndexPath locates the persisted search index.
func (c *Config) CentroidIndexPath() string {
	return filepath.Join(c.Paths.DataDir, centroidIndexFilename)
}

// SummaryCachePath locates the summary cache.
func (c *Config) SummaryCachePath() string {
	return filepath.Join(c.Paths.DataDir, summaryCacheFilename)
}

// GetLogFilePath joins the log directory with the given file name.
func (c *Config) GetLogFilePath(filename string) string {
	return filepath.Join(c.Paths.LogDir, filename)
}

func defaultDataDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return appDirName
	}

	return filepath.Join(base, appDirName)
}

// expandPath resolves a leading ~ to the user home directory.
func expandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return home
	}

	return filepath.Join(home, path[2:])
}
