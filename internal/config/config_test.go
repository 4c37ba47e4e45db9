package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activity-lens/activity-lens/internal/config"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "config_test.log")
	require.NoError(t, err)

	return log
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_FullFile(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	capturesDir := t.TempDir()

	path := writeConfigFile(t, `
[paths]
data_dir = "`+dataDir+`"
captures_dir = "`+capturesDir+`"

[ocr]
language = "eng+deu"
psm = 4
inline_text = true

[summarize]
backend = "gemini"
max_input_chars = 4000

[gemini]
api_key_variable = "MY_GEMINI_KEY"
models = ["gemini-2.5-pro"]

[classify]
threshold = 0.75
allow_metadata_fallback = true

[pipeline]
workers = 4
save_batch = 10
`)

	cfg, err := config.Load(path, newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.Paths.DataDir)
	assert.Equal(t, capturesDir, cfg.Paths.CapturesDir)
	assert.Equal(t, "eng+deu", cfg.OCR.Language)
	assert.Equal(t, 4, cfg.OCR.PSM)
	assert.True(t, cfg.OCR.InlineText)
	assert.Equal(t, config.BackendGemini, cfg.Summarize.Backend)
	assert.Equal(t, 4000, cfg.Summarize.MaxInputChars)
	assert.Equal(t, "MY_GEMINI_KEY", cfg.Gemini.APIKeyVariable)
	assert.Equal(t, []string{"gemini-2.5-pro"}, cfg.Gemini.Models)
	assert.InDelta(t, 0.75, cfg.Classify.Threshold, 1e-9)
	assert.True(t, cfg.Classify.AllowMetadataFallback)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 10, cfg.Pipeline.SaveBatch)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "")

	cfg, err := config.Load(path, newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.Equal(t, 3, cfg.OCR.OEM)
	assert.Equal(t, 6, cfg.OCR.PSM)
	assert.Equal(t, 11, cfg.OCR.FallbackPSM)
	assert.Equal(t, 600, cfg.OCR.DPI)
	assert.False(t, cfg.OCR.InlineText)

	assert.Equal(t, config.BackendOllama, cfg.Summarize.Backend)
	assert.Equal(t, 15000, cfg.Summarize.MaxInputChars)
	assert.False(t, cfg.Summarize.DisableCache)

	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbedModel)
	assert.Contains(t, cfg.Ollama.PreferredModels, "llama3.2:3b")
	assert.Zero(t, cfg.Ollama.Temperature)
	assert.Equal(t, 100, cfg.Ollama.NumPredict)
	assert.Equal(t, 16384, cfg.Ollama.NumCtx)

	assert.Equal(t, "GEMINI_API_KEY", cfg.Gemini.APIKeyVariable)

	assert.InDelta(t, 0.6, cfg.Classify.Threshold, 1e-9)
	assert.False(t, cfg.Classify.AllowMetadataFallback)

	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, 1, cfg.Pipeline.SaveBatch)

	assert.NotEmpty(t, cfg.Paths.DataDir)
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, "captures"), cfg.Paths.CapturesDir)
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, "logs"), cfg.Paths.LogDir)
	assert.NotEmpty(t, cfg.Paths.BucketsFile)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"), newTestLogger(t))
	require.Error(t, err)
}

func TestLoad_MalformedTOMLFails(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "[paths\ndata_dir = broken")

	_, err := config.Load(path, newTestLogger(t))
	require.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "threshold above one",
			content: "[classify]\nthreshold = 1.5",
			wantErr: config.ErrInvalidThreshold,
		},
		{
			name:    "threshold negative",
			content: "[classify]\nthreshold = -0.2",
			wantErr: config.ErrInvalidThreshold,
		},
		{
			name:    "unknown backend",
			content: "[summarize]\nbackend = \"copilot\"",
			wantErr: config.ErrUnknownBackend,
		},
		{
			name:    "negative workers",
			content: "[pipeline]\nworkers = -2",
			wantErr: config.ErrInvalidWorkers,
		},
		{
			name:    "negative save batch",
			content: "[pipeline]\nsave_batch = -1",
			wantErr: config.ErrInvalidSaveBatch,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfigFile(t, testCase.content)

			_, err := config.Load(path, newTestLogger(t))
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestLoad_ExpandsHomePaths(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfigFile(t, `
[paths]
data_dir = "~/activity-data"
`)

	cfg, err := config.Load(path, newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "activity-data"), cfg.Paths.DataDir)
}

func TestGetAPIKey(t *testing.T) {
	path := writeConfigFile(t, `
[gemini]
api_key_variable = "ACTIVITY_LENS_TEST_KEY"
`)

	cfg, err := config.Load(path, newTestLogger(t))
	require.NoError(t, err)

	t.Setenv("ACTIVITY_LENS_TEST_KEY", "secret-value")
	assert.Equal(t, "secret-value", cfg.GetAPIKey())

	t.Setenv("ACTIVITY_LENS_TEST_KEY", "")
	assert.Empty(t, cfg.GetAPIKey())
}

func TestEnsureDirectories_CreatesAll(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	path := writeConfigFile(t, `
[paths]
data_dir = "`+filepath.Join(base, "data")+`"
`)

	cfg, err := config.Load(path, newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.CapturesDir, cfg.Paths.LogDir} {
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr, "directory should exist: %s", dir)
		assert.True(t, info.IsDir())
	}
}

func TestDataFilePaths(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()

	path := writeConfigFile(t, `
[paths]
data_dir = "`+dataDir+`"
`)

	cfg, err := config.Load(path, newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dataDir, "records.json"), cfg.StorePath())
	assert.Equal(t, filepath.Join(dataDir, "centroids.json"), cfg.CentroidSetPath())
	assert.Equal(t, filepath.Join(dataDir, "index.json"), cfg.CentroidIndexPath())
	assert.Equal(t, filepath.Join(dataDir, "summary_cache.json"), cfg.SummaryCachePath())
	assert.Equal(t, filepath.Join(dataDir, "logs", "run.log"), cfg.GetLogFilePath("run.log"))
}
