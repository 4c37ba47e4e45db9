package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"google.golang.org/genai"
)

var (
	// ErrAPIKeyRequired is returned when the Gemini backend is selected
	// without an API key.
	ErrAPIKeyRequired = errors.New("gemini api key is required")
	// ErrNoModelsConfigured is returned when the Gemini backend has an
	// empty model list.
	ErrNoModelsConfigured = errors.New("no gemini models configured")
	// ErrEmptyCompletion is returned when a model replies with no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// GeminiConfig holds the tunables for the hosted-model summarizer.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. Resolved from the
	// environment by the configuration layer, never stored on disk.
	APIKey string

	// Models is tried in order until one produces a summary.
	Models []string

	Temperature       float64
	MaxTokens         int
	MaxInputChars     int
	MaxRetries        int
	RetryDelaySeconds int

	// PromptTemplate overrides DefaultPromptTemplate when non-empty.
	PromptTemplate string
}

// GeminiSummarizer generates summaries with the Gemini API, for setups
// without a local model server.
type GeminiSummarizer struct {
	client *genai.Client
	config GeminiConfig
	log    *logger.Logger
}

// NewGeminiSummarizer validates the configuration and builds the API client.
func NewGeminiSummarizer(
	ctx context.Context,
	config GeminiConfig,
	log *logger.Logger,
) (*GeminiSummarizer, error) {
	if config.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if len(config.Models) == 0 {
		return nil, ErrNoModelsConfigured
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiSummarizer{
		client: client,
		config: config,
		log:    log,
	}, nil
}

// Summarize tries each configured model in order, with bounded retries per
// model, until one produces a non-empty summary.
func (s *GeminiSummarizer) Summarize(ctx context.Context, req Request) (string, error) {
	prompt := buildPrompt(s.config.PromptTemplate, s.config.MaxInputChars, req)

	var lastErr error

	for _, model := range s.config.Models {
		summary, err := s.tryModelWithRetries(ctx, model, prompt)
		if err == nil {
			return summary, nil
		}

		lastErr = err
		s.log.Warn("Model %s failed: %v", model, err)
	}

	return "", fmt.Errorf("all models failed, last error: %w", lastErr)
}

func (s *GeminiSummarizer) tryModelWithRetries(
	ctx context.Context,
	model, prompt string,
) (string, error) {
	attempts := s.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		summary, err := s.generateOnce(ctx, model, prompt)
		if err == nil {
			return summary, nil
		}

		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("context done: %w", ctx.Err())
			case <-time.After(time.Duration(s.config.RetryDelaySeconds) * time.Second):
			}
		}
	}

	return "", fmt.Errorf(
		"model %s failed after %d attempts: %w",
		model,
		attempts,
		lastErr,
	)
}

func (s *GeminiSummarizer) generateOnce(
	ctx context.Context,
	model, prompt string,
) (string, error) {
	resp, err := s.client.Models.GenerateContent(
		ctx,
		model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(s.config.Temperature)),
			MaxOutputTokens: int32(s.config.MaxTokens),
		},
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return "", ErrEmptyCompletion
	}

	return summary, nil
}
