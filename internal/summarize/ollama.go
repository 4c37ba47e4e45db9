package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/ollama"
)

// OllamaConfig holds the tunables for the local-model summarizer.
type OllamaConfig struct {
	// Model pins a specific model. Empty means discover one from the
	// instance's installed models using PreferredModels.
	Model string

	// PreferredModels orders discovery when no model is pinned.
	PreferredModels []string

	// Temperature for generation. Zero keeps summaries deterministic.
	Temperature float64

	// NumPredict bounds the summary length in tokens.
	NumPredict int

	// NumCtx is the context window requested from the model.
	NumCtx int

	// MaxInputChars bounds the screen text included in the prompt.
	MaxInputChars int

	// MaxRetries and RetryDelaySeconds govern the per-request retry loop.
	MaxRetries        int
	RetryDelaySeconds int

	// PromptTemplate overrides DefaultPromptTemplate when non-empty.
	PromptTemplate string
}

// OllamaSummarizer generates summaries against a local Ollama instance. The
// model is resolved once at construction so every record in a run uses the
// same model.
type OllamaSummarizer struct {
	client *ollama.Client
	model  string
	config OllamaConfig
	log    *logger.Logger
}

// NewOllamaSummarizer resolves the model to use and returns a ready
// summarizer. Fails when the instance has no usable model.
func NewOllamaSummarizer(
	ctx context.Context,
	client *ollama.Client,
	config OllamaConfig,
	log *logger.Logger,
) (*OllamaSummarizer, error) {
	model, err := client.SelectModel(ctx, config.Model, config.PreferredModels)
	if err != nil {
		return nil, fmt.Errorf("select summary model: %w", err)
	}

	log.Info("Summarizing with model %s", model)

	return &OllamaSummarizer{
		client: client,
		model:  model,
		config: config,
		log:    log,
	}, nil
}

// Model returns the resolved model name.
func (s *OllamaSummarizer) Model() string {
	return s.model
}

// Summarize generates one summary, retrying transient failures with a fixed
// delay between attempts.
func (s *OllamaSummarizer) Summarize(ctx context.Context, req Request) (string, error) {
	prompt := buildPrompt(s.config.PromptTemplate, s.config.MaxInputChars, req)
	opts := ollama.GenerateOptions{
		Temperature: s.config.Temperature,
		NumPredict:  s.config.NumPredict,
		NumCtx:      s.config.NumCtx,
	}

	attempts := s.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		summary, err := s.client.Generate(ctx, s.model, prompt, opts)
		if err == nil {
			return strings.TrimSpace(summary), nil
		}

		lastErr = err

		if attempt < attempts {
			s.log.Warn(
				"Summary attempt %d/%d failed: %v",
				attempt,
				attempts,
				err,
			)

			select {
			case <-ctx.Done():
				return "", fmt.Errorf("context done: %w", ctx.Err())
			case <-time.After(time.Duration(s.config.RetryDelaySeconds) * time.Second):
			}
		}
	}

	return "", fmt.Errorf("summarize after %d attempts: %w", attempts, lastErr)
}
