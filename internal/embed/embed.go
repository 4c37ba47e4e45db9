// Package embed defines the text-to-vector collaborator boundary. The
// centroid builder and the classifier must use the same embedder, or
// similarity scores are meaningless; the Model identifier feeds the bucket
// configuration fingerprint to enforce that.
package embed

import (
	"context"
	"fmt"

	"github.com/activity-lens/activity-lens/internal/ollama"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	// Embed returns the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model identifies the embedding model and version.
	Model() string
}

// OllamaEmbedder embeds through a local Ollama instance.
type OllamaEmbedder struct {
	client *ollama.Client
	model  string
}

// NewOllamaEmbedder creates an embedder pinned to one model.
func NewOllamaEmbedder(client *ollama.Client, model string) *OllamaEmbedder {
	return &OllamaEmbedder{
		client: client,
		model:  model,
	}
}

// Embed returns the embedding for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", e.model, err)
	}
	return vector, nil
}

// Model identifies the embedding model.
func (e *OllamaEmbedder) Model() string {
	return e.model
}
