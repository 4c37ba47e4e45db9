// Package ollama is a small client for the local Ollama HTTP API, covering
// the three endpoints the pipeline needs: text generation, embeddings, and
// model listing.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

var (
	// ErrAPIError is returned when the Ollama service answers with a
	// non-2xx status.
	ErrAPIError = errors.New("ollama API error")

	// ErrEmptyResponse is returned when a generate call succeeds but
	// carries no text.
	ErrEmptyResponse = errors.New("empty response from ollama")

	// ErrNoEmbedding is returned when an embed call returns no vector.
	ErrNoEmbedding = errors.New("no embedding in ollama response")

	// ErrNoModels is returned when the service lists no installed models.
	ErrNoModels = errors.New("no models installed in ollama")
)

// Client talks to one Ollama instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a client for the given base URL, typically
// http://localhost:11434.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// GenerateOptions bounds a generation call. Zero values are sent as-is;
// temperature zero is deliberate, summaries must be reproducible.
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate runs a single non-streaming completion and returns the trimmed
// response text.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	reqBody := generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: opts,
	}

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", reqBody, &resp); err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	reqBody := embedRequest{
		Model: model,
		Input: text,
	}

	var resp embedResponse
	if err := c.post(ctx, "/api/embed", reqBody, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return resp.Embeddings[0], nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of the installed models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer c.closeBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrAPIError, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, model := range tags.Models {
		names = append(names, model.Name)
	}
	return names, nil
}

// SelectModel picks the model to use: the pinned name when given, otherwise
// the first preferred name found among the installed models (substring
// match, so "llama3.2" matches "llama3.2:3b"), otherwise the first
// installed model.
func (c *Client) SelectModel(ctx context.Context, pinned string, preferred []string) (string, error) {
	if pinned != "" {
		return pinned, nil
	}

	installed, err := c.ListModels(ctx)
	if err != nil {
		return "", err
	}
	if len(installed) == 0 {
		return "", ErrNoModels
	}

	for _, want := range preferred {
		for _, have := range installed {
			if strings.Contains(have, want) {
				return have, nil
			}
		}
	}

	c.log.Warn("No preferred model installed, falling back to %s", installed[0])
	return installed[0], nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer c.closeBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrAPIError, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.log.Error("failed to close response body: %v", err)
	}
}
