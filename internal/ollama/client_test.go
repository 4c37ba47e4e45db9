package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"

	"github.com/activity-lens/activity-lens/internal/ollama"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "ollama_test.log")
	require.NoError(t, err)
	return log
}

func TestGenerate_SendsExpectedRequest(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  reading mail  "})
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, 5*time.Second, newTestLogger(t))

	text, err := client.Generate(context.Background(), "llama3.2:3b", "what is happening", ollama.GenerateOptions{
		Temperature: 0,
		NumPredict:  100,
		NumCtx:      16384,
	})

	require.NoError(t, err)
	require.Equal(t, "reading mail", text)
	require.Equal(t, "llama3.2:3b", captured["model"])
	require.Equal(t, "what is happening", captured["prompt"])
	require.Equal(t, false, captured["stream"])

	options, ok := captured["options"].(map[string]any)
	require.True(t, ok)
	require.InDelta(t, 100, options["num_predict"], 0)
	require.InDelta(t, 16384, options["num_ctx"], 0)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "   "})
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, 5*time.Second, newTestLogger(t))

	_, err := client.Generate(context.Background(), "llama3.2:3b", "prompt", ollama.GenerateOptions{})

	require.ErrorIs(t, err, ollama.ErrEmptyResponse)
}

func TestGenerate_APIErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, 5*time.Second, newTestLogger(t))

	_, err := client.Generate(context.Background(), "missing", "prompt", ollama.GenerateOptions{})

	require.ErrorIs(t, err, ollama.ErrAPIError)
	require.Contains(t, err.Error(), "404")
}

func TestEmbed_ReturnsFirstVector(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, 5*time.Second, newTestLogger(t))

	vector, err := client.Embed(context.Background(), "all-minilm", "coding in editor")

	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestEmbed_MissingVector(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, 5*time.Second, newTestLogger(t))

	_, err := client.Embed(context.Background(), "all-minilm", "text")

	require.ErrorIs(t, err, ollama.ErrNoEmbedding)
}

func TestSelectModel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "mistral:7b"},
				{"name": "llama3.2:3b"},
			},
		})
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, 5*time.Second, newTestLogger(t))
	ctx := context.Background()

	pinned, err := client.SelectModel(ctx, "qwen2:7b", []string{"llama3.2"})
	require.NoError(t, err)
	require.Equal(t, "qwen2:7b", pinned)

	preferred, err := client.SelectModel(ctx, "", []string{"llama3.2", "mistral"})
	require.NoError(t, err)
	require.Equal(t, "llama3.2:3b", preferred)

	fallback, err := client.SelectModel(ctx, "", []string{"nonexistent"})
	require.NoError(t, err)
	require.Equal(t, "mistral:7b", fallback)
}

func TestSelectModel_NoModelsInstalled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{}})
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, 5*time.Second, newTestLogger(t))

	_, err := client.SelectModel(context.Background(), "", []string{"llama3.2"})

	require.ErrorIs(t, err, ollama.ErrNoModels)
}
