package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/counsel-scripture-api/pkg/schema/config"
)

// OllamaEmbedder implements Embedder using the Ollama embeddings endpoint
type OllamaEmbedder struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewOllamaEmbedder creates a new Ollama embedder
func NewOllamaEmbedder(cfg *config.Config) *OllamaEmbedder {
	return &OllamaEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.EmbeddingTimeout},
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding for a single text. Ollama has no task-type
// notion; the task type is accepted for interface parity and ignored.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string, _ TaskType) ([]float64, error) {
	url := e.cfg.OllamaURL + "/api/embeddings"

	reqBody := ollamaEmbeddingRequest{
		Model:  e.cfg.OllamaEmbedModel,
		Prompt: text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service error: %s", string(body))
	}

	var embResp ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return embResp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts. The Ollama embeddings
// endpoint is single-prompt, so the batch is issued sequentially.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float64, error) {
	embeddings := make([][]float64, 0, len(texts))
	for _, text := range texts {
		embedding, err := e.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, nil
}
