package services

import (
	"context"
	"fmt"

	"github.com/counsel-scripture-api/pkg/schema/config"
)

// EmbeddingsService handles text embedding operations using a pluggable
// backend. It is constructed once at startup and injected into the pipeline.
type EmbeddingsService struct {
	embedder   Embedder
	dimensions int
}

// NewEmbeddingsService creates an embeddings service for the configured
// provider. Construction failure is surfaced to the caller so startup can
// decide; it is never retried per request.
func NewEmbeddingsService(ctx context.Context, cfg *config.Config) (*EmbeddingsService, error) {
	var embedder Embedder
	switch cfg.EmbeddingProvider {
	case "vertex":
		var err error
		embedder, err = NewVertexEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vertex AI embedder: %w", err)
		}
	default:
		embedder = NewOllamaEmbedder(cfg)
	}

	return &EmbeddingsService{
		embedder:   embedder,
		dimensions: cfg.EmbeddingDimensions,
	}, nil
}

// NewEmbeddingsServiceWith wraps an existing embedder, mainly for tests.
func NewEmbeddingsServiceWith(embedder Embedder, dimensions int) *EmbeddingsService {
	return &EmbeddingsService{embedder: embedder, dimensions: dimensions}
}

// EmbedQuery embeds a query for retrieval and validates the returned
// dimensionality against the configured size; a mismatch is a failure.
func (s *EmbeddingsService) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	embedding, err := s.embedder.Embed(ctx, query, TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	if s.dimensions > 0 && len(embedding) != s.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimensions, len(embedding))
	}
	return embedding, nil
}

// EmbedDocuments embeds texts as documents for indexing, with the same
// dimension validation as queries.
func (s *EmbeddingsService) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	embeddings, err := s.embedder.EmbedBatch(ctx, texts, TaskTypeDocument)
	if err != nil {
		return nil, err
	}
	for i, embedding := range embeddings {
		if s.dimensions > 0 && len(embedding) != s.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch at index %d: expected %d, got %d", i, s.dimensions, len(embedding))
		}
	}
	return embeddings, nil
}
