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

// RerankerService scores a candidate text against a conversational context
// using an external semantic-similarity model behind HTTP. A nil service means
// reranking is not configured; callers treat that as a passthrough.
type RerankerService struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewRerankerService creates a reranker client, or nil when no reranker
// endpoint is configured. The decision is made once here rather than per call.
func NewRerankerService(cfg *config.Config) *RerankerService {
	if cfg.RerankerURL == "" {
		return nil
	}
	return &RerankerService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RerankerTimeout},
	}
}

type rerankScoreRequest struct {
	Context   string `json:"context"`
	Candidate string `json:"candidate"`
}

type rerankScoreResponse struct {
	Score float64 `json:"score"`
}

// Score returns a similarity score in [0,1] for the candidate text against
// the context text. Out-of-range model output is clamped.
func (s *RerankerService) Score(ctx context.Context, contextText, candidateText string) (float64, error) {
	url := s.cfg.RerankerURL + "/score"

	reqBody := rerankScoreRequest{
		Context:   contextText,
		Candidate: candidateText,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call reranker service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("reranker service error: %s", string(body))
	}

	var scoreResp rerankScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&scoreResp); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	score := scoreResp.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
