package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/counsel-scripture-api/pkg/schema/config"
)

// CompletionService generates free text with the configured Ollama model.
// Callers treat any failure as "no completion"; the service itself always
// returns the transport error so the caller can record a reason.
type CompletionService struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewCompletionService creates a completion service
func NewCompletionService(cfg *config.Config) *CompletionService {
	return &CompletionService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.OllamaTimeout},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Complete sends a prompt and returns the generated text. An empty response
// body counts as failure.
func (s *CompletionService) Complete(ctx context.Context, prompt string) (string, error) {
	url := s.cfg.OllamaURL + "/api/generate"

	reqBody := ollamaGenerateRequest{
		Model:  s.cfg.OllamaModel,
		Prompt: prompt,
		Stream: false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call completion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion service error: %s", string(body))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if genResp.Response == "" {
		return "", fmt.Errorf("empty completion")
	}
	return genResp.Response, nil
}

// Model returns the configured completion model name, for telemetry.
func (s *CompletionService) Model() string {
	return s.cfg.OllamaModel
}

// ExtractJSON parses text that should contain a JSON object. Models often wrap
// the object in prose, so when a direct parse fails the outermost `{...}` span
// is tried as a fallback. Returns false when no object can be recovered.
func ExtractJSON(text string, out interface{}) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return true
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), out) == nil
}
