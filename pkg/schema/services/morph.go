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

// contentPOSTags are the content-bearing part-of-speech tags kept when the
// morphological analyzer is used: general/proper/bound nouns, verb stems,
// adjective stems, auxiliary predicates.
var contentPOSTags = map[string]bool{
	"NNG": true, "NNP": true, "NNB": true,
	"VV": true, "VA": true, "VX": true,
}

// MorphService tokenizes Korean text with an external morphological analyzer.
// A nil service means morphology is disabled; callers fall back to whitespace
// tokenization and must never fail because of this service.
type MorphService struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewMorphService creates a morphology client, or nil when disabled or not
// configured.
func NewMorphService(cfg *config.Config) *MorphService {
	if !cfg.MorphEnabled || cfg.MorphURL == "" {
		return nil
	}
	return &MorphService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.MorphTimeout},
	}
}

type morphRequest struct {
	Text string `json:"text"`
}

type morphToken struct {
	Form string `json:"form"`
	Tag  string `json:"tag"`
}

type morphResponse struct {
	Tokens []morphToken `json:"tokens"`
}

// Tokenize returns the content-bearing morphemes of text. Only tokens whose
// POS tag is in contentPOSTags are returned.
func (s *MorphService) Tokenize(ctx context.Context, text string) ([]string, error) {
	url := s.cfg.MorphURL + "/tokenize"

	jsonBody, err := json.Marshal(morphRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call morph service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("morph service error: %s", string(body))
	}

	var morphResp morphResponse
	if err := json.NewDecoder(resp.Body).Decode(&morphResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	terms := make([]string, 0, len(morphResp.Tokens))
	for _, token := range morphResp.Tokens {
		if contentPOSTags[token.Tag] {
			terms = append(terms, token.Form)
		}
	}
	return terms, nil
}
