package models

// RerankDelta records one positional move caused by reranking
type RerankDelta struct {
	Key  string `json:"key"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// CandidateDebug is the per-candidate slice of RetrievalMeta kept for
// observability. Only the leading candidates are recorded.
type CandidateDebug struct {
	BookID         int      `json:"book_id"`
	Chapter        int      `json:"chapter"`
	Verse          int      `json:"verse"`
	Rank           float64  `json:"rank"`
	TrgmSim        float64  `json:"trgm_sim"`
	VectorDistance *float64 `json:"vector_distance,omitempty"`
	KeywordHits    int      `json:"keyword_hits"`
	RerankScore    *float64 `json:"rerank_score,omitempty"`
	Source         string   `json:"source"`
}

// RetrievalMeta is the diagnostic record of one retrieval run. It feeds
// logging and tests only; control flow never reads it.
type RetrievalMeta struct {
	QueryText         string           `json:"query_text"`
	QueryTextOriginal string           `json:"query_text_original,omitempty"`
	Keywords          []string         `json:"keywords"`
	Topics            []string         `json:"topics"`
	Synonyms          []string         `json:"synonyms"`
	MorphEnabled      bool             `json:"morph_enabled"`
	VectorEnabled     bool             `json:"vector_enabled"`
	VectorWindowSize  int              `json:"vector_window_size"`
	VectorTopK        int              `json:"vector_topk"`
	SelectionReason   string           `json:"selection_reason"`
	FTSCandidates     int              `json:"fts_candidates"`
	VectorCandidates  int              `json:"vector_candidates"`
	TotalCandidates   int              `json:"total_candidates"`
	VectorSkipped     string           `json:"vector_skipped,omitempty"`
	VectorError       string           `json:"vector_error,omitempty"`
	RerankMode        string           `json:"rerank_mode"`
	RerankApplied     bool             `json:"rerank_applied"`
	RerankOrderBefore []string         `json:"rerank_order_before"`
	RerankOrderAfter  []string         `json:"rerank_order_after"`
	RerankDelta       []RerankDelta    `json:"rerank_delta"`
	Candidates        []CandidateDebug `json:"candidates"`
	FailureReason     string           `json:"failure_reason,omitempty"`
}
