package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/counsel-scripture-api/internal/config"
	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
	"github.com/counsel-scripture-api/pkg/schema/textnorm"
)

// vectorDistanceSentinel sorts candidates without a vector distance after
// those that have one, within otherwise equal tiers
const vectorDistanceSentinel = 9999.0

// RetrievalService runs the citation retrieval pipeline: query construction,
// lexical search with its fallback chain, cost-gated vector search, fusion,
// scoring, reranking, and the relevance gate.
type RetrievalService struct {
	lexical    repository.LexicalSearchRepository
	vector     repository.VectorSearchRepository
	embeddings *pkgservices.EmbeddingsService
	extractor  *KeywordExtractor
	expander   *SynonymExpander
	reranker   *Reranker
	events     *EventLogger
	cfg        *config.Config
}

// NewRetrievalService creates a retrieval service. embeddings and reranker
// may be nil; the corresponding stages then degrade as documented.
func NewRetrievalService(
	lexical repository.LexicalSearchRepository,
	vector repository.VectorSearchRepository,
	embeddings *pkgservices.EmbeddingsService,
	extractor *KeywordExtractor,
	expander *SynonymExpander,
	reranker *Reranker,
	events *EventLogger,
	cfg *config.Config,
) *RetrievalService {
	return &RetrievalService{
		lexical:    lexical,
		vector:     vector,
		embeddings: embeddings,
		extractor:  extractor,
		expander:   expander,
		reranker:   reranker,
		events:     events,
		cfg:        cfg,
	}
}

// RetrieveCitations finds up to limit citable verses for the turn. It never
// fails: degraded stages are absorbed and recorded in the returned meta.
func (s *RetrievalService) RetrieveCitations(ctx context.Context, versionID, userMessage, summary string, recent []models.Message, limit int) ([]models.Citation, models.RetrievalMeta) {
	if limit <= 0 {
		limit = s.cfg.CitationLimit
	}
	contextText := buildContextText(userMessage, summary, recent)

	recentTexts := recentUserTexts(recent, 3)
	if len(recentTexts) > 0 && recentTexts[len(recentTexts)-1] == userMessage {
		recentTexts = recentTexts[:len(recentTexts)-1]
	}
	keywordSources := append([]string{userMessage}, recentTexts...)
	if summary != "" {
		keywordSources = append(keywordSources, summary)
	}
	keywords := s.extractor.ExtractKeywords(ctx, keywordSources, 8)
	topics := InferTopics(contextText)
	topicTerms := ExpandTopicsToTerms(topics)

	primaryTerms := dedupeTerms(append(append([]string{}, keywords...), topicTerms...))
	if len(primaryTerms) > s.cfg.MaxQueryTerms {
		primaryTerms = primaryTerms[:s.cfg.MaxQueryTerms]
	}
	synonyms := s.expander.Expand(ctx, primaryTerms, s.cfg.SynonymsPerTerm)
	if budget := s.cfg.MaxQueryTerms - len(primaryTerms); len(synonyms) > budget {
		if budget < 0 {
			budget = 0
		}
		synonyms = synonyms[:budget]
	}

	queryText := userMessage
	if len(primaryTerms) > 0 {
		queryText = strings.Join(primaryTerms, " ")
	}
	selectionReason := "fts_rank"
	if len(keywords) > 0 {
		selectionReason = "keyword_overlap"
	} else if len(synonyms) > 0 {
		selectionReason = "synonym_overlap"
	}

	meta := models.RetrievalMeta{
		QueryText:        queryText,
		Keywords:         keywords,
		Topics:           topics,
		Synonyms:         synonyms,
		MorphEnabled:     s.extractor.MorphEnabled(),
		VectorEnabled:    s.cfg.VectorEnabled,
		VectorWindowSize: s.cfg.VectorWindowSize,
		VectorTopK:       s.cfg.VectorTopK,
		SelectionReason:  selectionReason,
		RerankMode:       strings.ToLower(s.cfg.RerankMode),
		Candidates:       []models.CandidateDebug{},
	}

	results := s.searchWithTelemetry(ctx, versionID, queryText, limit*3)

	// Zero-result fallback chain: synonym-expanded query, then the raw user
	// message. meta.QueryText always reflects the last attempted value.
	if results.Total == 0 && len(synonyms) > 0 {
		s.events.Log("retrieval_zero", map[string]interface{}{"version_id": versionID, "q": queryText})
		synonymQuery := strings.Join(synonyms, " ")
		results = s.searchWithTelemetry(ctx, versionID, synonymQuery, limit*3)
		meta.QueryTextOriginal = meta.QueryText
		meta.QueryText = synonymQuery
	}
	if results.Total == 0 && meta.QueryText != userMessage {
		s.events.Log("retrieval_zero", map[string]interface{}{"version_id": versionID, "q": meta.QueryText})
		results = s.searchWithTelemetry(ctx, versionID, userMessage, limit*3)
		meta.QueryTextOriginal = meta.QueryText
		meta.QueryText = userMessage
	}
	if results.Total == 0 {
		s.events.Log("retrieval_zero", map[string]interface{}{"version_id": versionID, "q": userMessage})
	}

	meta.FTSCandidates = len(results.Items)

	// Vector search only runs when the lexical stage found something: paying
	// for an embedding on a query the lexical index proved fruitless for is
	// wasted cost.
	var vectorItems []models.VectorItem
	if s.cfg.VectorEnabled && meta.FTSCandidates > 0 {
		vectorItems = s.vectorSearch(ctx, versionID, contextText, &meta)
	} else if s.cfg.VectorEnabled {
		meta.VectorSkipped = "fts_empty"
	}
	meta.VectorCandidates = len(vectorItems)
	if s.cfg.VectorEnabled && len(vectorItems) == 0 {
		s.events.Log("vector_zero", map[string]interface{}{
			"version_id":  versionID,
			"window_size": s.cfg.VectorWindowSize,
		})
	}

	candidates := mergeCandidates(results.Items, vectorItems)
	meta.TotalCandidates = len(candidates)

	scoreTerms := keywords
	if len(scoreTerms) == 0 {
		scoreTerms = topicTerms
	}
	if len(scoreTerms) == 0 {
		scoreTerms = synonyms
	}
	candidates = scoreCandidates(candidates, scoreTerms, len(vectorItems) > 0)

	beforeOrder := candidateOrder(candidates, 10)
	meta.RerankOrderBefore = beforeOrder
	meta.RerankOrderAfter = beforeOrder
	meta.RerankDelta = []models.RerankDelta{}
	if meta.RerankMode != "off" && len(candidates) > 0 && s.reranker != nil {
		var applied bool
		candidates, applied = s.reranker.Rerank(ctx, contextText, candidates)
		meta.RerankApplied = applied
		afterOrder := candidateOrder(candidates, 10)
		meta.RerankOrderAfter = afterOrder
		meta.RerankDelta = rerankDelta(beforeOrder, afterOrder)
	}

	citations := []models.Citation{}
	seen := map[models.VerseKey]bool{}
	for _, c := range candidates {
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if !s.passesMinRelevance(c, scoreTerms) {
			continue
		}
		citations = append(citations, models.Citation{
			VersionID:  versionID,
			BookID:     c.BookID,
			BookName:   c.BookName,
			Chapter:    c.Chapter,
			VerseStart: c.Verse,
			VerseEnd:   c.Verse,
			Text:       c.Text,
		})
		if len(citations) >= limit {
			break
		}
	}

	for i, c := range candidates {
		if i >= 10 {
			break
		}
		meta.Candidates = append(meta.Candidates, models.CandidateDebug{
			BookID:         c.BookID,
			Chapter:        c.Chapter,
			Verse:          c.Verse,
			Rank:           c.Rank,
			TrgmSim:        c.TrgmSim,
			VectorDistance: c.VectorDistance,
			KeywordHits:    c.KeywordHits,
			RerankScore:    c.RerankScore,
			Source:         string(c.Source),
		})
	}

	if len(citations) == 0 {
		if meta.TotalCandidates == 0 {
			meta.FailureReason = "no_results"
		} else {
			meta.FailureReason = "below_threshold"
		}
		return []models.Citation{}, meta
	}
	return citations, meta
}

// searchWithTelemetry runs one lexical search attempt with latency events.
// A search error counts as zero results; retrieval never aborts the turn.
func (s *RetrievalService) searchWithTelemetry(ctx context.Context, versionID, query string, limit int) models.SearchResult {
	start := time.Now()
	results, err := s.lexical.SearchVerses(ctx, versionID, query, limit, 0)
	elapsedMs := time.Since(start).Milliseconds()
	s.events.Log("retrieval_latency", map[string]interface{}{
		"version_id": versionID,
		"elapsed_ms": elapsedMs,
		"q":          query,
	})
	if elapsedMs > int64(s.cfg.RetrievalSlowMs) {
		s.events.Log("retrieval_slow", map[string]interface{}{
			"version_id": versionID,
			"elapsed_ms": elapsedMs,
			"q":          query,
		})
	}
	if err != nil {
		return models.SearchResult{Total: 0, Items: []models.SearchItem{}}
	}
	return results
}

// vectorSearch embeds the context and queries the window index. Every failure
// mode degrades to zero results with a reason in meta.
func (s *RetrievalService) vectorSearch(ctx context.Context, versionID, contextText string, meta *models.RetrievalMeta) []models.VectorItem {
	if s.embeddings == nil {
		meta.VectorError = "embedding_unavailable"
		return nil
	}
	start := time.Now()
	embedding, err := s.embeddings.EmbedQuery(ctx, contextText)
	if err != nil {
		s.events.Log("embedding_error", map[string]interface{}{"error": "request_failed"})
		meta.VectorError = "embedding_failed"
		return nil
	}
	s.events.Log("embedding_latency", map[string]interface{}{
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	vecStart := time.Now()
	items, err := s.vector.SearchWindows(ctx, versionID, embedding, s.cfg.VectorTopK, s.cfg.VectorWindowSize)
	if err != nil {
		meta.VectorError = "vector_search_failed"
		return nil
	}
	s.events.Log("vector_latency", map[string]interface{}{
		"version_id":  versionID,
		"elapsed_ms":  time.Since(vecStart).Milliseconds(),
		"window_size": s.cfg.VectorWindowSize,
		"top_k":       s.cfg.VectorTopK,
	})
	return items
}

// mergeCandidates fuses lexical and vector result sets by verse identity.
// A verse found by both keeps the lexical fields, gains the vector distance,
// and is tagged hybrid.
func mergeCandidates(ftsItems []models.SearchItem, vectorItems []models.VectorItem) []models.Candidate {
	merged := make([]models.Candidate, 0, len(ftsItems)+len(vectorItems))
	index := map[models.VerseKey]int{}

	for _, item := range ftsItems {
		c := models.Candidate{
			BookID:   item.BookID,
			BookName: item.BookName,
			Chapter:  item.Chapter,
			Verse:    item.Verse,
			Text:     item.Text,
			Snippet:  item.Snippet,
			Rank:     item.Rank,
			TrgmSim:  item.TrgmSim,
			Source:   models.CandidateSourceFTS,
		}
		index[c.Key()] = len(merged)
		merged = append(merged, c)
	}
	for _, item := range vectorItems {
		key := models.VerseKey{BookID: item.BookID, Chapter: item.Chapter, Verse: item.Verse}
		distance := item.Distance
		if i, ok := index[key]; ok {
			merged[i].VectorDistance = &distance
			merged[i].Source = models.CandidateSourceHybrid
			continue
		}
		index[key] = len(merged)
		merged = append(merged, models.Candidate{
			BookID:         item.BookID,
			BookName:       item.BookName,
			Chapter:        item.Chapter,
			Verse:          item.Verse,
			Text:           item.Text,
			VectorDistance: &distance,
			Source:         models.CandidateSourceVector,
		})
	}
	return merged
}

// scoreCandidates computes keyword hits and orders candidates by
// (keyword hits desc, rank desc, trigram similarity desc, vector distance
// asc with the sentinel for missing, original index). When there are no
// score terms and no vector candidates the lexical ordering is preserved.
func scoreCandidates(candidates []models.Candidate, scoreTerms []string, hasVector bool) []models.Candidate {
	for i := range candidates {
		hits := 0
		if len(scoreTerms) > 0 {
			textNorm := textnorm.Normalize(candidates[i].Text)
			for _, term := range scoreTerms {
				if strings.Contains(textNorm, term) {
					hits++
				}
			}
		}
		candidates[i].KeywordHits = hits
	}

	if len(scoreTerms) == 0 && !hasVector {
		return candidates
	}

	type scored struct {
		idx int
		c   models.Candidate
	}
	items := make([]scored, len(candidates))
	for i, c := range candidates {
		items[i] = scored{idx: i, c: c}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].c, items[j].c
		if a.KeywordHits != b.KeywordHits {
			return a.KeywordHits > b.KeywordHits
		}
		if a.Rank != b.Rank {
			return a.Rank > b.Rank
		}
		if a.TrgmSim != b.TrgmSim {
			return a.TrgmSim > b.TrgmSim
		}
		da, db := vectorDistanceOrSentinel(a), vectorDistanceOrSentinel(b)
		if da != db {
			return da < db
		}
		return items[i].idx < items[j].idx
	})

	ordered := make([]models.Candidate, len(items))
	for i, item := range items {
		ordered[i] = item.c
	}
	return ordered
}

func vectorDistanceOrSentinel(c models.Candidate) float64 {
	if c.VectorDistance != nil {
		return *c.VectorDistance
	}
	return vectorDistanceSentinel
}

// passesMinRelevance is the relevance gate: keyword hits, lexical rank, or
// trigram similarity must each clear their minimum for the candidate to be
// citable
func (s *RetrievalService) passesMinRelevance(c models.Candidate, scoreTerms []string) bool {
	if len(scoreTerms) > 0 && c.KeywordHits >= s.cfg.MinCitationKeywordHits {
		return true
	}
	if c.Rank >= s.cfg.MinCitationRank {
		return true
	}
	return c.TrgmSim >= s.cfg.MinCitationTrgm
}

// candidateOrder returns the leading candidate keys, for rerank auditing
func candidateOrder(candidates []models.Candidate, limit int) []string {
	if len(candidates) < limit {
		limit = len(candidates)
	}
	keys := make([]string, 0, limit)
	for _, c := range candidates[:limit] {
		keys = append(keys, c.Key().String())
	}
	return keys
}

// rerankDelta lists every key whose position changed between the two orders
func rerankDelta(before, after []string) []models.RerankDelta {
	beforePos := map[string]int{}
	for i, key := range before {
		beforePos[key] = i
	}
	deltas := []models.RerankDelta{}
	for i, key := range after {
		if from, ok := beforePos[key]; ok && from != i {
			deltas = append(deltas, models.RerankDelta{Key: key, From: from, To: i})
		}
	}
	return deltas
}
