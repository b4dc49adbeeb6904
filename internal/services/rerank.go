package services

import (
	"context"
	"sort"

	"github.com/counsel-scripture-api/internal/models"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
	"golang.org/x/sync/errgroup"
)

// rerankConcurrency bounds parallel scorer calls within one rerank window
const rerankConcurrency = 4

// Reranker reorders the top candidates with an external semantic similarity
// model. Candidates beyond the window are appended unchanged in their
// original relative order. On any scorer failure the stage is a passthrough.
type Reranker struct {
	scorer     *pkgservices.RerankerService
	windowSize int
}

// NewReranker creates a reranker over a bounded candidate window. scorer may
// be nil, which makes Rerank a permanent passthrough.
func NewReranker(scorer *pkgservices.RerankerService, windowSize int) *Reranker {
	return &Reranker{scorer: scorer, windowSize: windowSize}
}

// Rerank scores the bounded prefix against the context text and reorders it
// by descending score, vector distance as the tie-break. The bool reports
// whether reranking was actually applied.
func (r *Reranker) Rerank(ctx context.Context, contextText string, candidates []models.Candidate) ([]models.Candidate, bool) {
	if r.scorer == nil || len(candidates) == 0 {
		return candidates, false
	}

	window := len(candidates)
	if window > r.windowSize {
		window = r.windowSize
	}
	prefix := make([]models.Candidate, window)
	copy(prefix, candidates[:window])

	scores := make([]float64, window)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rerankConcurrency)
	for i := range prefix {
		g.Go(func() error {
			score, err := r.scorer.Score(gctx, contextText, prefix[i].Text)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return candidates, false
	}

	for i := range prefix {
		score := scores[i]
		prefix[i].RerankScore = &score
	}
	sort.SliceStable(prefix, func(i, j int) bool {
		if *prefix[i].RerankScore != *prefix[j].RerankScore {
			return *prefix[i].RerankScore > *prefix[j].RerankScore
		}
		return vectorDistanceOrSentinel(prefix[i]) < vectorDistanceOrSentinel(prefix[j])
	})

	// The tail keeps its pre-rerank relative order.
	return append(prefix, candidates[window:]...), true
}
