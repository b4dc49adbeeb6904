package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/counsel-scripture-api/internal/models"
	pkgconfig "github.com/counsel-scripture-api/pkg/schema/config"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
)

func rerankCandidates() []models.Candidate {
	return []models.Candidate{
		{BookID: 19, Chapter: 56, Verse: 3, Text: "내가 두려워하는 날에는 주를 의지하리이다"},
		{BookID: 40, Chapter: 11, Verse: 28, Text: "수고하고 무거운 짐 진 자들아 다 내게로 오라"},
		{BookID: 50, Chapter: 4, Verse: 6, Text: "아무 것도 염려하지 말고"},
		{BookID: 19, Chapter: 23, Verse: 1, Text: "여호와는 나의 목자시니"},
	}
}

func scorerFor(t *testing.T, scores map[string]float64) *pkgservices.RerankerService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Candidate string `json:"candidate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"score": scores[req.Candidate]})
	}))
	t.Cleanup(srv.Close)
	return pkgservices.NewRerankerService(&pkgconfig.Config{
		RerankerURL:     srv.URL,
		RerankerTimeout: 2 * time.Second,
	})
}

func TestRerankReordersWindowOnly(t *testing.T) {
	candidates := rerankCandidates()
	scores := map[string]float64{
		candidates[0].Text: 0.1,
		candidates[1].Text: 0.9,
		candidates[2].Text: 0.5,
	}
	r := NewReranker(scorerFor(t, scores), 3)

	got, applied := r.Rerank(context.Background(), "불안", candidates)
	if !applied {
		t.Fatal("rerank should have been applied")
	}
	if len(got) != 4 {
		t.Fatalf("candidate count changed: %d", len(got))
	}
	// Window of 3 reordered by score, final candidate untouched at the tail.
	wantVerses := []int{28, 6, 3, 1}
	for i, want := range wantVerses {
		if got[i].Verse != want {
			t.Fatalf("position %d = verse %d, want %d", i, got[i].Verse, want)
		}
	}
	if got[0].RerankScore == nil || *got[0].RerankScore != 0.9 {
		t.Errorf("winner score = %v", got[0].RerankScore)
	}
	if got[3].RerankScore != nil {
		t.Error("tail candidate must not carry a rerank score")
	}
}

func TestRerankTailKeepsRelativeOrder(t *testing.T) {
	candidates := rerankCandidates()
	scores := map[string]float64{candidates[0].Text: 0.2, candidates[1].Text: 0.1}
	r := NewReranker(scorerFor(t, scores), 2)

	got, applied := r.Rerank(context.Background(), "불안", candidates)
	if !applied {
		t.Fatal("rerank should have been applied")
	}
	if got[2].Verse != 6 || got[3].Verse != 1 {
		t.Errorf("tail order changed: %+v", got)
	}
}

func TestRerankFailureIsPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	scorer := pkgservices.NewRerankerService(&pkgconfig.Config{
		RerankerURL:     srv.URL,
		RerankerTimeout: 2 * time.Second,
	})
	r := NewReranker(scorer, 3)

	candidates := rerankCandidates()
	got, applied := r.Rerank(context.Background(), "불안", candidates)
	if applied {
		t.Error("failed rerank must not report applied")
	}
	for i := range candidates {
		if got[i].Verse != candidates[i].Verse {
			t.Fatalf("passthrough changed order at %d: %+v", i, got)
		}
	}
}

func TestRerankNilScorer(t *testing.T) {
	r := NewReranker(nil, 3)
	candidates := rerankCandidates()
	got, applied := r.Rerank(context.Background(), "불안", candidates)
	if applied {
		t.Error("nil scorer must be a passthrough")
	}
	if len(got) != len(candidates) {
		t.Errorf("candidate count changed")
	}
}
