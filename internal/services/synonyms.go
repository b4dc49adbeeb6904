package services

import (
	"context"

	"github.com/counsel-scripture-api/internal/repository"
)

// SynonymExpander widens a term list using the persisted synonym table plus
// the static fallback map
type SynonymExpander struct {
	repo repository.SynonymRepository
}

// NewSynonymExpander creates a synonym expander. repo may be nil, in which
// case only the static map is consulted.
func NewSynonymExpander(repo repository.SynonymRepository) *SynonymExpander {
	return &SynonymExpander{repo: repo}
}

// Expand adds up to limitPerTerm novel synonyms per input term, preserving
// input-term order. Stored synonyms are tried before the static map. A store
// failure degrades to the static map only; this never fails.
func (s *SynonymExpander) Expand(ctx context.Context, terms []string, limitPerTerm int) []string {
	stored := map[string][]string{}
	if s.repo != nil && len(terms) > 0 {
		if found, err := s.repo.Lookup(ctx, terms); err == nil {
			stored = found
		}
	}

	seen := map[string]bool{}
	for _, term := range terms {
		seen[term] = true
	}

	var expanded []string
	for _, term := range terms {
		candidates := append(append([]string{}, stored[term]...), staticSynonyms[term]...)
		added := 0
		for _, candidate := range candidates {
			if seen[candidate] || len([]rune(candidate)) < 2 {
				continue
			}
			seen[candidate] = true
			expanded = append(expanded, candidate)
			added++
			if added >= limitPerTerm {
				break
			}
		}
	}
	return expanded
}
