package postgres

import (
	"context"
	"fmt"

	"github.com/counsel-scripture-api/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SynonymRepository implements repository.SynonymRepository for PostgreSQL
type SynonymRepository struct {
	db *sqlx.DB
}

// NewSynonymRepository creates a new PostgreSQL synonym repository
func NewSynonymRepository(db *sqlx.DB) repository.SynonymRepository {
	return &SynonymRepository{db: db}
}

// Lookup returns the stored synonyms for each input term that has any
func (r *SynonymRepository) Lookup(ctx context.Context, terms []string) (map[string][]string, error) {
	if len(terms) == 0 {
		return map[string][]string{}, nil
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT term, synonym
		FROM search_synonym
		WHERE term = ANY($1)
	`, pq.Array(terms))
	if err != nil {
		return nil, fmt.Errorf("lookup synonyms: %w", err)
	}
	defer rows.Close()

	synonyms := map[string][]string{}
	for rows.Next() {
		var term, synonym string
		if err := rows.Scan(&term, &synonym); err != nil {
			return nil, fmt.Errorf("scan synonym: %w", err)
		}
		synonyms[term] = append(synonyms[term], synonym)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate synonyms: %w", err)
	}
	return synonyms, nil
}
