package postgres

import (
	"context"
	"fmt"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/counsel-scripture-api/pkg/schema/textnorm"
	"github.com/jmoiron/sqlx"
)

// LexicalSearchRepository implements repository.LexicalSearchRepository for
// PostgreSQL with tsvector full-text search and pg_trgm similarity
type LexicalSearchRepository struct {
	db            *sqlx.DB
	trgmThreshold float64
}

// NewLexicalSearchRepository creates a new PostgreSQL lexical search repository
func NewLexicalSearchRepository(db *sqlx.DB, trgmThreshold float64) repository.LexicalSearchRepository {
	return &LexicalSearchRepository{db: db, trgmThreshold: trgmThreshold}
}

// SearchVerses matches verses whose normalized text satisfies full-text
// search, contains the normalized query as a substring, or exceeds the
// trigram similarity threshold. The union is deliberately generous: short
// Korean queries produce sparse tsvector matches and false negatives are
// worse than extra candidates here. Ordering puts exact-substring matches
// first, then full-text matches, then rank, trigram similarity, and finally
// canonical verse order as the deterministic tie-break.
func (r *LexicalSearchRepository) SearchVerses(ctx context.Context, versionID, query string, limit, offset int) (models.SearchResult, error) {
	normalized := textnorm.Normalize(query)
	if normalized == "" {
		return models.SearchResult{Total: 0, Items: []models.SearchItem{}}, nil
	}

	useTsquery := len([]rune(normalized)) >= 2
	likePattern := "%" + normalized + "%"

	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*)
		FROM bible_verse v
		WHERE v.version_id = $1
		  AND (
		    ($2 AND v.search_vector @@ plainto_tsquery('simple', $3))
		    OR v.normalized ILIKE $4
		    OR similarity(v.normalized, $3) > $5
		  )
	`, versionID, useTsquery, normalized, likePattern, r.trgmThreshold)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("count verse matches: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT
			v.book_id,
			b.ko_name AS book_name,
			v.chapter,
			v.verse,
			COALESCE(ts_headline(
				'simple',
				v.text,
				plainto_tsquery('simple', $3),
				'StartSel=<b>, StopSel=</b>, MaxWords=24, MinWords=8, ShortWord=2, HighlightAll=true'
			), v.text) AS snippet,
			v.text,
			CASE WHEN v.text ILIKE $4 THEN 1 ELSE 0 END AS exact_rank,
			CASE WHEN v.search_vector @@ plainto_tsquery('simple', $3) THEN 0 ELSE 1 END AS fallback_rank,
			ts_rank_cd(v.search_vector, plainto_tsquery('simple', $3)) AS rank,
			similarity(v.normalized, $3) AS trgm_sim
		FROM bible_verse v
		JOIN bible_book b
		  ON b.version_id = v.version_id AND b.book_id = v.book_id
		WHERE v.version_id = $1
		  AND (
		    ($2 AND v.search_vector @@ plainto_tsquery('simple', $3))
		    OR v.normalized ILIKE $4
		    OR similarity(v.normalized, $3) > $5
		  )
		ORDER BY exact_rank DESC, fallback_rank ASC, rank DESC, trgm_sim DESC, v.book_id, v.chapter, v.verse
		LIMIT $6 OFFSET $7
	`, versionID, useTsquery, normalized, likePattern, r.trgmThreshold, limit, offset)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("search verses: %w", err)
	}
	defer rows.Close()

	items := []models.SearchItem{}
	for rows.Next() {
		var item models.SearchItem
		var exactRank, fallbackRank int
		if err := rows.Scan(&item.BookID, &item.BookName, &item.Chapter, &item.Verse,
			&item.Snippet, &item.Text, &exactRank, &fallbackRank, &item.Rank, &item.TrgmSim); err != nil {
			return models.SearchResult{}, fmt.Errorf("scan verse match: %w", err)
		}
		if item.Snippet == "" {
			item.Snippet = item.Text
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return models.SearchResult{}, fmt.Errorf("iterate verse matches: %w", err)
	}

	return models.SearchResult{Total: total, Items: items}, nil
}
