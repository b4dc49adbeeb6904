package postgres

import (
	"context"
	"fmt"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// VectorSearchRepository implements repository.VectorSearchRepository for
// PostgreSQL with pgvector over the verse-window index
type VectorSearchRepository struct {
	db *sqlx.DB
}

// NewVectorSearchRepository creates a new PostgreSQL vector search repository
func NewVectorSearchRepository(db *sqlx.DB) repository.VectorSearchRepository {
	return &VectorSearchRepository{db: db}
}

// SearchWindows finds the topK nearest verse windows of exactly windowSize
// verses and explodes each matched window into one item per member verse, so
// fusion downstream works at verse granularity.
func (r *VectorSearchRepository) SearchWindows(ctx context.Context, versionID string, embedding []float64, topK, windowSize int) ([]models.VectorItem, error) {
	if len(embedding) == 0 {
		return []models.VectorItem{}, nil
	}
	vec := pgvector.NewVector(float32Slice(embedding))

	rows, err := r.db.QueryxContext(ctx, `
		SELECT
			v.book_id,
			b.ko_name AS book_name,
			v.chapter,
			v.verse,
			v.text,
			w.distance
		FROM (
			SELECT
				book_id,
				chapter,
				verse_start,
				verse_end,
				embedding <-> $1::vector AS distance
			FROM bible_verse_window
			WHERE version_id = $2
			  AND (verse_end - verse_start + 1) = $3
			  AND embedding IS NOT NULL
			ORDER BY embedding <-> $1::vector
			LIMIT $4
		) AS w
		JOIN bible_verse v
		  ON v.version_id = $2
		 AND v.book_id = w.book_id
		 AND v.chapter = w.chapter
		 AND v.verse BETWEEN w.verse_start AND w.verse_end
		JOIN bible_book b
		  ON b.version_id = v.version_id
		 AND b.book_id = v.book_id
		ORDER BY w.distance ASC, v.verse ASC
	`, vec, versionID, windowSize, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search windows: %w", err)
	}
	defer rows.Close()

	items := []models.VectorItem{}
	for rows.Next() {
		var item models.VectorItem
		if err := rows.Scan(&item.BookID, &item.BookName, &item.Chapter, &item.Verse, &item.Text, &item.Distance); err != nil {
			return nil, fmt.Errorf("scan window match: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window matches: %w", err)
	}
	return items, nil
}

// float32Slice converts []float64 to []float32 for pgvector
func float32Slice(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
