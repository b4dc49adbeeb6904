// indexwindows
//
// Builds the verse-window vector index. For every chapter it slides a
// fixed-size window over the verses, embeds each window's normalized text,
// and upserts the result into bible_verse_window. Chapters shorter than the
// window are skipped.
//
// Usage:
//   go run ./scripts/indexwindows -version=krv -window=5 -stride=1
//
// Environment: POSTGRES_URI, EMBEDDING_PROVIDER, OLLAMA_URL / GCP settings.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/pkg/schema/config"
	"github.com/counsel-scripture-api/pkg/schema/db"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
	"github.com/counsel-scripture-api/pkg/schema/textnorm"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
)

const embedWorkers = 4

func main() {
	versionID := flag.String("version", "krv", "Bible version ID")
	windowSize := flag.Int("window", 5, "Verses per window")
	stride := flag.Int("stride", 1, "Window stride")
	batchSize := flag.Int("batch", 20, "Embedding batch size")
	flag.Parse()

	if *windowSize < 1 || *stride < 1 {
		log.Fatal("-window and -stride must be positive")
	}

	godotenv.Load()

	ctx := context.Background()
	if err := db.InitPostgres(ctx); err != nil {
		log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	defer db.ClosePostgres()
	pgDB := db.GetPostgres()

	embeddings, err := pkgservices.NewEmbeddingsService(ctx, config.GetConfig())
	if err != nil {
		log.Fatalf("Failed to initialize embeddings service: %v", err)
	}

	books := fetchBooks(ctx, pgDB, *versionID)
	log.Printf("Indexing %d books (window=%d stride=%d)", len(books), *windowSize, *stride)

	total := 0
	for _, book := range books {
		for chapter := 1; chapter <= book.ChapterCount; chapter++ {
			verses := fetchChapterVerses(ctx, pgDB, *versionID, book.BookID, chapter)
			windows := buildWindows(*versionID, book.BookID, chapter, verses, *windowSize, *stride)
			if len(windows) == 0 {
				continue
			}
			for start := 0; start < len(windows); start += *batchSize {
				end := start + *batchSize
				if end > len(windows) {
					end = len(windows)
				}
				batch := windows[start:end]
				if err := embedBatch(ctx, embeddings, batch); err != nil {
					log.Fatalf("Failed to embed book %d chapter %d: %v", book.BookID, chapter, err)
				}
				upsertWindows(ctx, pgDB, batch)
				total += len(batch)
			}
		}
		log.Printf("  book %d done (%d windows so far)", book.BookID, total)
	}
	log.Printf("Indexed %d windows", total)
}

type bookRow struct {
	BookID       int `db:"book_id"`
	ChapterCount int `db:"chapter_count"`
}

func fetchBooks(ctx context.Context, pgDB *sqlx.DB, versionID string) []bookRow {
	var books []bookRow
	err := pgDB.SelectContext(ctx, &books, `
		SELECT book_id, chapter_count
		FROM bible_book
		WHERE version_id = $1
		ORDER BY book_id
	`, versionID)
	if err != nil {
		log.Fatalf("Failed to fetch books: %v", err)
	}
	return books
}

type chapterVerse struct {
	Verse int    `db:"verse"`
	Text  string `db:"text"`
}

func fetchChapterVerses(ctx context.Context, pgDB *sqlx.DB, versionID string, bookID, chapter int) []chapterVerse {
	var verses []chapterVerse
	err := pgDB.SelectContext(ctx, &verses, `
		SELECT verse, text
		FROM bible_verse
		WHERE version_id = $1 AND book_id = $2 AND chapter = $3
		ORDER BY verse
	`, versionID, bookID, chapter)
	if err != nil {
		log.Fatalf("Failed to fetch chapter %d:%d: %v", bookID, chapter, err)
	}
	return verses
}

func buildWindows(versionID string, bookID, chapter int, verses []chapterVerse, windowSize, stride int) []*models.VerseWindow {
	if len(verses) < windowSize {
		return nil
	}
	var windows []*models.VerseWindow
	for idx := 0; idx+windowSize <= len(verses); idx += stride {
		slice := verses[idx : idx+windowSize]
		texts := make([]string, len(slice))
		for i, v := range slice {
			texts[i] = v.Text
		}
		text := strings.Join(texts, " ")
		windows = append(windows, &models.VerseWindow{
			VersionID:  versionID,
			BookID:     bookID,
			Chapter:    chapter,
			VerseStart: slice[0].Verse,
			VerseEnd:   slice[len(slice)-1].Verse,
			Text:       text,
			Normalized: textnorm.Normalize(text),
		})
	}
	return windows
}

func embedBatch(ctx context.Context, embeddings *pkgservices.EmbeddingsService, batch []*models.VerseWindow) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for _, w := range batch {
		g.Go(func() error {
			texts := []string{w.Normalized}
			if w.Normalized == "" {
				texts[0] = w.Text
			}
			vectors, err := embeddings.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed window %d:%d:%d-%d: %w", w.BookID, w.Chapter, w.VerseStart, w.VerseEnd, err)
			}
			w.Embedding = vectors[0]
			return nil
		})
	}
	return g.Wait()
}

func upsertWindows(ctx context.Context, pgDB *sqlx.DB, batch []*models.VerseWindow) {
	tx, err := pgDB.BeginTxx(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	for _, w := range batch {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bible_verse_window
			(version_id, book_id, chapter, verse_start, verse_end, text, normalized, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (version_id, book_id, chapter, verse_start, verse_end)
			DO UPDATE SET
				text = EXCLUDED.text,
				normalized = EXCLUDED.normalized,
				embedding = EXCLUDED.embedding,
				updated_at = now()
		`, w.VersionID, w.BookID, w.Chapter, w.VerseStart, w.VerseEnd, w.Text, w.Normalized,
			pgvector.NewVector(float32Slice(w.Embedding)))
		if err != nil {
			log.Fatalf("Failed to upsert window %d:%d:%d-%d: %v", w.BookID, w.Chapter, w.VerseStart, w.VerseEnd, err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit windows: %v", err)
	}
}

func float32Slice(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
