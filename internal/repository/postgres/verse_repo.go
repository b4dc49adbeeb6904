package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/jmoiron/sqlx"
)

// VerseRepository implements repository.VerseRepository for PostgreSQL
type VerseRepository struct {
	db *sqlx.DB
}

// NewVerseRepository creates a new PostgreSQL verse repository
func NewVerseRepository(db *sqlx.DB) repository.VerseRepository {
	return &VerseRepository{db: db}
}

// GetVerse fetches one verse by exact identity
func (r *VerseRepository) GetVerse(ctx context.Context, versionID string, bookID, chapter, verse int) (*models.Verse, error) {
	var v models.Verse
	err := r.db.GetContext(ctx, &v, `
		SELECT v.version_id, v.book_id, b.ko_name AS book_name, v.chapter, v.verse, v.text, v.normalized
		FROM bible_verse v
		JOIN bible_book b
		  ON b.version_id = v.version_id AND b.book_id = v.book_id
		WHERE v.version_id = $1 AND v.book_id = $2 AND v.chapter = $3 AND v.verse = $4
	`, versionID, bookID, chapter, verse)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verse: %w", err)
	}
	return &v, nil
}

func (r *VerseRepository) resolveBook(ctx context.Context, versionID, bookName string) (*models.Book, error) {
	var b models.Book
	var err error
	if id, convErr := strconv.Atoi(bookName); convErr == nil {
		err = r.db.GetContext(ctx, &b, `
			SELECT version_id, book_id, osis_code, ko_name, abbr, chapter_count, testament
			FROM bible_book
			WHERE version_id = $1 AND book_id = $2
		`, versionID, id)
	} else {
		err = r.db.GetContext(ctx, &b, `
			SELECT version_id, book_id, osis_code, ko_name, abbr, chapter_count, testament
			FROM bible_book
			WHERE version_id = $1
			  AND (ko_name = $2 OR abbr = $2 OR upper(osis_code) = upper($2))
		`, versionID, bookName)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve book: %w", err)
	}
	return &b, nil
}

// GetVerseByBookName resolves the book by id, Korean name, abbreviation, or
// OSIS code, then fetches the verse
func (r *VerseRepository) GetVerseByBookName(ctx context.Context, versionID, bookName string, chapter, verse int) (*models.Verse, error) {
	book, err := r.resolveBook(ctx, versionID, bookName)
	if err != nil {
		return nil, err
	}
	return r.GetVerse(ctx, versionID, book.BookID, chapter, verse)
}

// GetVerseRange resolves the book and fetches a contiguous verse range within
// one chapter, in verse order
func (r *VerseRepository) GetVerseRange(ctx context.Context, versionID, bookName string, chapter, verseStart, verseEnd int) ([]models.Verse, error) {
	book, err := r.resolveBook(ctx, versionID, bookName)
	if err != nil {
		return nil, err
	}

	var verses []models.Verse
	err = r.db.SelectContext(ctx, &verses, `
		SELECT v.version_id, v.book_id, b.ko_name AS book_name, v.chapter, v.verse, v.text, v.normalized
		FROM bible_verse v
		JOIN bible_book b
		  ON b.version_id = v.version_id AND b.book_id = v.book_id
		WHERE v.version_id = $1 AND v.book_id = $2 AND v.chapter = $3
		  AND v.verse BETWEEN $4 AND $5
		ORDER BY v.verse
	`, versionID, book.BookID, chapter, verseStart, verseEnd)
	if err != nil {
		return nil, fmt.Errorf("get verse range: %w", err)
	}
	if len(verses) == 0 {
		return nil, repository.ErrNotFound
	}
	return verses, nil
}

// ListBooks returns the books of a version in canonical order
func (r *VerseRepository) ListBooks(ctx context.Context, versionID string) ([]models.Book, error) {
	var books []models.Book
	err := r.db.SelectContext(ctx, &books, `
		SELECT version_id, book_id, osis_code, ko_name, abbr, chapter_count, testament
		FROM bible_book
		WHERE version_id = $1
		ORDER BY book_id
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if len(books) == 0 {
		return nil, repository.ErrNotFound
	}
	return books, nil
}

// GetChapter returns a chapter's verses along with its content hash
func (r *VerseRepository) GetChapter(ctx context.Context, versionID string, bookID, chapter int) (*models.Chapter, error) {
	var contentHash string
	err := r.db.GetContext(ctx, &contentHash, `
		SELECT content_hash
		FROM bible_chapter_hash
		WHERE version_id = $1 AND book_id = $2 AND chapter = $3
	`, versionID, bookID, chapter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter hash: %w", err)
	}

	var verses []models.ChapterVerse
	err = r.db.SelectContext(ctx, &verses, `
		SELECT verse, text
		FROM bible_verse
		WHERE version_id = $1 AND book_id = $2 AND chapter = $3
		ORDER BY verse
	`, versionID, bookID, chapter)
	if err != nil {
		return nil, fmt.Errorf("get chapter verses: %w", err)
	}

	return &models.Chapter{ContentHash: contentHash, Verses: verses}, nil
}
