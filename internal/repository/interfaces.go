package repository

import (
	"context"
	"errors"

	"github.com/counsel-scripture-api/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// LexicalSearchRepository defines full-text + trigram search over the verse corpus
type LexicalSearchRepository interface {
	// SearchVerses returns the page of verses matching the query under the
	// generous union policy (full-text OR substring OR trigram similarity)
	SearchVerses(ctx context.Context, versionID, query string, limit, offset int) (models.SearchResult, error)
}

// VectorSearchRepository defines nearest-neighbor search over verse windows
type VectorSearchRepository interface {
	// SearchWindows returns up to topK windows of exactly windowSize verses
	// by ascending distance, exploded to one item per verse
	SearchWindows(ctx context.Context, versionID string, embedding []float64, topK, windowSize int) ([]models.VectorItem, error)
}

// VerseRepository is the source-of-truth read surface for verses and books
type VerseRepository interface {
	// GetVerse fetches one verse by exact identity
	GetVerse(ctx context.Context, versionID string, bookID, chapter, verse int) (*models.Verse, error)

	// GetVerseByBookName resolves a book by id, Korean name, abbreviation, or
	// OSIS code and fetches one verse
	GetVerseByBookName(ctx context.Context, versionID, bookName string, chapter, verse int) (*models.Verse, error)

	// GetVerseRange resolves a book the same way and fetches a contiguous
	// verse range within one chapter
	GetVerseRange(ctx context.Context, versionID, bookName string, chapter, verseStart, verseEnd int) ([]models.Verse, error)

	// ListBooks returns the books of a version in canonical order
	ListBooks(ctx context.Context, versionID string) ([]models.Book, error)

	// GetChapter returns a chapter's verses with its content hash
	GetChapter(ctx context.Context, versionID string, bookID, chapter int) (*models.Chapter, error)
}

// SynonymRepository defines the persisted synonym table lookup
type SynonymRepository interface {
	// Lookup returns the stored synonyms for each term that has any
	Lookup(ctx context.Context, terms []string) (map[string][]string, error)
}

// ConversationRepository persists conversations when message storage is on
type ConversationRepository interface {
	Insert(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	Delete(ctx context.Context, conversationID string) (bool, error)
	AddMessage(ctx context.Context, conversationID string, msg models.Message) error
	SetSummary(ctx context.Context, conversationID, summary string) error
}
