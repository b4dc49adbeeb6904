package models

import (
	"fmt"
	"time"
)

// Verse is one scripture verse row, the source of truth for citation text.
// The retrieval pipeline only ever reads verses.
type Verse struct {
	VersionID  string `json:"version_id" db:"version_id"`
	BookID     int    `json:"book_id" db:"book_id"`
	BookName   string `json:"book_name" db:"book_name"`
	Chapter    int    `json:"chapter" db:"chapter"`
	Verse      int    `json:"verse" db:"verse"`
	Text       string `json:"text" db:"text"`
	Normalized string `json:"-" db:"normalized"`
}

// Book is one book row of a Bible version
type Book struct {
	VersionID    string `json:"version_id" db:"version_id"`
	BookID       int    `json:"book_id" db:"book_id"`
	OsisCode     string `json:"osis_code" db:"osis_code"`
	KoName       string `json:"ko_name" db:"ko_name"`
	Abbr         string `json:"abbr" db:"abbr"`
	ChapterCount int    `json:"chapter_count" db:"chapter_count"`
	Testament    string `json:"testament" db:"testament"`
}

// VerseWindow is a derived overlapping span of consecutive verses within one
// chapter, the unit of vector embedding. Built offline, read-only at serving
// time.
type VerseWindow struct {
	VersionID  string    `db:"version_id"`
	BookID     int       `db:"book_id"`
	Chapter    int       `db:"chapter"`
	VerseStart int       `db:"verse_start"`
	VerseEnd   int       `db:"verse_end"`
	Text       string    `db:"text"`
	Normalized string    `db:"normalized"`
	Embedding  []float64 `db:"-"`
}

// VerseKey identifies a verse within one version
type VerseKey struct {
	BookID  int
	Chapter int
	Verse   int
}

// String renders the key as "book:chapter:verse"
func (k VerseKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.BookID, k.Chapter, k.Verse)
}

// Chapter is a chapter payload with its content hash
type Chapter struct {
	ContentHash string         `json:"content_hash"`
	Verses      []ChapterVerse `json:"verses"`
}

// ChapterVerse is one verse of a chapter listing
type ChapterVerse struct {
	Verse int    `json:"verse" db:"verse"`
	Text  string `json:"text" db:"text"`
}

// Message is one turn of a conversation
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is the running state of one counseling chat
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	DeviceID       string    `json:"device_id,omitempty"`
	Locale         string    `json:"locale,omitempty"`
	VersionID      string    `json:"version_id"`
	StoreMessages  bool      `json:"store_messages"`
	Summary        string    `json:"summary"`
	CreatedAt      time.Time `json:"created_at"`
	Messages       []Message `json:"messages"`
}
