// setup
//
// Creates the database schema and optionally loads a Bible corpus.
//
// Usage:
//   go run ./scripts/setup -schema
//   go run ./scripts/setup -load -books=books.jsonl -verses=verses.jsonl -version=krv
//   go run ./scripts/setup -synonyms=synonyms.jsonl
//
// The verses file has one JSON object per line:
//   {"book_id": 1, "chapter": 1, "verse": 1, "text": "태초에 하나님이..."}
// The books file:
//   {"book_id": 1, "osis_code": "Gen", "ko_name": "창세기", "abbr": "창", "chapter_count": 50, "testament": "OT"}
// The synonyms file:
//   {"term": "불안", "synonyms": ["걱정", "염려"]}

package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/counsel-scripture-api/pkg/schema/db"
	"github.com/counsel-scripture-api/pkg/schema/textnorm"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

var schemaDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS bible_book (
		version_id    TEXT NOT NULL,
		book_id       INT  NOT NULL,
		osis_code     TEXT NOT NULL,
		ko_name       TEXT NOT NULL,
		abbr          TEXT NOT NULL,
		chapter_count INT  NOT NULL,
		testament     TEXT NOT NULL,
		PRIMARY KEY (version_id, book_id)
	)`,

	`CREATE TABLE IF NOT EXISTS bible_verse (
		version_id TEXT NOT NULL,
		book_id    INT  NOT NULL,
		chapter    INT  NOT NULL,
		verse      INT  NOT NULL,
		text       TEXT NOT NULL,
		normalized TEXT NOT NULL,
		search_vector tsvector GENERATED ALWAYS AS (to_tsvector('simple', normalized)) STORED,
		PRIMARY KEY (version_id, book_id, chapter, verse)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bible_verse_fts
		ON bible_verse USING GIN (search_vector)`,
	`CREATE INDEX IF NOT EXISTS idx_bible_verse_trgm
		ON bible_verse USING GIN (normalized gin_trgm_ops)`,

	`CREATE TABLE IF NOT EXISTS bible_verse_window (
		version_id  TEXT NOT NULL,
		book_id     INT  NOT NULL,
		chapter     INT  NOT NULL,
		verse_start INT  NOT NULL,
		verse_end   INT  NOT NULL,
		text        TEXT NOT NULL,
		normalized  TEXT NOT NULL DEFAULT '',
		embedding   vector(768),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (version_id, book_id, chapter, verse_start, verse_end)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bible_verse_window_embedding
		ON bible_verse_window USING ivfflat (embedding vector_l2_ops) WITH (lists = 100)`,

	`CREATE TABLE IF NOT EXISTS bible_chapter_hash (
		version_id   TEXT NOT NULL,
		book_id      INT  NOT NULL,
		chapter      INT  NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (version_id, book_id, chapter)
	)`,

	`CREATE TABLE IF NOT EXISTS search_synonym (
		term    TEXT NOT NULL,
		synonym TEXT NOT NULL,
		PRIMARY KEY (term, synonym)
	)`,

	`CREATE TABLE IF NOT EXISTS chat_conversation (
		conversation_id TEXT PRIMARY KEY,
		device_id       TEXT,
		locale          TEXT,
		version_id      TEXT NOT NULL,
		store_messages  BOOLEAN NOT NULL DEFAULT FALSE,
		summary         TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_message (
		id              BIGSERIAL PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES chat_conversation(conversation_id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_message_conversation
		ON chat_message (conversation_id, created_at)`,
}

type bookRow struct {
	BookID       int    `json:"book_id"`
	OsisCode     string `json:"osis_code"`
	KoName       string `json:"ko_name"`
	Abbr         string `json:"abbr"`
	ChapterCount int    `json:"chapter_count"`
	Testament    string `json:"testament"`
}

type verseRow struct {
	BookID  int    `json:"book_id"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

type synonymRow struct {
	Term     string   `json:"term"`
	Synonyms []string `json:"synonyms"`
}

func main() {
	createSchema := flag.Bool("schema", false, "Create tables and indexes")
	load := flag.Bool("load", false, "Load books and verses")
	booksPath := flag.String("books", "", "Books JSONL file")
	versesPath := flag.String("verses", "", "Verses JSONL file")
	synonymsPath := flag.String("synonyms", "", "Synonyms JSONL file")
	versionID := flag.String("version", "krv", "Bible version ID")
	flag.Parse()

	godotenv.Load()

	ctx := context.Background()
	if err := db.InitPostgres(ctx); err != nil {
		log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	defer db.ClosePostgres()
	pgDB := db.GetPostgres()

	ran := false
	if *createSchema {
		runSchema(ctx, pgDB)
		ran = true
	}
	if *load {
		if *booksPath == "" || *versesPath == "" {
			log.Fatal("-books and -verses are required with -load")
		}
		loadCorpus(ctx, pgDB, *versionID, *booksPath, *versesPath)
		ran = true
	}
	if *synonymsPath != "" {
		loadSynonyms(ctx, pgDB, *synonymsPath)
		ran = true
	}
	if !ran {
		fmt.Println("Nothing to do. Use -schema, -load, or -synonyms. See the file header for usage.")
	}
}

func runSchema(ctx context.Context, pgDB *sqlx.DB) {
	log.Println("Creating schema...")
	for _, stmt := range schemaDDL {
		if _, err := pgDB.ExecContext(ctx, stmt); err != nil {
			log.Fatalf("DDL failed: %v\n%s", err, stmt)
		}
	}
	log.Println("Schema ready")
}

func loadCorpus(ctx context.Context, pgDB *sqlx.DB, versionID, booksPath, versesPath string) {
	books := readJSONL[bookRow](booksPath)
	log.Printf("Loading %d books for version %s", len(books), versionID)
	for _, b := range books {
		_, err := pgDB.ExecContext(ctx, `
			INSERT INTO bible_book (version_id, book_id, osis_code, ko_name, abbr, chapter_count, testament)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (version_id, book_id) DO UPDATE
			SET osis_code = EXCLUDED.osis_code, ko_name = EXCLUDED.ko_name, abbr = EXCLUDED.abbr,
			    chapter_count = EXCLUDED.chapter_count, testament = EXCLUDED.testament
		`, versionID, b.BookID, b.OsisCode, b.KoName, b.Abbr, b.ChapterCount, b.Testament)
		if err != nil {
			log.Fatalf("Failed to insert book %d: %v", b.BookID, err)
		}
	}

	verses := readJSONL[verseRow](versesPath)
	log.Printf("Loading %d verses", len(verses))

	tx, err := pgDB.BeginTxx(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	chapters := map[string][]verseRow{}
	for i, v := range verses {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bible_verse (version_id, book_id, chapter, verse, text, normalized)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (version_id, book_id, chapter, verse) DO UPDATE
			SET text = EXCLUDED.text, normalized = EXCLUDED.normalized
		`, versionID, v.BookID, v.Chapter, v.Verse, v.Text, textnorm.Normalize(v.Text))
		if err != nil {
			log.Fatalf("Failed to insert verse %d:%d:%d: %v", v.BookID, v.Chapter, v.Verse, err)
		}
		key := fmt.Sprintf("%d:%d", v.BookID, v.Chapter)
		chapters[key] = append(chapters[key], v)
		if (i+1)%10000 == 0 {
			log.Printf("  %d verses inserted", i+1)
		}
	}

	log.Printf("Hashing %d chapters", len(chapters))
	for _, chapterVerses := range chapters {
		sort.Slice(chapterVerses, func(i, j int) bool {
			return chapterVerses[i].Verse < chapterVerses[j].Verse
		})
		h := sha256.New()
		for _, v := range chapterVerses {
			fmt.Fprintf(h, "%d\x00%s\x00", v.Verse, v.Text)
		}
		first := chapterVerses[0]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bible_chapter_hash (version_id, book_id, chapter, content_hash)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (version_id, book_id, chapter) DO UPDATE
			SET content_hash = EXCLUDED.content_hash
		`, versionID, first.BookID, first.Chapter, hex.EncodeToString(h.Sum(nil)))
		if err != nil {
			log.Fatalf("Failed to hash chapter %d:%d: %v", first.BookID, first.Chapter, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit corpus: %v", err)
	}
	log.Println("Corpus loaded")
}

func loadSynonyms(ctx context.Context, pgDB *sqlx.DB, path string) {
	rows := readJSONL[synonymRow](path)
	log.Printf("Loading synonyms for %d terms", len(rows))
	for _, row := range rows {
		term := strings.TrimSpace(row.Term)
		if term == "" {
			continue
		}
		for _, synonym := range row.Synonyms {
			synonym = strings.TrimSpace(synonym)
			if synonym == "" || synonym == term {
				continue
			}
			_, err := pgDB.ExecContext(ctx, `
				INSERT INTO search_synonym (term, synonym)
				VALUES ($1, $2)
				ON CONFLICT (term, synonym) DO NOTHING
			`, term, synonym)
			if err != nil {
				log.Fatalf("Failed to insert synonym %q -> %q: %v", term, synonym, err)
			}
		}
	}
	log.Println("Synonyms loaded")
}

func readJSONL[T any](path string) []T {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row T
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			log.Fatalf("Failed to parse line in %s: %v", path, err)
		}
		out = append(out, row)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	return out
}
