package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/counsel-scripture-api/internal/config"
	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
)

// fakeVerseRepo serves a small fixed corpus keyed by book/chapter/verse.
type fakeVerseRepo struct {
	verses []models.Verse
	books  []models.Book
}

func newFakeVerseRepo() *fakeVerseRepo {
	return &fakeVerseRepo{
		books: []models.Book{
			{VersionID: "krv", BookID: 1, OsisCode: "Gen", KoName: "창세기", Abbr: "창", ChapterCount: 50, Testament: "OT"},
			{VersionID: "krv", BookID: 19, OsisCode: "Ps", KoName: "시편", Abbr: "시", ChapterCount: 150, Testament: "OT"},
			{VersionID: "krv", BookID: 40, OsisCode: "Matt", KoName: "마태복음", Abbr: "마", ChapterCount: 28, Testament: "NT"},
			{VersionID: "krv", BookID: 50, OsisCode: "Phil", KoName: "빌립보서", Abbr: "빌", ChapterCount: 4, Testament: "NT"},
		},
		verses: []models.Verse{
			{VersionID: "krv", BookID: 1, BookName: "창세기", Chapter: 1, Verse: 1, Text: "태초에 하나님이 천지를 창조하시니라"},
			{VersionID: "krv", BookID: 1, BookName: "창세기", Chapter: 1, Verse: 2, Text: "땅이 혼돈하고 공허하며 흑암이 깊음 위에 있고"},
			{VersionID: "krv", BookID: 19, BookName: "시편", Chapter: 23, Verse: 1, Text: "여호와는 나의 목자시니 내게 부족함이 없으리로다"},
			{VersionID: "krv", BookID: 19, BookName: "시편", Chapter: 56, Verse: 3, Text: "내가 두려워하는 날에는 주를 의지하리이다"},
			{VersionID: "krv", BookID: 40, BookName: "마태복음", Chapter: 11, Verse: 28, Text: "수고하고 무거운 짐 진 자들아 다 내게로 오라 내가 너희를 쉬게 하리라"},
			{VersionID: "krv", BookID: 50, BookName: "빌립보서", Chapter: 4, Verse: 6, Text: "아무 것도 염려하지 말고 다만 모든 일에 기도와 간구로 너희 구할 것을 감사함으로 하나님께 아뢰라"},
		},
	}
}

func (f *fakeVerseRepo) GetVerse(ctx context.Context, versionID string, bookID, chapter, verse int) (*models.Verse, error) {
	for _, v := range f.verses {
		if v.VersionID == versionID && v.BookID == bookID && v.Chapter == chapter && v.Verse == verse {
			out := v
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeVerseRepo) resolveBook(versionID, bookName string) (*models.Book, error) {
	for _, b := range f.books {
		if b.VersionID == versionID && (b.KoName == bookName || b.Abbr == bookName || b.OsisCode == bookName) {
			out := b
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeVerseRepo) GetVerseByBookName(ctx context.Context, versionID, bookName string, chapter, verse int) (*models.Verse, error) {
	book, err := f.resolveBook(versionID, bookName)
	if err != nil {
		return nil, err
	}
	return f.GetVerse(ctx, versionID, book.BookID, chapter, verse)
}

func (f *fakeVerseRepo) GetVerseRange(ctx context.Context, versionID, bookName string, chapter, verseStart, verseEnd int) ([]models.Verse, error) {
	book, err := f.resolveBook(versionID, bookName)
	if err != nil {
		return nil, err
	}
	var out []models.Verse
	for _, v := range f.verses {
		if v.VersionID == versionID && v.BookID == book.BookID && v.Chapter == chapter &&
			v.Verse >= verseStart && v.Verse <= verseEnd {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVerseRepo) ListBooks(ctx context.Context, versionID string) ([]models.Book, error) {
	return f.books, nil
}

func (f *fakeVerseRepo) GetChapter(ctx context.Context, versionID string, bookID, chapter int) (*models.Chapter, error) {
	var verses []models.ChapterVerse
	for _, v := range f.verses {
		if v.VersionID == versionID && v.BookID == bookID && v.Chapter == chapter {
			verses = append(verses, models.ChapterVerse{Verse: v.Verse, Text: v.Text})
		}
	}
	if len(verses) == 0 {
		return nil, repository.ErrNotFound
	}
	return &models.Chapter{ContentHash: "test", Verses: verses}, nil
}

// fakeLexicalRepo returns canned results per query substring; queries that
// match nothing report zero results.
type fakeLexicalRepo struct {
	resultsFor func(query string) []models.SearchItem
	queries    []string
	err        error
}

func (f *fakeLexicalRepo) SearchVerses(ctx context.Context, versionID, query string, limit, offset int) (models.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return models.SearchResult{}, f.err
	}
	items := f.resultsFor(query)
	if len(items) > limit {
		items = items[:limit]
	}
	return models.SearchResult{Total: len(items), Items: items}, nil
}

// fakeVectorRepo serves a fixed window result set and records calls.
type fakeVectorRepo struct {
	items  []models.VectorItem
	called int
	err    error
}

func (f *fakeVectorRepo) SearchWindows(ctx context.Context, versionID string, embedding []float64, topK, windowSize int) ([]models.VectorItem, error) {
	f.called++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// fakeEmbedder returns a fixed vector for every text.
type fakeEmbedder struct {
	dims int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType pkgservices.TaskType) ([]float64, error) {
	return make([]float64, f.dims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType pkgservices.TaskType) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = make([]float64, f.dims)
	}
	return out, nil
}

func testEventLogger(t *testing.T) *EventLogger {
	t.Helper()
	return NewEventLogger(filepath.Join(t.TempDir(), "events.log"), "test-salt")
}

func testPipelineConfig() *config.Config {
	return &config.Config{
		TrgmSimilarityThreshold: 0.3,
		MinCitationRank:         0.05,
		MinCitationTrgm:         0.3,
		MinCitationKeywordHits:  1,
		CitationLimit:           2,
		MaxQueryTerms:           20,
		SynonymsPerTerm:         2,
		VectorEnabled:           false,
		VectorTopK:              50,
		VectorWindowSize:        5,
		RerankMode:              "off",
		RerankCandidates:        30,
		RecentTurns:             8,
		SummaryTriggerTurns:     30,
		SummaryMaxChars:         800,
		RetrievalSlowMs:         2000,
		LLMSlowMs:               2000,
	}
}
