package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/counsel-scripture-api/internal/services"
	"github.com/labstack/echo/v4"
)

// SearchHandler handles Bible browsing and lexical search endpoints
type SearchHandler struct {
	verses   repository.VerseRepository
	lexical  repository.LexicalSearchRepository
	events   *services.EventLogger
	slowOver time.Duration
}

// NewSearchHandler creates a new search handler. slowMs is the latency above
// which a search_slow event is logged.
func NewSearchHandler(verses repository.VerseRepository, lexical repository.LexicalSearchRepository, events *services.EventLogger, slowMs int) *SearchHandler {
	return &SearchHandler{
		verses:   verses,
		lexical:  lexical,
		events:   events,
		slowOver: time.Duration(slowMs) * time.Millisecond,
	}
}

func versionParam(c echo.Context) string {
	version := c.QueryParam("version")
	if version == "" {
		return "krv"
	}
	return version
}

// ListBooks handles GET /bible/books
func (h *SearchHandler) ListBooks(c echo.Context) error {
	ctx := c.Request().Context()
	books, err := h.verses.ListBooks(ctx, versionParam(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list books: "+err.Error())
	}
	return c.JSON(http.StatusOK, models.BooksResponse{Items: books})
}

// GetChapter handles GET /bible/:book/:chapter
func (h *SearchHandler) GetChapter(c echo.Context) error {
	ctx := c.Request().Context()
	versionID := versionParam(c)

	chapter, err := strconv.Atoi(c.Param("chapter"))
	if err != nil || chapter < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid chapter")
	}

	bookID, err := h.resolveBookID(c, versionID, c.Param("book"))
	if err != nil {
		return err
	}

	result, err := h.verses.GetChapter(ctx, versionID, bookID, chapter)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Chapter not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch chapter: "+err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// GetRef handles GET /bible/ref - fetch a verse or verse range by reference.
// Accepts either explicit chapter and verse params, or a compact reference
// such as "창1:1" or "요한복음 3장 16절" in the book param alone.
func (h *SearchHandler) GetRef(c echo.Context) error {
	ctx := c.Request().Context()
	versionID := versionParam(c)

	book := strings.TrimSpace(c.QueryParam("book"))
	if book == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "book is required")
	}

	var chapter, verse int
	if c.QueryParam("chapter") != "" && c.QueryParam("verse") != "" {
		var err error
		chapter, err = strconv.Atoi(c.QueryParam("chapter"))
		if err != nil || chapter < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid chapter")
		}
		verse, err = strconv.Atoi(c.QueryParam("verse"))
		if err != nil || verse < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid verse")
		}
	} else {
		var err error
		book, chapter, verse, err = services.ParseReference(book)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid reference")
		}
	}
	verseEnd := verse
	if raw := c.QueryParam("verse_end"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < verse {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid verse_end")
		}
		verseEnd = parsed
	}

	if verseEnd == verse {
		result, err := h.verses.GetVerseByBookName(ctx, versionID, book, chapter, verse)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "Verse not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch verse: "+err.Error())
		}
		return c.JSON(http.StatusOK, result)
	}

	result, err := h.verses.GetVerseRange(ctx, versionID, book, chapter, verse, verseEnd)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Verses not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch verses: "+err.Error())
	}
	if len(result) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Verses not found")
	}
	return c.JSON(http.StatusOK, result)
}

// Search handles GET /search - lexical full-text search with pagination
func (h *SearchHandler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	versionID := versionParam(c)

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 50 {
			limit = parsed
		}
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	started := time.Now()
	result, err := h.lexical.SearchVerses(ctx, versionID, query, limit, offset)
	elapsed := time.Since(started)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Search failed: "+err.Error())
	}

	h.events.Log("search_latency", map[string]interface{}{
		"query_hash": h.events.HashID(query),
		"elapsed_ms": elapsed.Milliseconds(),
		"total":      result.Total,
	})
	if elapsed > h.slowOver {
		h.events.Log("search_slow", map[string]interface{}{
			"query_hash": h.events.HashID(query),
			"elapsed_ms": elapsed.Milliseconds(),
		})
	}
	if result.Total == 0 {
		h.events.Log("search_zero", map[string]interface{}{
			"query_hash": h.events.HashID(query),
		})
	}

	return c.JSON(http.StatusOK, result)
}

// resolveBookID accepts a numeric book id or a Korean name, abbreviation, or
// OSIS code
func (h *SearchHandler) resolveBookID(c echo.Context, versionID, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if bookID, err := strconv.Atoi(raw); err == nil {
		return bookID, nil
	}

	books, err := h.verses.ListBooks(c.Request().Context(), versionID)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve book: "+err.Error())
	}
	for _, book := range books {
		if book.KoName == raw || book.Abbr == raw || strings.EqualFold(book.OsisCode, raw) {
			return book.BookID, nil
		}
	}
	return 0, echo.NewHTTPError(http.StatusNotFound, "Book not found")
}

// RegisterRoutes registers Bible and search routes
func (h *SearchHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/bible/books", h.ListBooks)
	g.GET("/bible/ref", h.GetRef)
	g.GET("/bible/:book/:chapter", h.GetChapter)
	g.GET("/search", h.Search)
}
