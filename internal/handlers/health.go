package handlers

import (
	"net/http"

	"github.com/counsel-scripture-api/pkg/schema/db"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
)

// HealthHandler handles health check endpoints
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HealthResponse is the response for basic health check
type HealthResponse struct {
	Status string `json:"status"`
}

// DatabaseHealthResponse is the response for database health check
type DatabaseHealthResponse struct {
	Status     string   `json:"status"`
	Database   string   `json:"database"`
	Extensions []string `json:"extensions"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// PostgresHealth handles GET /health/postgres. Besides connectivity it
// reports the installed extensions the search pipeline relies on, so a
// database restored without pg_trgm or pgvector is visible here before
// it surfaces as empty search results.
func (h *HealthHandler) PostgresHealth(c echo.Context) error {
	if !db.PostgresEnabled() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_configured",
			"error":  "PostgreSQL is not configured",
		})
	}

	pgDB := db.GetPostgres()
	if pgDB == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "PostgreSQL connection not available",
		})
	}

	ctx := c.Request().Context()
	if err := pgDB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
	}

	var extensions []string
	if err := pgDB.SelectContext(ctx, &extensions,
		`SELECT extname FROM pg_extension WHERE extname = ANY($1) ORDER BY extname`,
		pq.Array([]string{"pg_trgm", "vector"}),
	); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, DatabaseHealthResponse{
		Status:     "connected",
		Database:   "postgres",
		Extensions: extensions,
	})
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/health/postgres", h.PostgresHealth)
}
