package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/counsel-scripture-api/internal/services"
	"github.com/labstack/echo/v4"
)

// ChatHandler handles conversation endpoints
type ChatHandler struct {
	chat *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// CreateConversation handles POST /chat/conversations
func (h *ChatHandler) CreateConversation(c echo.Context) error {
	var req models.ChatCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	conv := h.chat.CreateConversation(c.Request().Context(), req)
	return c.JSON(http.StatusCreated, conv)
}

// GetConversation handles GET /chat/conversations/:id
func (h *ChatHandler) GetConversation(c echo.Context) error {
	conv, err := h.chat.GetConversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteConversation handles DELETE /chat/conversations/:id
func (h *ChatHandler) DeleteConversation(c echo.Context) error {
	if !h.chat.DeleteConversation(c.Request().Context(), c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// PostMessage handles POST /chat/conversations/:id/messages
func (h *ChatHandler) PostMessage(c echo.Context) error {
	var req models.ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_message is required")
	}

	resp, err := h.chat.PostMessage(c.Request().Context(), c.Param("id"), req.UserMessage)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/chat/conversations", h.CreateConversation)
	g.GET("/chat/conversations/:id", h.GetConversation)
	g.DELETE("/chat/conversations/:id", h.DeleteConversation)
	g.POST("/chat/conversations/:id/messages", h.PostMessage)
}
