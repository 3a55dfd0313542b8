package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/chat"
)

// HistoryHandlers provides HTTP handlers for message history reads.
type HistoryHandlers struct {
	history *chat.HistoryService
	log     *zerolog.Logger
}

// NewHistoryHandlers creates a new history handlers instance.
func NewHistoryHandlers(history *chat.HistoryService, logger *zerolog.Logger) *HistoryHandlers {
	return &HistoryHandlers{
		history: history,
		log:     logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GetMessages handles a paginated history read for one room.
// GET /api/rooms/:roomId/messages?limit=50&nextToken=...
func (h *HistoryHandlers) GetMessages(c *gin.Context) {
	roomID := c.Param("roomId")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer"})
			return
		}
		limit = parsed
	}

	page, err := h.history.Page(c.Request.Context(), roomID, limit, c.Query("nextToken"))
	if err != nil {
		var cerr *chat.Error
		if errors.As(err, &cerr) && chat.IsClientError(cerr.Code) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: cerr.Message})
			return
		}
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to read history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Str("room", roomID).Int("count", len(page.Items)).Msg("history page served")
	c.JSON(http.StatusOK, page)
}
