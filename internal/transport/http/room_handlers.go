package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/core"
)

// RoomHandlers answers questions about live rooms without joining them.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// GetRoom reports whether a room exists and who is in it. Codes match
// case-insensitively.
// GET /api/rooms/:code
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	summary, err := h.hub.LookupRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		case errors.Is(err, core.ErrHubStopped):
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "shutting down"})
		default:
			h.log.Warn().Err(err).Msg("room lookup failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}
