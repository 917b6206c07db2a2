package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/service/library"
	"github.com/vovakirdan/watchparty-server/internal/store"
)

const (
	defaultWatchesLimit = 50
	maxWatchesLimit     = 200
)

// LibraryHandlers serves the signed-in user's shared library and watch history.
type LibraryHandlers struct {
	library *library.Service
	log     *zerolog.Logger
}

// NewLibraryHandlers creates a new library handlers instance.
func NewLibraryHandlers(lib *library.Service, logger *zerolog.Logger) *LibraryHandlers {
	return &LibraryHandlers{
		library: lib,
		log:     logger,
	}
}

// AddLibraryRequest puts a show on the list shared with PartnerID.
type AddLibraryRequest struct {
	PartnerID int64           `json:"partner_id" binding:"required,gt=0"`
	SourceURL string          `json:"source_url" binding:"required,max=2048"`
	Show      json.RawMessage `json:"show,omitempty"`
}

// LibraryEntryResponse is one show on a shared list.
type LibraryEntryResponse struct {
	PartnerID int64           `json:"partner_id"`
	SourceURL string          `json:"source_url"`
	Show      json.RawMessage `json:"show,omitempty"`
	Status    string          `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SharedWatchResponse is one episode watched together.
type SharedWatchResponse struct {
	ID        int64           `json:"id"`
	PartnerID int64           `json:"partner_id"`
	RoomCode  string          `json:"room_code"`
	SourceURL string          `json:"source_url,omitempty"`
	Show      json.RawMessage `json:"show,omitempty"`
	Episode   json.RawMessage `json:"episode,omitempty"`
	StreamURL string          `json:"stream_url,omitempty"`
	WatchedAt time.Time       `json:"watched_at"`
}

// ListLibrary returns every show the user shares with someone.
// GET /api/library
func (h *LibraryHandlers) ListLibrary(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	entries, err := h.library.List(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list library")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]LibraryEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, libraryEntryResponse(uid, e))
	}
	c.JSON(http.StatusOK, gin.H{"entries": resp})
}

// AddToLibrary adds a show as plan_to_watch.
// POST /api/library
func (h *LibraryHandlers) AddToLibrary(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req AddLibraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid add library request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.library.Add(c.Request.Context(), uid, req.PartnerID, req.SourceURL, string(req.Show))
	if err != nil {
		switch {
		case errors.Is(err, library.ErrSamePartner), errors.Is(err, library.ErrMissingSource):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.Is(err, library.ErrPartnerNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to add library entry")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, libraryEntryResponse(uid, entry))
}

// ListWatches returns recent episodes watched together.
// GET /api/watches?limit=N
func (h *LibraryHandlers) ListWatches(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := defaultWatchesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxWatchesLimit)
	}

	watches, err := h.library.Watches(c.Request.Context(), uid, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list watches")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]SharedWatchResponse, 0, len(watches))
	for _, w := range watches {
		resp = append(resp, SharedWatchResponse{
			ID:        w.ID,
			PartnerID: partnerOf(uid, w.UserA, w.UserB),
			RoomCode:  w.RoomCode,
			SourceURL: w.SourceURL,
			Show:      rawJSON(w.Show),
			Episode:   rawJSON(w.Episode),
			StreamURL: w.StreamURL,
			WatchedAt: w.WatchedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"watches": resp})
}

func libraryEntryResponse(uid int64, e *store.LibraryEntry) LibraryEntryResponse {
	return LibraryEntryResponse{
		PartnerID: partnerOf(uid, e.UserA, e.UserB),
		SourceURL: e.SourceURL,
		Show:      rawJSON(e.Show),
		Status:    string(e.Status),
		UpdatedAt: e.UpdatedAt,
	}
}

func partnerOf(uid, a, b int64) int64 {
	if uid == a {
		return b
	}
	return a
}

// rawJSON passes stored JSON through, dropping anything that is not valid.
func rawJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}
