package core

import (
	"context"
	"encoding/json"
	"time"
)

// SharedWatch describes an episode started while at least two
// authenticated accounts shared a room.
type SharedWatch struct {
	RoomCode  string
	UserIDs   []string
	Show      json.RawMessage
	SourceURL string
	Episode   json.RawMessage
	StreamURL string
	StartedAt time.Time
}

// WatchRecorder is the durable sink for shared watches. Calls are fire and
// forget from the Hub's point of view.
type WatchRecorder interface {
	RecordSharedWatch(ctx context.Context, w SharedWatch) error
}

func (h *Hub) recordSharedWatch(w SharedWatch) {
	if h.recorder == nil {
		return
	}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				h.log.Error().Interface("panic", p).Str("room_code", w.RoomCode).Msg("shared watch recorder panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(h.baseCtx, h.recordTimeout)
		defer cancel()

		if err := h.recorder.RecordSharedWatch(ctx, w); err != nil {
			h.log.Warn().Err(err).Str("room_code", w.RoomCode).Msg("record shared watch")
			return
		}
		h.log.Debug().Str("room_code", w.RoomCode).Strs("user_ids", w.UserIDs).Msg("shared watch recorded")
	}()
}
