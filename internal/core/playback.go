package core

import "encoding/json"

// hostRoom returns the room if s is a member holding host authority.
// Commands from anyone else are dropped.
func (h *Hub) hostRoom(s *session, kind string) *Room {
	room, c := h.member(s)
	if room == nil {
		return nil
	}
	if room.HostID != c.ID {
		h.log.Debug().Str("client_id", c.ID).Str("room_code", room.Code).Str("command", kind).Msg("ignoring host command from non-host")
		return nil
	}
	return room
}

func (h *Hub) setShow(s *session, cmd CommandSetShow) {
	room := h.hostRoom(s, cmd.Kind())
	if room == nil {
		return
	}
	src := cmd.SourceURL
	room.Show = rawOrNil(cmd.Show)
	room.SourceURL = &src
	room.resetPlayback()
	room.LastSyncAt = h.now()

	h.registry.Broadcast(room, EventShowLoaded{Show: room.Show, SourceURL: src}, "")
}

func (h *Hub) selectEpisode(s *session, cmd CommandSelectEpisode) {
	room := h.hostRoom(s, cmd.Kind())
	if room == nil {
		return
	}
	room.CurrentEpisode = rawOrNil(cmd.Episode)
	room.StreamURL = nil
	room.CurrentTime = 0
	room.IsPlaying = false
}

func (h *Hub) streamReady(s *session, cmd CommandStreamReady) {
	room := h.hostRoom(s, cmd.Kind())
	if room == nil {
		return
	}
	url := cmd.StreamURL
	room.StreamURL = &url
	room.LastSyncAt = h.now()

	h.registry.Broadcast(room, EventEpisodeChanged{Episode: room.CurrentEpisode, StreamURL: url}, s.clientID)

	if ids := room.UserIDs(); len(ids) >= 2 {
		w := SharedWatch{
			RoomCode:  room.Code,
			UserIDs:   ids,
			Show:      room.Show,
			Episode:   room.CurrentEpisode,
			StreamURL: url,
			StartedAt: h.now(),
		}
		if room.SourceURL != nil {
			w.SourceURL = *room.SourceURL
		}
		h.recordSharedWatch(w)
	}
}

func (h *Hub) play(s *session, cmd CommandPlay) {
	room := h.hostRoom(s, cmd.Kind())
	if room == nil {
		return
	}
	if cmd.Time != nil {
		room.CurrentTime = *cmd.Time
	}
	room.IsPlaying = true
	room.LastSyncAt = h.now()
	h.registry.Broadcast(room, EventPlay{Time: room.CurrentTime}, s.clientID)
}

func (h *Hub) pause(s *session, cmd CommandPause) {
	room := h.hostRoom(s, cmd.Kind())
	if room == nil {
		return
	}
	if cmd.Time != nil {
		room.CurrentTime = *cmd.Time
	}
	room.IsPlaying = false
	room.LastSyncAt = h.now()
	h.registry.Broadcast(room, EventPause{Time: room.CurrentTime}, s.clientID)
}

func (h *Hub) seek(s *session, cmd CommandSeek) {
	room := h.hostRoom(s, cmd.Kind())
	if room == nil {
		return
	}
	room.CurrentTime = cmd.Time
	room.LastSyncAt = h.now()
	h.registry.Broadcast(room, EventSeek{Time: cmd.Time}, s.clientID)
}

// sync is the host heartbeat.
func (h *Hub) sync(s *session, cmd CommandSync) {
	room := h.hostRoom(s, cmd.Kind())
	if room == nil {
		return
	}
	room.CurrentTime = cmd.Time
	room.IsPlaying = cmd.IsPlaying
	room.LastSyncAt = h.now()
	h.registry.Broadcast(room, EventSync{Time: cmd.Time, IsPlaying: cmd.IsPlaying}, s.clientID)
}

// syncRequest answers only the requester, on the connection it asked from.
func (h *Hub) syncRequest(s *session, t Transport) {
	room, _ := h.member(s)
	if room == nil {
		return
	}
	h.sendTo(t, EventSync{Time: room.CurrentTime, IsPlaying: room.IsPlaying})
}

func rawOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
