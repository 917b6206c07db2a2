package core

import "strings"

const defaultDisplayName = "Guest"

func (h *Hub) identify(s *session, cmd CommandIdentify) {
	if name := strings.TrimSpace(cmd.Name); name != "" {
		s.name = name
	}
	if cmd.UserID != "" {
		s.userID = cmd.UserID
	}
	if _, c := h.member(s); c != nil {
		c.Name = s.name
		c.UserID = s.userID
	}
}

func (h *Hub) join(s *session, t Transport, cmd CommandJoin) {
	s.name = firstNonEmpty(strings.TrimSpace(cmd.Name), s.name, defaultDisplayName)
	s.userID = firstNonEmpty(cmd.UserID, s.userID)
	code := normalizeCode(cmd.RoomCode)

	// same identity, same room: swap the connection and keep the slot
	if s.bound() && code != "" && code == s.roomCode {
		if room, c := h.member(s); room != nil {
			h.reattach(s, room, c, t)
			return
		}
	}

	var target *Room
	if code != "" {
		target = h.registry.GetRoom(code)
		if target == nil {
			h.log.Debug().Str("client_id", s.clientID).Str("room_code", code).Msg("join unknown room")
			h.sendTo(t, EventError{Message: "Room not found"})
			return
		}
	}

	if s.bound() {
		h.leaveRoom(s)
	}

	if target == nil {
		room, err := h.registry.CreateRoom(s.clientID)
		if err != nil {
			h.log.Error().Err(err).Str("client_id", s.clientID).Msg("create room")
			h.sendTo(t, EventError{Message: "Could not create room"})
			return
		}
		target = room
	}

	if c := target.Client(s.clientID); c != nil {
		c.Name = s.name
		c.UserID = s.userID
		h.reattach(s, target, c, t)
		return
	}

	c := &RoomClient{ID: s.clientID, Name: s.name, UserID: s.userID, transport: t}
	h.registry.AddClient(target, c)
	s.roomCode = target.Code
	s.transport = t

	h.log.Info().
		Str("client_id", s.clientID).
		Str("room_code", target.Code).
		Bool("is_host", c.IsHost).
		Int("clients", target.Len()).
		Msg("client joined room")

	h.sendTo(t, EventRoomInfo{Room: target.Snapshot(s.clientID)})
	h.registry.Broadcast(target, EventUserJoined{
		Name:    c.Name,
		Count:   target.Len(),
		Viewers: target.Viewers(),
	}, s.clientID)
}

// reattach points an existing membership at a new connection without
// telling anyone else.
func (h *Hub) reattach(s *session, room *Room, c *RoomClient, t Transport) {
	s.cancelGrace()
	c.transport = t
	s.transport = t
	s.roomCode = room.Code

	h.log.Info().Str("client_id", s.clientID).Str("room_code", room.Code).Msg("client reattached")
	h.sendTo(t, EventRoomInfo{Room: room.Snapshot(s.clientID)})
}

func (h *Hub) disconnect(s *session) {
	if !s.bound() {
		return
	}
	h.leaveRoom(s)
}

// leaveRoom removes the session's membership, notifies the rest of the
// room and unbinds the session.
func (h *Hub) leaveRoom(s *session) {
	s.cancelGrace()
	code := s.roomCode
	s.roomCode = ""

	room := h.registry.GetRoom(code)
	if room == nil {
		return
	}
	prevHost := room.HostID
	removed, deleted := h.registry.RemoveClient(room, s.clientID)
	if removed == nil {
		return
	}
	h.log.Info().Str("client_id", s.clientID).Str("room_code", code).Bool("room_deleted", deleted).Msg("client left room")
	if deleted {
		return
	}

	h.registry.Broadcast(room, EventUserLeft{
		Name:    removed.Name,
		Count:   room.Len(),
		Viewers: room.Viewers(),
	}, "")

	if room.HostID != prevHost {
		// the promoted member has to learn it now drives playback
		if next := room.Client(room.HostID); next != nil {
			h.sendTo(next.transport, EventRoomInfo{Room: room.Snapshot(next.ID)})
		}
	}
}

func (h *Hub) handleTransportClosed(t Transport) {
	if t == nil {
		return
	}
	clientID, ok := h.conns[t.ID()]
	if !ok {
		return
	}
	delete(h.conns, t.ID())

	s := h.sessions[clientID]
	if s == nil || s.transport == nil || s.transport.ID() != t.ID() {
		// the identity already moved to a newer connection
		return
	}
	if _, c := h.member(s); c == nil {
		delete(h.sessions, clientID)
		return
	}

	s.cancelGrace()
	h.timerSeq++
	s.grace = startGraceTimer(h.timerSeq, h.gracePeriod, func(gen uint64) {
		h.post(graceExpired{clientID: clientID, gen: gen})
	})
	h.log.Info().
		Str("client_id", clientID).
		Str("room_code", s.roomCode).
		Dur("grace_period", h.gracePeriod).
		Msg("transport closed, holding slot")
}

func (h *Hub) handleGraceExpired(m graceExpired) {
	s := h.sessions[m.clientID]
	if s == nil || !s.grace.live(m.gen) {
		return
	}
	s.grace = nil
	h.log.Info().Str("client_id", m.clientID).Str("room_code", s.roomCode).Msg("grace period expired")
	h.leaveRoom(s)
	delete(h.sessions, m.clientID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
