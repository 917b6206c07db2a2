package core

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Registry is the in-memory table of active rooms keyed by code.
// It is not safe for concurrent use; the Hub loop owns it.
type Registry struct {
	rooms       map[string]*Room
	historySize int
	newCode     CodeGenerator
	now         func() time.Time
	log         *zerolog.Logger
}

// NewRegistry creates an empty registry. A nil generator uses RandomCode.
func NewRegistry(historySize int, gen CodeGenerator, logger *zerolog.Logger) *Registry {
	if gen == nil {
		gen = RandomCode
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		historySize: historySize,
		newCode:     gen,
		now:         time.Now,
		log:         logger,
	}
}

// CreateRoom allocates a fresh unique code and an empty room hosted by
// hostID. The host is not added as a member; call AddClient.
func (r *Registry) CreateRoom(hostID string) (*Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := strings.ToUpper(r.newCode())
		if _, taken := r.rooms[code]; taken {
			continue
		}
		room := newRoom(code, hostID, r.historySize, r.now())
		r.rooms[code] = room
		r.log.Info().Str("room_code", code).Str("host_id", hostID).Msg("room created")
		return room, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// GetRoom looks a room up by code, ignoring case.
func (r *Registry) GetRoom(code string) *Room {
	return r.rooms[normalizeCode(code)]
}

// Len returns the number of active rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}

// AddClient inserts a member. Its IsHost flag mirrors the room host.
func (r *Registry) AddClient(room *Room, c *RoomClient) {
	room.add(c)
	if room.Client(room.HostID) == nil {
		// the designated host never arrived; the first member takes over
		room.setHost(room.order[0])
	}
}

// RemoveClient deletes a member, hands host authority to the earliest
// remaining member if needed and deletes the room once it is empty.
func (r *Registry) RemoveClient(room *Room, id string) (removed *RoomClient, deleted bool) {
	removed = room.remove(id)
	if removed == nil {
		return nil, false
	}
	removed.IsHost = false

	if room.Empty() {
		delete(r.rooms, room.Code)
		r.log.Info().Str("room_code", room.Code).Msg("room deleted")
		return removed, true
	}

	if room.HostID == id {
		next := room.order[0]
		room.setHost(next)
		r.log.Info().Str("room_code", room.Code).Str("host_id", next).Msg("host transferred")
	}
	return removed, false
}

// Broadcast encodes ev once and sends it to every member except excludeID.
// A failed send is logged and does not stop delivery to the others.
func (r *Registry) Broadcast(room *Room, ev Event, excludeID string) int {
	frame, err := EncodeEvent(ev)
	if err != nil {
		r.log.Error().Err(err).Str("event", ev.EventType()).Msg("encode event")
		return 0
	}

	delivered := 0
	for _, id := range room.order {
		if id == excludeID {
			continue
		}
		c := room.clients[id]
		if c.transport == nil {
			continue
		}
		if err := c.transport.Send(frame); err != nil {
			r.log.Debug().Err(err).Str("room_code", room.Code).Str("client_id", id).Msg("broadcast send failed")
			continue
		}
		delivered++
	}
	return delivered
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
