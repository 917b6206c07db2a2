package core

import (
	"encoding/json"
	"time"
)

// Transport is the current physical connection of a client. The core
// holds it as a replaceable reference; the connection lifecycle is owned
// by the transport layer, which reports closes to the Hub.
type Transport interface {
	// ID identifies the connection for logging and close tracking.
	ID() string
	// Send queues an encoded frame. It must not block.
	Send(frame []byte) error
}

// RoomClient is one participant's membership record.
type RoomClient struct {
	ID     string
	Name   string
	UserID string
	IsHost bool

	transport Transport
}

// Transport returns the client's current connection.
func (c *RoomClient) Transport() Transport {
	return c.transport
}

// Room is one shared-viewing session.
type Room struct {
	Code   string
	HostID string

	Show           json.RawMessage
	SourceURL      *string
	CurrentEpisode json.RawMessage
	StreamURL      *string
	IsPlaying      bool
	CurrentTime    float64
	LastSyncAt     time.Time

	CreatedAt time.Time
	Chat      *ChatStore

	clients map[string]*RoomClient
	order   []string
}

func newRoom(code, hostID string, historySize int, now time.Time) *Room {
	return &Room{
		Code:      code,
		HostID:    hostID,
		CreatedAt: now,
		Chat:      NewChatStore(historySize),
		clients:   make(map[string]*RoomClient),
	}
}

// Client returns the member with the given identity, or nil.
func (r *Room) Client(id string) *RoomClient {
	return r.clients[id]
}

// Clients returns members in join order.
func (r *Room) Clients() []*RoomClient {
	out := make([]*RoomClient, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.clients[id])
	}
	return out
}

// Len returns the number of members.
func (r *Room) Len() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

// Viewers returns member display names in join order.
func (r *Room) Viewers() []string {
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.clients[id].Name)
	}
	return names
}

// UserIDs returns the distinct non-empty account ids present in the room.
func (r *Room) UserIDs() []string {
	seen := make(map[string]struct{}, len(r.order))
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		uid := r.clients[id].UserID
		if uid == "" {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		ids = append(ids, uid)
	}
	return ids
}

// Snapshot builds the room-info payload for one member.
func (r *Room) Snapshot(forID string) RoomSnapshot {
	return RoomSnapshot{
		Code:           r.Code,
		HostID:         r.HostID,
		ClientID:       forID,
		IsHost:         r.HostID == forID,
		ClientCount:    r.Len(),
		Viewers:        r.Viewers(),
		Show:           r.Show,
		SourceURL:      r.SourceURL,
		CurrentEpisode: r.CurrentEpisode,
		StreamURL:      r.StreamURL,
		IsPlaying:      r.IsPlaying,
		CurrentTime:    r.CurrentTime,
		ChatHistory:    r.Chat.History(),
		ChatReactions:  r.Chat.Reactions(),
	}
}

func (r *Room) add(c *RoomClient) {
	if _, exists := r.clients[c.ID]; exists {
		return
	}
	r.clients[c.ID] = c
	r.order = append(r.order, c.ID)
	c.IsHost = r.HostID == c.ID
}

func (r *Room) remove(id string) *RoomClient {
	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	delete(r.clients, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return c
}

func (r *Room) setHost(id string) {
	if prev, ok := r.clients[r.HostID]; ok {
		prev.IsHost = false
	}
	r.HostID = id
	if next, ok := r.clients[id]; ok {
		next.IsHost = true
	}
}

// resetPlayback clears the episode pointer and transport state.
func (r *Room) resetPlayback() {
	r.CurrentEpisode = nil
	r.StreamURL = nil
	r.CurrentTime = 0
	r.IsPlaying = false
}
