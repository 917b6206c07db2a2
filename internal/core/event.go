package core

import (
	"encoding/json"

	"github.com/vovakirdan/watchparty-server/internal/proto"
)

// Event is sent to clients to describe what happened in a room.
// Field tags define the wire shape of the event payload.
type Event interface {
	EventType() string
}

// RoomSnapshot is the full room state as seen by one member.
type RoomSnapshot struct {
	Code           string                        `json:"code"`
	HostID         string                        `json:"hostId"`
	ClientID       string                        `json:"clientId"`
	IsHost         bool                          `json:"isHost"`
	ClientCount    int                           `json:"clientCount"`
	Viewers        []string                      `json:"viewers"`
	Show           json.RawMessage               `json:"show"`
	SourceURL      *string                       `json:"sourceUrl"`
	CurrentEpisode json.RawMessage               `json:"currentEpisode"`
	StreamURL      *string                       `json:"streamUrl"`
	IsPlaying      bool                          `json:"isPlaying"`
	CurrentTime    float64                       `json:"currentTime"`
	ChatHistory    []ChatMessage                 `json:"chatHistory"`
	ChatReactions  map[int64]map[string][]string `json:"chatReactions"`
}

// EventRoomInfo is sent to a joining (or reconnecting) client.
type EventRoomInfo struct {
	Room RoomSnapshot `json:"room"`
}

// EventShowLoaded announces a new content pointer.
type EventShowLoaded struct {
	Show      json.RawMessage `json:"show"`
	SourceURL string          `json:"sourceUrl"`
}

// EventEpisodeChanged announces a playable episode.
type EventEpisodeChanged struct {
	Episode   json.RawMessage `json:"episode"`
	StreamURL string          `json:"streamUrl"`
}

// EventPlay tells followers to resume at Time.
type EventPlay struct {
	Time float64 `json:"time"`
}

// EventPause tells followers to pause at Time.
type EventPause struct {
	Time float64 `json:"time"`
}

// EventSeek tells followers to jump to Time.
type EventSeek struct {
	Time float64 `json:"time"`
}

// EventSync carries the authoritative playhead.
type EventSync struct {
	Time      float64 `json:"time"`
	IsPlaying bool    `json:"isPlaying"`
}

// EventUserJoined notifies members about a new member.
type EventUserJoined struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Viewers []string `json:"viewers"`
}

// EventUserLeft notifies members about a departed member.
type EventUserLeft struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Viewers []string `json:"viewers"`
}

// EventChat delivers a stored chat line.
type EventChat struct {
	Name    string         `json:"name"`
	Text    string         `json:"text"`
	Time    int64          `json:"time"`
	MsgID   int64          `json:"msgId"`
	ReplyTo *ReplySnapshot `json:"replyTo,omitempty"`
}

// EventChatEdit delivers the new text of an edited chat line.
type EventChatEdit struct {
	MsgID int64  `json:"msgId"`
	Text  string `json:"text"`
}

// EventReaction is a floating emoji from Name.
type EventReaction struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// EventChatReaction tells clients to apply the same toggle locally.
type EventChatReaction struct {
	MsgID  int64  `json:"msgId"`
	Emoji  string `json:"emoji"`
	Name   string `json:"name"`
	Action string `json:"action"`
}

// EventTyping signals that Name is typing.
type EventTyping struct {
	Name string `json:"name"`
}

// EventError is a user-actionable failure.
type EventError struct {
	Message string `json:"message"`
}

func (EventRoomInfo) EventType() string       { return proto.TypeRoomInfo }
func (EventShowLoaded) EventType() string     { return proto.TypeShowLoaded }
func (EventEpisodeChanged) EventType() string { return proto.TypeEpisodeChange }
func (EventPlay) EventType() string           { return proto.TypePlay }
func (EventPause) EventType() string          { return proto.TypePause }
func (EventSeek) EventType() string           { return proto.TypeSeek }
func (EventSync) EventType() string           { return proto.TypeSync }
func (EventUserJoined) EventType() string     { return proto.TypeUserJoined }
func (EventUserLeft) EventType() string       { return proto.TypeUserLeft }
func (EventChat) EventType() string           { return proto.TypeChat }
func (EventChatEdit) EventType() string       { return proto.TypeChatEdit }
func (EventReaction) EventType() string       { return proto.TypeReaction }
func (EventChatReaction) EventType() string   { return proto.TypeChatReaction }
func (EventTyping) EventType() string         { return proto.TypeTyping }
func (EventError) EventType() string          { return proto.TypeError }

// EncodeEvent serializes an event into its outbound wire frame.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(proto.Outbound{Type: ev.EventType(), Data: ev})
}
