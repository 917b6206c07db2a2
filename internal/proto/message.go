package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
// Every envelope carries the sender's logical client identity.
type Inbound struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	// Membership.
	TypeIdentify   = "identify"
	TypeJoin       = "join"
	TypeDisconnect = "disconnect"

	// Playback authority.
	TypeSetShow       = "set-show"
	TypeSelectEpisode = "select-episode"
	TypeStreamReady   = "stream-ready"
	TypePlay          = "play"
	TypePause         = "pause"
	TypeSeek          = "seek"
	TypeSync          = "sync"
	TypeSyncRequest   = "sync-request"

	// Chat.
	TypeChat         = "chat"
	TypeChatEdit     = "chat-edit"
	TypeReaction     = "reaction"
	TypeChatReaction = "chat-reaction"
	TypeTyping       = "typing"

	// Server only.
	TypeRoomInfo      = "room-info"
	TypeShowLoaded    = "show-loaded"
	TypeEpisodeChange = "episode-changed"
	TypeUserJoined    = "user-joined"
	TypeUserLeft      = "user-left"
	TypeError         = "error"
)

// IdentifyData introduces the client before or after joining.
type IdentifyData struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name" validate:"max=64"`
}

// JoinData requests a room. An empty RoomCode creates a new room.
type JoinData struct {
	RoomCode string `json:"roomCode" validate:"max=16"`
	Name     string `json:"name" validate:"max=64"`
	UserID   string `json:"userId,omitempty"`
}

// SetShowData installs a new content pointer.
type SetShowData struct {
	Show      json.RawMessage `json:"show"`
	SourceURL string          `json:"sourceUrl" validate:"max=2048"`
}

// SelectEpisodeData switches the episode.
type SelectEpisodeData struct {
	Episode json.RawMessage `json:"episode"`
}

// StreamReadyData carries the resolved playable URL.
type StreamReadyData struct {
	StreamURL string `json:"streamUrl" validate:"required,max=4096"`
}

// TimeData is used by play, pause and seek. Time is optional for play/pause.
type TimeData struct {
	Time *float64 `json:"time,omitempty" validate:"omitempty,gte=0"`
}

// SyncData is the host heartbeat.
type SyncData struct {
	Time      float64 `json:"time" validate:"gte=0"`
	IsPlaying bool    `json:"isPlaying"`
}

// ChatData posts a chat line.
type ChatData struct {
	Text    string `json:"text" validate:"required"`
	ReplyTo *int64 `json:"replyTo,omitempty"`
}

// ChatEditData edits a previously posted chat line.
type ChatEditData struct {
	MsgID int64  `json:"msgId" validate:"required"`
	Text  string `json:"text" validate:"required"`
}

// ReactionData is an ephemeral floating emoji.
type ReactionData struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

// ChatReactionData toggles an emoji on a chat message.
type ChatReactionData struct {
	MsgID int64  `json:"msgId" validate:"required"`
	Emoji string `json:"emoji" validate:"required,max=32"`
}
