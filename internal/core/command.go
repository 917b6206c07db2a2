package core

import (
	"encoding/json"

	"github.com/vovakirdan/watchparty-server/internal/proto"
)

// Command represents an action requested by a client. The set of
// implementations is closed; the Hub switches over all of them.
type Command interface {
	// Kind returns the wire name of the command.
	Kind() string
	isCommand()
}

// CommandIdentify records the display name and optional account of a client.
type CommandIdentify struct {
	UserID string
	Name   string
}

// CommandJoin creates a room (empty RoomCode) or joins an existing one.
type CommandJoin struct {
	RoomCode string
	Name     string
	UserID   string
}

// CommandDisconnect is the voluntary leave.
type CommandDisconnect struct{}

// CommandSetShow installs a new content pointer. Host only.
type CommandSetShow struct {
	Show      json.RawMessage
	SourceURL string
}

// CommandSelectEpisode switches the current episode. Host only.
type CommandSelectEpisode struct {
	Episode json.RawMessage
}

// CommandStreamReady publishes the resolved stream URL. Host only.
type CommandStreamReady struct {
	StreamURL string
}

// CommandPlay starts playback. Time is optional.
type CommandPlay struct {
	Time *float64
}

// CommandPause stops playback. Time is optional.
type CommandPause struct {
	Time *float64
}

// CommandSeek moves the playhead.
type CommandSeek struct {
	Time float64
}

// CommandSync is the host heartbeat.
type CommandSync struct {
	Time      float64
	IsPlaying bool
}

// CommandSyncRequest asks for an immediate sync reply.
type CommandSyncRequest struct{}

// CommandChat posts a chat line, optionally replying to an earlier one.
type CommandChat struct {
	Text    string
	ReplyTo *int64
}

// CommandChatEdit rewrites the text of an earlier chat line.
type CommandChatEdit struct {
	MsgID int64
	Text  string
}

// CommandReaction is an ephemeral floating emoji.
type CommandReaction struct {
	Emoji string
}

// CommandChatReaction toggles an emoji on a chat line.
type CommandChatReaction struct {
	MsgID int64
	Emoji string
}

// CommandTyping signals that the sender is typing.
type CommandTyping struct{}

func (CommandIdentify) Kind() string      { return proto.TypeIdentify }
func (CommandJoin) Kind() string          { return proto.TypeJoin }
func (CommandDisconnect) Kind() string    { return proto.TypeDisconnect }
func (CommandSetShow) Kind() string       { return proto.TypeSetShow }
func (CommandSelectEpisode) Kind() string { return proto.TypeSelectEpisode }
func (CommandStreamReady) Kind() string   { return proto.TypeStreamReady }
func (CommandPlay) Kind() string          { return proto.TypePlay }
func (CommandPause) Kind() string         { return proto.TypePause }
func (CommandSeek) Kind() string          { return proto.TypeSeek }
func (CommandSync) Kind() string          { return proto.TypeSync }
func (CommandSyncRequest) Kind() string   { return proto.TypeSyncRequest }
func (CommandChat) Kind() string          { return proto.TypeChat }
func (CommandChatEdit) Kind() string      { return proto.TypeChatEdit }
func (CommandReaction) Kind() string      { return proto.TypeReaction }
func (CommandChatReaction) Kind() string  { return proto.TypeChatReaction }
func (CommandTyping) Kind() string        { return proto.TypeTyping }

func (CommandIdentify) isCommand()      {}
func (CommandJoin) isCommand()          {}
func (CommandDisconnect) isCommand()    {}
func (CommandSetShow) isCommand()       {}
func (CommandSelectEpisode) isCommand() {}
func (CommandStreamReady) isCommand()   {}
func (CommandPlay) isCommand()          {}
func (CommandPause) isCommand()         {}
func (CommandSeek) isCommand()          {}
func (CommandSync) isCommand()          {}
func (CommandSyncRequest) isCommand()   {}
func (CommandChat) isCommand()          {}
func (CommandChatEdit) isCommand()      {}
func (CommandReaction) isCommand()      {}
func (CommandChatReaction) isCommand()  {}
func (CommandTyping) isCommand()        {}
