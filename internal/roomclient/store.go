// Package roomclient is the participant-side mirror of a room. A Store
// applies server events to local state, drives the local player and turns
// user actions into outbound envelopes.
package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/proto"
)

const (
	// HeartbeatInterval is the host's sync cadence while playing.
	HeartbeatInterval = 3 * time.Second
	// TypingTimeout is how long a typing indicator stays up.
	TypingTimeout = 2 * time.Second
)

// ErrNotInRoom is returned by actions that need a joined room.
var ErrNotInRoom = errors.New("not in a room")

// Sender delivers an encoded envelope to the server.
type Sender interface {
	Send(ctx context.Context, frame []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, frame []byte) error

func (f SenderFunc) Send(ctx context.Context, frame []byte) error { return f(ctx, frame) }

// State is a snapshot of what the participant sees.
type State struct {
	Code        string
	HostID      string
	ClientID    string
	IsHost      bool
	ClientCount int
	Viewers     []string

	Show           json.RawMessage
	SourceURL      *string
	CurrentEpisode json.RawMessage
	StreamURL      *string
	IsPlaying      bool
	CurrentTime    float64

	Chat          []core.ChatMessage
	ChatReactions map[int64]map[string][]string
	Typing        []string
	LastReaction  *core.EventReaction
	LastError     string
}

// InRoom reports whether the state describes a joined room.
func (s State) InRoom() bool { return s.Code != "" }

// Options configures a Store.
type Options struct {
	ClientID          string
	Sender            Sender
	Player            Player
	Logger            *zerolog.Logger
	OnChange          func(State)
	HeartbeatInterval time.Duration
	TypingTimeout     time.Duration
	ChatHistorySize   int
}

// Store is safe for concurrent use.
type Store struct {
	clientID string
	sender   Sender
	player   Player
	log      *zerolog.Logger
	onChange func(State)

	heartbeatEvery time.Duration
	typingTimeout  time.Duration
	historySize    int

	mu        sync.Mutex
	state     State
	typing    map[string]*time.Timer
	heartbeat chan struct{}
	closed    bool
}

// New creates a store. A missing ClientID is minted once here and kept for
// the life of the store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	id := opts.ClientID
	if id == "" {
		id = uuid.NewString()
	}
	player := opts.Player
	if player == nil {
		player = nopPlayer{}
	}
	every := opts.HeartbeatInterval
	if every <= 0 {
		every = HeartbeatInterval
	}
	typing := opts.TypingTimeout
	if typing <= 0 {
		typing = TypingTimeout
	}
	history := opts.ChatHistorySize
	if history <= 0 {
		history = core.DefaultChatHistorySize
	}

	return &Store{
		clientID:       id,
		sender:         opts.Sender,
		player:         player,
		log:            logger,
		onChange:       opts.OnChange,
		heartbeatEvery: every,
		typingTimeout:  typing,
		historySize:    history,
		state:          State{ChatReactions: map[int64]map[string][]string{}},
		typing:         make(map[string]*time.Timer),
	}
}

// ClientID returns the logical identity sent with every envelope.
func (s *Store) ClientID() string { return s.clientID }

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close stops all timers. The store must not be used afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopHeartbeatLocked()
	for name, t := range s.typing {
		t.Stop()
		delete(s.typing, name)
	}
}

// Apply decodes one outbound server frame and folds it into the state.
func (s *Store) Apply(ctx context.Context, frame []byte) error {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	var followUp func(context.Context) error
	s.mu.Lock()
	err := s.applyLocked(env.Type, env.Data, &followUp)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("apply %s: %w", env.Type, err)
	}

	s.notify(snap)
	if followUp != nil {
		return followUp(ctx)
	}
	return nil
}

func (s *Store) applyLocked(kind string, data json.RawMessage, followUp *func(context.Context) error) error {
	st := &s.state
	switch kind {
	case proto.TypeRoomInfo:
		var ev core.EventRoomInfo
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		wasInRoom := st.InRoom()
		s.loadSnapshotLocked(ev.Room)
		if !wasInRoom && !st.IsHost && st.StreamURL != nil {
			*followUp = s.RequestSync
		}

	case proto.TypeShowLoaded:
		var ev core.EventShowLoaded
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		src := ev.SourceURL
		st.Show = ev.Show
		st.SourceURL = &src
		st.CurrentEpisode = nil
		st.StreamURL = nil
		st.CurrentTime = 0
		st.IsPlaying = false
		s.player.Pause()

	case proto.TypeEpisodeChange:
		var ev core.EventEpisodeChanged
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		url := ev.StreamURL
		st.CurrentEpisode = ev.Episode
		st.StreamURL = &url
		st.CurrentTime = 0
		st.IsPlaying = false
		s.player.Pause()
		s.player.Seek(0)
		*followUp = s.RequestSync

	case proto.TypePlay:
		var ev core.EventPlay
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.IsPlaying = true
		st.CurrentTime = ev.Time
		s.reconcileLocked(ev.Time, true)

	case proto.TypePause:
		var ev core.EventPause
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.IsPlaying = false
		st.CurrentTime = ev.Time
		s.reconcileLocked(ev.Time, false)

	case proto.TypeSeek:
		var ev core.EventSeek
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.CurrentTime = ev.Time
		s.player.Seek(ev.Time)

	case proto.TypeSync:
		var ev core.EventSync
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.IsPlaying = ev.IsPlaying
		st.CurrentTime = ev.Time
		if !st.IsHost {
			s.reconcileLocked(ev.Time, ev.IsPlaying)
		}

	case proto.TypeUserJoined:
		var ev core.EventUserJoined
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.ClientCount = ev.Count
		st.Viewers = ev.Viewers

	case proto.TypeUserLeft:
		var ev core.EventUserLeft
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.ClientCount = ev.Count
		st.Viewers = ev.Viewers
		s.clearTypingLocked(ev.Name)

	case proto.TypeChat:
		var ev core.EventChat
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		s.appendChatLocked(core.ChatMessage{
			MsgID:   ev.MsgID,
			Name:    ev.Name,
			Text:    ev.Text,
			Time:    ev.Time,
			ReplyTo: ev.ReplyTo,
		})
		s.clearTypingLocked(ev.Name)

	case proto.TypeChatEdit:
		var ev core.EventChatEdit
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		for i := range st.Chat {
			if st.Chat[i].MsgID == ev.MsgID {
				st.Chat[i].Text = ev.Text
				st.Chat[i].Edited = true
				break
			}
		}

	case proto.TypeReaction:
		var ev core.EventReaction
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.LastReaction = &ev

	case proto.TypeChatReaction:
		var ev core.EventChatReaction
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		s.toggleReactionLocked(ev)

	case proto.TypeTyping:
		var ev core.EventTyping
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		s.markTypingLocked(ev.Name)

	case proto.TypeError:
		var ev core.EventError
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		st.LastError = ev.Message

	default:
		s.log.Debug().Str("type", kind).Msg("ignoring unknown event")
		return nil
	}

	s.syncHeartbeatLocked()
	return nil
}

func (s *Store) loadSnapshotLocked(room core.RoomSnapshot) {
	st := &s.state
	st.Code = room.Code
	st.HostID = room.HostID
	st.ClientID = room.ClientID
	st.IsHost = room.IsHost
	st.ClientCount = room.ClientCount
	st.Viewers = room.Viewers
	st.Show = room.Show
	st.SourceURL = room.SourceURL
	st.CurrentEpisode = room.CurrentEpisode
	st.StreamURL = room.StreamURL
	st.IsPlaying = room.IsPlaying
	st.CurrentTime = room.CurrentTime
	st.Chat = append([]core.ChatMessage(nil), room.ChatHistory...)
	st.ChatReactions = room.ChatReactions
	if st.ChatReactions == nil {
		st.ChatReactions = map[int64]map[string][]string{}
	}
	st.LastError = ""
}

func (s *Store) appendChatLocked(msg core.ChatMessage) {
	st := &s.state
	st.Chat = append(st.Chat, msg)
	for len(st.Chat) > s.historySize {
		delete(st.ChatReactions, st.Chat[0].MsgID)
		st.Chat = st.Chat[1:]
	}
}

func (s *Store) toggleReactionLocked(ev core.EventChatReaction) {
	byEmoji := s.state.ChatReactions[ev.MsgID]
	if byEmoji == nil {
		byEmoji = map[string][]string{}
		s.state.ChatReactions[ev.MsgID] = byEmoji
	}
	names := byEmoji[ev.Emoji]
	switch ev.Action {
	case core.ReactionAdded:
		for _, n := range names {
			if n == ev.Name {
				return
			}
		}
		byEmoji[ev.Emoji] = append(names, ev.Name)
	case core.ReactionRemoved:
		kept := names[:0]
		for _, n := range names {
			if n != ev.Name {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			delete(byEmoji, ev.Emoji)
		} else {
			byEmoji[ev.Emoji] = kept
		}
		if len(byEmoji) == 0 {
			delete(s.state.ChatReactions, ev.MsgID)
		}
	}
}

func (s *Store) markTypingLocked(name string) {
	if t, ok := s.typing[name]; ok {
		t.Stop()
	}
	if s.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.typingTimeout, func() {
		s.mu.Lock()
		if s.typing[name] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.typing, name)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
	})
	s.typing[name] = timer
}

func (s *Store) clearTypingLocked(name string) {
	if t, ok := s.typing[name]; ok {
		t.Stop()
		delete(s.typing, name)
	}
}

func (s *Store) resetLocked() {
	s.stopHeartbeatLocked()
	for name := range s.typing {
		s.clearTypingLocked(name)
	}
	s.state = State{ChatReactions: map[int64]map[string][]string{}}
}

func (s *Store) snapshotLocked() State {
	out := s.state
	out.Viewers = append([]string(nil), s.state.Viewers...)
	out.Chat = append([]core.ChatMessage(nil), s.state.Chat...)
	out.ChatReactions = make(map[int64]map[string][]string, len(s.state.ChatReactions))
	for id, byEmoji := range s.state.ChatReactions {
		copied := make(map[string][]string, len(byEmoji))
		for emoji, names := range byEmoji {
			copied[emoji] = append([]string(nil), names...)
		}
		out.ChatReactions[id] = copied
	}
	out.Typing = make([]string, 0, len(s.typing))
	for name := range s.typing {
		out.Typing = append(out.Typing, name)
	}
	sort.Strings(out.Typing)
	return out
}

func (s *Store) notify(snap State) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
