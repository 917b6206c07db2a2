package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/watchparty-server/internal/proto"
)

// send wraps data in an inbound envelope stamped with the client identity.
func (s *Store) send(ctx context.Context, kind string, data any) error {
	if s.sender == nil {
		return errors.New("roomclient: no sender configured")
	}
	env := proto.Inbound{Type: kind, ClientID: s.clientID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return s.sender.Send(ctx, frame)
}

func (s *Store) requireRoom() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.InRoom() {
		return ErrNotInRoom
	}
	return nil
}

// Identify sets the display name and optional account before or after
// joining.
func (s *Store) Identify(ctx context.Context, name, userID string) error {
	return s.send(ctx, proto.TypeIdentify, proto.IdentifyData{Name: name, UserID: userID})
}

// Join enters the room with code, or creates one when code is empty.
// Joining the current room again rebinds this connection to the slot.
func (s *Store) Join(ctx context.Context, code, name, userID string) error {
	return s.send(ctx, proto.TypeJoin, proto.JoinData{RoomCode: code, Name: name, UserID: userID})
}

// Leave voluntarily leaves the room and clears local state.
func (s *Store) Leave(ctx context.Context) error {
	s.mu.Lock()
	s.resetLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.player.Pause()
	s.notify(snap)
	return s.send(ctx, proto.TypeDisconnect, nil)
}

// SetShow loads new content for the room. Host only.
func (s *Store) SetShow(ctx context.Context, show json.RawMessage, sourceURL string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.send(ctx, proto.TypeSetShow, proto.SetShowData{Show: show, SourceURL: sourceURL})
}

// SelectEpisode switches the episode. Followers hear about it once
// StreamReady is sent. Host only.
func (s *Store) SelectEpisode(ctx context.Context, episode json.RawMessage) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.CurrentEpisode = episode
	s.state.StreamURL = nil
	s.state.CurrentTime = 0
	s.state.IsPlaying = false
	s.syncHeartbeatLocked()
	s.mu.Unlock()
	s.player.Pause()
	s.player.Seek(0)
	return s.send(ctx, proto.TypeSelectEpisode, proto.SelectEpisodeData{Episode: episode})
}

// StreamReady publishes the playable URL of the selected episode. Host only.
func (s *Store) StreamReady(ctx context.Context, streamURL string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	s.mu.Lock()
	url := streamURL
	s.state.StreamURL = &url
	s.mu.Unlock()
	return s.send(ctx, proto.TypeStreamReady, proto.StreamReadyData{StreamURL: streamURL})
}

// Play starts local playback and tells followers where.
func (s *Store) Play(ctx context.Context) error {
	return s.transport(ctx, proto.TypePlay, true)
}

// Pause stops local playback and tells followers where.
func (s *Store) Pause(ctx context.Context) error {
	return s.transport(ctx, proto.TypePause, false)
}

func (s *Store) transport(ctx context.Context, kind string, playing bool) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	if playing {
		s.player.Play()
	} else {
		s.player.Pause()
	}
	t := s.player.Position()

	s.mu.Lock()
	s.state.IsPlaying = playing
	s.state.CurrentTime = t
	s.syncHeartbeatLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	return s.send(ctx, kind, proto.TimeData{Time: &t})
}

// Seek moves the local playhead and tells followers.
func (s *Store) Seek(ctx context.Context, t float64) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	s.player.Seek(t)
	s.mu.Lock()
	s.state.CurrentTime = t
	s.mu.Unlock()
	return s.send(ctx, proto.TypeSeek, proto.TimeData{Time: &t})
}

// SendSync sends one heartbeat with the local playhead.
func (s *Store) SendSync(ctx context.Context) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.send(ctx, proto.TypeSync, proto.SyncData{Time: s.player.Position(), IsPlaying: s.player.Playing()})
}

// RequestSync asks the server for the current playhead.
func (s *Store) RequestSync(ctx context.Context) error {
	return s.send(ctx, proto.TypeSyncRequest, struct{}{})
}

// Chat posts a line, optionally quoting an earlier message.
func (s *Store) Chat(ctx context.Context, text string, replyTo *int64) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.send(ctx, proto.TypeChat, proto.ChatData{Text: text, ReplyTo: replyTo})
}

// EditChat rewrites one of this participant's messages.
func (s *Store) EditChat(ctx context.Context, msgID int64, text string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.send(ctx, proto.TypeChatEdit, proto.ChatEditData{MsgID: msgID, Text: text})
}

// React sends a floating emoji.
func (s *Store) React(ctx context.Context, emoji string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.send(ctx, proto.TypeReaction, proto.ReactionData{Emoji: emoji})
}

// ToggleChatReaction adds or removes emoji on a message.
func (s *Store) ToggleChatReaction(ctx context.Context, msgID int64, emoji string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.send(ctx, proto.TypeChatReaction, proto.ChatReactionData{MsgID: msgID, Emoji: emoji})
}

// Typing signals that the participant is typing.
func (s *Store) Typing(ctx context.Context) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.send(ctx, proto.TypeTyping, struct{}{})
}
