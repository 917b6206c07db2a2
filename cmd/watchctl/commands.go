package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/proto"
	"github.com/vovakirdan/watchparty-server/internal/roomclient"
)

const helpText = `commands:
  <text>                 send a chat line
  /reply ID <text>       reply to chat line ID
  /edit ID <text>        edit your chat line ID
  /like ID EMOJI         toggle EMOJI on chat line ID
  /react EMOJI           float an emoji over the video
  /show URL [JSON]       host: load a show
  /episode JSON          host: pick an episode
  /stream URL            host: publish the resolved stream
  /play | /pause         host: toggle playback
  /seek SECONDS          host: move the playhead
  /sync                  ask the host for the current position
  /join CODE             switch rooms (empty CODE creates one)
  /leave                 leave the room
  /status                show room and playhead
  /quit                  exit`

// session binds the input commands to one room store.
type session struct {
	store  *roomclient.Store
	player roomclient.Player
	name   string
	out    io.Writer
}

// execute runs one line of input. It reports true when the user asked to quit.
func (s *session) execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, s.store.Chat(ctx, line, nil)
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "help":
		fmt.Fprintln(s.out, helpText)
		return false, nil
	case "quit", "exit":
		return true, nil
	case "status":
		fmt.Fprintln(s.out, status(s.store.State(), s.player))
		return false, nil
	case "play":
		return false, s.store.Play(ctx)
	case "pause":
		return false, s.store.Pause(ctx)
	case "seek":
		t, err := strconv.ParseFloat(rest, 64)
		if err != nil || t < 0 {
			return false, errors.New("usage: /seek SECONDS")
		}
		return false, s.store.Seek(ctx, t)
	case "sync":
		return false, s.store.RequestSync(ctx)
	case "react":
		if rest == "" {
			return false, errors.New("usage: /react EMOJI")
		}
		return false, s.store.React(ctx, rest)
	case "reply", "edit", "like":
		id, arg, err := idAndArg(rest)
		if err != nil {
			return false, fmt.Errorf("usage: /%s ID ...: %w", name, err)
		}
		switch name {
		case "reply":
			return false, s.store.Chat(ctx, arg, &id)
		case "edit":
			return false, s.store.EditChat(ctx, id, arg)
		default:
			return false, s.store.ToggleChatReaction(ctx, id, arg)
		}
	case "show":
		src, raw, _ := strings.Cut(rest, " ")
		if src == "" {
			return false, errors.New("usage: /show URL [JSON]")
		}
		show, err := jsonArg(raw, src)
		if err != nil {
			return false, err
		}
		return false, s.store.SetShow(ctx, show, src)
	case "episode":
		ep, err := jsonArg(rest, "")
		if err != nil || ep == nil {
			return false, errors.New("usage: /episode JSON")
		}
		return false, s.store.SelectEpisode(ctx, ep)
	case "stream":
		if rest == "" {
			return false, errors.New("usage: /stream URL")
		}
		return false, s.store.StreamReady(ctx, rest)
	case "join":
		return false, s.store.Join(ctx, rest, s.name, "")
	case "leave":
		return false, s.store.Leave(ctx)
	default:
		return false, fmt.Errorf("unknown command /%s, try /help", name)
	}
}

func idAndArg(rest string) (int64, string, error) {
	rawID, arg, _ := strings.Cut(rest, " ")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", errors.New("ID must be a positive number")
	}
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, "", errors.New("missing argument")
	}
	return id, arg, nil
}

// jsonArg accepts raw JSON, or wraps a bare title into {"title": ...}.
func jsonArg(raw, fallbackTitle string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallbackTitle == "" {
			return nil, nil
		}
		return json.Marshal(map[string]string{"title": fallbackTitle})
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}
	return json.Marshal(map[string]string{"title": raw})
}

func status(st roomclient.State, player roomclient.Player) string {
	if !st.InRoom() {
		return "not in a room"
	}
	role := "follower"
	if st.IsHost {
		role = "host"
	}
	state := "paused"
	if player.Playing() {
		state = "playing"
	}
	stream := "-"
	if st.StreamURL != nil {
		stream = *st.StreamURL
	}
	return fmt.Sprintf("room %s (%s) viewers=%s stream=%s %s at %.1fs",
		st.Code, role, strings.Join(st.Viewers, ","), stream, state, player.Position())
}

// describe renders an outbound frame as one human-readable line. prev is the
// state before the frame is applied.
func describe(frame []byte, prev roomclient.State) string {
	var out struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &out); err != nil {
		return ""
	}

	switch out.Type {
	case proto.TypeRoomInfo:
		var ev core.EventRoomInfo
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		role := "follower"
		if ev.Room.IsHost {
			role = "host"
		}
		if prev.Code == ev.Room.Code && prev.IsHost != ev.Room.IsHost {
			return fmt.Sprintf("* you are now the %s of %s", role, ev.Room.Code)
		}
		return fmt.Sprintf("* in room %s as %s with %s", ev.Room.Code, role, strings.Join(ev.Room.Viewers, ", "))
	case proto.TypeUserJoined:
		var ev core.EventUserJoined
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("* %s joined (%d watching)", ev.Name, ev.Count)
	case proto.TypeUserLeft:
		var ev core.EventUserLeft
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("* %s left (%d watching)", ev.Name, ev.Count)
	case proto.TypeChat:
		var ev core.EventChat
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		if ev.ReplyTo != nil {
			return fmt.Sprintf("#%d %s (re %s: %q): %s", ev.MsgID, ev.Name, ev.ReplyTo.Name, ev.ReplyTo.Text, ev.Text)
		}
		return fmt.Sprintf("#%d %s: %s", ev.MsgID, ev.Name, ev.Text)
	case proto.TypeChatEdit:
		var ev core.EventChatEdit
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("#%d edited: %s", ev.MsgID, ev.Text)
	case proto.TypeChatReaction:
		var ev core.EventChatReaction
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("#%d %s %s %s", ev.MsgID, ev.Name, ev.Action, ev.Emoji)
	case proto.TypeReaction:
		var ev core.EventReaction
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("%s %s", ev.Name, ev.Emoji)
	case proto.TypeShowLoaded:
		var ev core.EventShowLoaded
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("* show loaded: %s", ev.SourceURL)
	case proto.TypeEpisodeChange:
		var ev core.EventEpisodeChanged
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("* now playing %s", ev.StreamURL)
	case proto.TypePlay, proto.TypePause, proto.TypeSeek:
		var ev core.EventSeek
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return fmt.Sprintf("* host %s at %.1fs", out.Type, ev.Time)
	case proto.TypeError:
		var ev core.EventError
		if json.Unmarshal(out.Data, &ev) != nil {
			return ""
		}
		return "! " + ev.Message
	}
	// sync and typing stay quiet
	return ""
}
