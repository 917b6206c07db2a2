package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/proto"
)

var (
	errMissingType     = errors.New("missing type")
	errMissingClientID = errors.New("missing clientId")
	errUnknownType     = errors.New("unknown message type")
)

// payloadValidator checks decoded payloads against their validate tags and
// reports fields by their json names.
var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeInbound parses one websocket frame into the sender's client id and
// a core command.
func decodeInbound(frame []byte) (string, core.Command, error) {
	var in proto.Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}
	if in.Type == "" {
		return "", nil, errMissingType
	}
	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return "", nil, errMissingClientID
	}

	cmd, err := commandFromInbound(in)
	if err != nil {
		return clientID, nil, fmt.Errorf("%s: %w", in.Type, err)
	}
	return clientID, cmd, nil
}

func commandFromInbound(in proto.Inbound) (core.Command, error) {
	switch in.Type {
	case proto.TypeIdentify:
		var d proto.IdentifyData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandIdentify{UserID: d.UserID, Name: d.Name}, nil
	case proto.TypeJoin:
		var d proto.JoinData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandJoin{RoomCode: strings.TrimSpace(d.RoomCode), Name: d.Name, UserID: d.UserID}, nil
	case proto.TypeDisconnect:
		return core.CommandDisconnect{}, nil
	case proto.TypeSetShow:
		var d proto.SetShowData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandSetShow{Show: d.Show, SourceURL: d.SourceURL}, nil
	case proto.TypeSelectEpisode:
		var d proto.SelectEpisodeData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandSelectEpisode{Episode: d.Episode}, nil
	case proto.TypeStreamReady:
		var d proto.StreamReadyData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandStreamReady{StreamURL: d.StreamURL}, nil
	case proto.TypePlay:
		var d proto.TimeData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandPlay{Time: d.Time}, nil
	case proto.TypePause:
		var d proto.TimeData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandPause{Time: d.Time}, nil
	case proto.TypeSeek:
		var d proto.TimeData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		if d.Time == nil {
			return nil, errors.New("time is required")
		}
		return core.CommandSeek{Time: *d.Time}, nil
	case proto.TypeSync:
		var d proto.SyncData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandSync{Time: d.Time, IsPlaying: d.IsPlaying}, nil
	case proto.TypeSyncRequest:
		return core.CommandSyncRequest{}, nil
	case proto.TypeChat:
		var d proto.ChatData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandChat{Text: d.Text, ReplyTo: d.ReplyTo}, nil
	case proto.TypeChatEdit:
		var d proto.ChatEditData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandChatEdit{MsgID: d.MsgID, Text: d.Text}, nil
	case proto.TypeReaction:
		var d proto.ReactionData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandReaction{Emoji: d.Emoji}, nil
	case proto.TypeChatReaction:
		var d proto.ChatReactionData
		if err := decodeData(in.Data, &d); err != nil {
			return nil, err
		}
		return core.CommandChatReaction{MsgID: d.MsgID, Emoji: d.Emoji}, nil
	case proto.TypeTyping:
		return core.CommandTyping{}, nil
	default:
		return nil, errUnknownType
	}
}

// decodeData unmarshals an optional payload and validates it.
func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	if err := payloadValidator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s: %s", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// withAccount forces the authenticated account onto commands that carry a
// user id so a client cannot claim someone else's history. Without a token
// the claimed id is cleared: only token-bound accounts reach the recorder.
func withAccount(cmd core.Command, userID string) core.Command {
	switch c := cmd.(type) {
	case core.CommandIdentify:
		c.UserID = userID
		return c
	case core.CommandJoin:
		c.UserID = userID
		return c
	}
	return cmd
}
