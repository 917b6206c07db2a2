package core

import "strings"

func (h *Hub) chat(s *session, cmd CommandChat) {
	room, c := h.member(s)
	if room == nil {
		return
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return
	}
	msg := room.Chat.Post(c.Name, cmd.Text, cmd.ReplyTo, h.now())
	h.registry.Broadcast(room, EventChat{
		Name:    msg.Name,
		Text:    msg.Text,
		Time:    msg.Time,
		MsgID:   msg.MsgID,
		ReplyTo: msg.ReplyTo,
	}, "")
}

func (h *Hub) chatEdit(s *session, cmd CommandChatEdit) {
	room, c := h.member(s)
	if room == nil {
		return
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return
	}
	msg, ok := room.Chat.Edit(cmd.MsgID, c.Name, cmd.Text)
	if !ok {
		h.log.Debug().Str("client_id", c.ID).Int64("msg_id", cmd.MsgID).Msg("chat edit rejected")
		return
	}
	h.registry.Broadcast(room, EventChatEdit{MsgID: msg.MsgID, Text: msg.Text}, "")
}

// reaction is a floating emoji; nothing is stored.
func (h *Hub) reaction(s *session, cmd CommandReaction) {
	room, c := h.member(s)
	if room == nil || cmd.Emoji == "" {
		return
	}
	h.registry.Broadcast(room, EventReaction{Name: c.Name, Emoji: cmd.Emoji}, "")
}

func (h *Hub) chatReaction(s *session, cmd CommandChatReaction) {
	room, c := h.member(s)
	if room == nil || cmd.Emoji == "" {
		return
	}
	action, ok := room.Chat.ToggleReaction(cmd.MsgID, cmd.Emoji, c.Name)
	if !ok {
		return
	}
	h.registry.Broadcast(room, EventChatReaction{
		MsgID:  cmd.MsgID,
		Emoji:  cmd.Emoji,
		Name:   c.Name,
		Action: action,
	}, "")
}

func (h *Hub) typing(s *session) {
	room, c := h.member(s)
	if room == nil {
		return
	}
	h.registry.Broadcast(room, EventTyping{Name: c.Name}, c.ID)
}
