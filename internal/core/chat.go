package core

import (
	"sort"
	"time"
	"unicode/utf8"
)

const (
	// DefaultChatHistorySize is the number of chat lines a room keeps.
	DefaultChatHistorySize = 100
	// MaxChatTextLength caps a chat line, in characters.
	MaxChatTextLength = 2000

	ReactionAdded   = "add"
	ReactionRemoved = "remove"
)

// ReplySnapshot is a frozen copy of the message being replied to.
type ReplySnapshot struct {
	MsgID int64  `json:"msgId"`
	Name  string `json:"name"`
	Text  string `json:"text"`
}

// ChatMessage is one stored chat line.
type ChatMessage struct {
	MsgID   int64          `json:"msgId"`
	Name    string         `json:"name"`
	Text    string         `json:"text"`
	Time    int64          `json:"time"`
	ReplyTo *ReplySnapshot `json:"replyTo,omitempty"`
	Edited  bool           `json:"edited"`
}

// ChatStore is the bounded per-room chat history with reactions.
// It is not safe for concurrent use; the Hub loop owns it.
type ChatStore struct {
	capacity  int
	messages  []*ChatMessage
	counter   int64
	reactions map[int64]map[string]map[string]struct{}
}

// NewChatStore creates a store keeping at most capacity messages.
func NewChatStore(capacity int) *ChatStore {
	if capacity <= 0 {
		capacity = DefaultChatHistorySize
	}
	return &ChatStore{
		capacity:  capacity,
		messages:  make([]*ChatMessage, 0, capacity),
		reactions: make(map[int64]map[string]map[string]struct{}),
	}
}

// Post appends a new message and returns it. A replyTo id that is no
// longer in history is dropped.
func (c *ChatStore) Post(name, text string, replyTo *int64, at time.Time) ChatMessage {
	c.counter++
	msg := &ChatMessage{
		MsgID: c.counter,
		Name:  name,
		Text:  truncateText(text, MaxChatTextLength),
		Time:  at.UnixMilli(),
	}
	if replyTo != nil {
		if target := c.find(*replyTo); target != nil {
			msg.ReplyTo = &ReplySnapshot{MsgID: target.MsgID, Name: target.Name, Text: target.Text}
		}
	}

	c.messages = append(c.messages, msg)
	for len(c.messages) > c.capacity {
		evicted := c.messages[0]
		c.messages[0] = nil
		c.messages = c.messages[1:]
		delete(c.reactions, evicted.MsgID)
	}
	return *msg
}

// Edit replaces the text of msgID if editor is its author.
// Authorship is matched by display name.
func (c *ChatStore) Edit(msgID int64, editor, text string) (ChatMessage, bool) {
	msg := c.find(msgID)
	if msg == nil || msg.Name != editor {
		return ChatMessage{}, false
	}
	msg.Text = truncateText(text, MaxChatTextLength)
	msg.Edited = true
	return *msg, true
}

// ToggleReaction adds name to the (msgID, emoji) reactor set or removes it
// if already present. Reactions on messages outside history are ignored.
func (c *ChatStore) ToggleReaction(msgID int64, emoji, name string) (string, bool) {
	if c.find(msgID) == nil {
		return "", false
	}
	byEmoji, ok := c.reactions[msgID]
	if !ok {
		byEmoji = make(map[string]map[string]struct{})
		c.reactions[msgID] = byEmoji
	}
	reactors, ok := byEmoji[emoji]
	if !ok {
		reactors = make(map[string]struct{})
		byEmoji[emoji] = reactors
	}

	if _, present := reactors[name]; present {
		delete(reactors, name)
		if len(reactors) == 0 {
			delete(byEmoji, emoji)
		}
		if len(byEmoji) == 0 {
			delete(c.reactions, msgID)
		}
		return ReactionRemoved, true
	}
	reactors[name] = struct{}{}
	return ReactionAdded, true
}

// Reactors returns the sorted reactor names for (msgID, emoji).
func (c *ChatStore) Reactors(msgID int64, emoji string) []string {
	return sortedNames(c.reactions[msgID][emoji])
}

// History returns a copy of the stored messages, oldest first.
func (c *ChatStore) History() []ChatMessage {
	out := make([]ChatMessage, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, *m)
	}
	return out
}

// Reactions returns a copy of all reaction sets.
func (c *ChatStore) Reactions() map[int64]map[string][]string {
	out := make(map[int64]map[string][]string, len(c.reactions))
	for id, byEmoji := range c.reactions {
		copied := make(map[string][]string, len(byEmoji))
		for emoji, reactors := range byEmoji {
			copied[emoji] = sortedNames(reactors)
		}
		out[id] = copied
	}
	return out
}

// Len returns the number of stored messages.
func (c *ChatStore) Len() int {
	return len(c.messages)
}

func (c *ChatStore) find(msgID int64) *ChatMessage {
	if len(c.messages) == 0 {
		return nil
	}
	// stored ids are consecutive
	idx := int(msgID - c.messages[0].MsgID)
	if idx < 0 || idx >= len(c.messages) {
		return nil
	}
	return c.messages[idx]
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func truncateText(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
