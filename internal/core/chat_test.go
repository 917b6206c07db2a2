package core

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStoreKeepsNewestMessages(t *testing.T) {
	store := NewChatStore(DefaultChatHistorySize)
	now := time.Unix(1700000000, 0)

	for i := 0; i < 105; i++ {
		store.Post("alice", "line", nil, now)
	}

	history := store.History()
	require.Len(t, history, DefaultChatHistorySize)
	assert.EqualValues(t, 6, history[0].MsgID)
	assert.EqualValues(t, 105, history[len(history)-1].MsgID)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].MsgID+1, history[i].MsgID)
	}
}

func TestChatStoreEvictionDropsReactions(t *testing.T) {
	store := NewChatStore(2)
	now := time.Now()

	first := store.Post("a", "one", nil, now)
	_, ok := store.ToggleReaction(first.MsgID, "🔥", "b")
	require.True(t, ok)

	store.Post("a", "two", nil, now)
	store.Post("a", "three", nil, now)

	assert.NotContains(t, store.Reactions(), first.MsgID)
	_, ok = store.ToggleReaction(first.MsgID, "🔥", "b")
	assert.False(t, ok)
}

func TestChatStoreReplySnapshot(t *testing.T) {
	store := NewChatStore(2)
	now := time.Now()

	orig := store.Post("alice", "hello", nil, now)
	reply := store.Post("bob", "hi back", &orig.MsgID, now)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, ReplySnapshot{MsgID: orig.MsgID, Name: "alice", Text: "hello"}, *reply.ReplyTo)

	// the snapshot is frozen at post time
	_, ok := store.Edit(orig.MsgID, "alice", "edited")
	require.True(t, ok)
	assert.Equal(t, "hello", store.History()[1].ReplyTo.Text)

	store.Post("carol", "pushes alice out", nil, now)
	late := store.Post("bob", "reply to gone", &orig.MsgID, now)
	assert.Nil(t, late.ReplyTo)
}

func TestChatStoreEditOnlyByAuthor(t *testing.T) {
	store := NewChatStore(10)
	msg := store.Post("alice", "typo", nil, time.Now())

	_, ok := store.Edit(msg.MsgID, "bob", "hijack")
	assert.False(t, ok)

	edited, ok := store.Edit(msg.MsgID, "alice", "fixed")
	require.True(t, ok)
	assert.Equal(t, "fixed", edited.Text)
	assert.True(t, edited.Edited)

	_, ok = store.Edit(999, "alice", "nope")
	assert.False(t, ok)
}

func TestChatStoreToggleReaction(t *testing.T) {
	store := NewChatStore(10)
	msg := store.Post("alice", "hi", nil, time.Now())

	action, ok := store.ToggleReaction(msg.MsgID, "👍", "bob")
	require.True(t, ok)
	assert.Equal(t, ReactionAdded, action)
	store.ToggleReaction(msg.MsgID, "👍", "alice")
	assert.Equal(t, []string{"alice", "bob"}, store.Reactors(msg.MsgID, "👍"))

	action, _ = store.ToggleReaction(msg.MsgID, "👍", "bob")
	assert.Equal(t, ReactionRemoved, action)
	assert.Equal(t, []string{"alice"}, store.Reactors(msg.MsgID, "👍"))

	store.ToggleReaction(msg.MsgID, "👍", "alice")
	assert.Empty(t, store.Reactions())
}

func TestChatStoreTruncatesLongText(t *testing.T) {
	store := NewChatStore(10)
	long := strings.Repeat("é", MaxChatTextLength+50)

	msg := store.Post("alice", long, nil, time.Now())
	assert.Equal(t, MaxChatTextLength, len([]rune(msg.Text)))
}
