package core

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateRoomSkipsTakenCodes(t *testing.T) {
	reg := NewRegistry(DefaultChatHistorySize, seq("ABCDE", "ABCDE", "fghjk"), nil)

	first, err := reg.CreateRoom("h1")
	require.NoError(t, err)
	second, err := reg.CreateRoom("h2")
	require.NoError(t, err)

	assert.Equal(t, "ABCDE", first.Code)
	assert.Equal(t, "FGHJK", second.Code)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryCodeSpaceExhausted(t *testing.T) {
	reg := NewRegistry(DefaultChatHistorySize, seq("ABCDE"), nil)

	_, err := reg.CreateRoom("h1")
	require.NoError(t, err)
	_, err = reg.CreateRoom("h2")
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestRegistryGetRoomIgnoresCase(t *testing.T) {
	reg := NewRegistry(DefaultChatHistorySize, seq("QWERT"), nil)
	room, err := reg.CreateRoom("h")
	require.NoError(t, err)

	assert.Same(t, room, reg.GetRoom("qwert"))
	assert.Same(t, room, reg.GetRoom(" QwErT "))
	assert.Nil(t, reg.GetRoom("ZZZZZ"))
}

func TestRegistryRandomCodesStayUnique(t *testing.T) {
	const rooms = 2000
	reg := NewRegistry(DefaultChatHistorySize, nil, nil)

	seen := make(map[string]struct{}, rooms)
	for i := 0; i < rooms; i++ {
		room, err := reg.CreateRoom("h" + strconv.Itoa(i))
		require.NoError(t, err)
		_, dup := seen[room.Code]
		require.False(t, dup, "code %s handed out twice", room.Code)
		seen[room.Code] = struct{}{}
		require.Same(t, room, reg.GetRoom(strings.ToLower(room.Code)))
	}
	assert.Equal(t, rooms, reg.Len())
}

func TestRandomCodeAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := RandomCode()
		require.Len(t, code, RoomCodeLength)
		for _, r := range code {
			require.True(t, strings.ContainsRune(roomCodeAlphabet, r), "unexpected rune %q in %s", r, code)
		}
	}
}

func TestRegistryHostFailoverAndDeletion(t *testing.T) {
	reg := NewRegistry(DefaultChatHistorySize, seq("HOSTS"), nil)
	room, err := reg.CreateRoom("a")
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		reg.AddClient(room, &RoomClient{ID: id, Name: strings.ToUpper(id)})
	}
	assertSingleHost(t, room, "a")

	removed, deleted := reg.RemoveClient(room, "a")
	require.NotNil(t, removed)
	assert.False(t, deleted)
	assert.False(t, removed.IsHost)
	assertSingleHost(t, room, "b")

	_, deleted = reg.RemoveClient(room, "c")
	assert.False(t, deleted)
	assertSingleHost(t, room, "b")

	_, deleted = reg.RemoveClient(room, "b")
	assert.True(t, deleted)
	assert.Nil(t, reg.GetRoom("HOSTS"))
	assert.Zero(t, reg.Len())
}

func TestRegistryFirstMemberBecomesHostWhenCreatorMissing(t *testing.T) {
	reg := NewRegistry(DefaultChatHistorySize, seq("NOHST"), nil)
	room, err := reg.CreateRoom("ghost")
	require.NoError(t, err)

	reg.AddClient(room, &RoomClient{ID: "x", Name: "X"})
	assertSingleHost(t, room, "x")
}

func TestRegistryBroadcastContinuesPastFailedSend(t *testing.T) {
	reg := NewRegistry(DefaultChatHistorySize, seq("BCAST"), nil)
	room, err := reg.CreateRoom("a")
	require.NoError(t, err)

	a, b, c := newFakeTransport("ta"), newFakeTransport("tb"), newFakeTransport("tc")
	reg.AddClient(room, &RoomClient{ID: "a", Name: "A", transport: a})
	reg.AddClient(room, &RoomClient{ID: "b", Name: "B", transport: b})
	reg.AddClient(room, &RoomClient{ID: "c", Name: "C", transport: c})
	b.setFail(true)

	delivered := reg.Broadcast(room, EventTyping{Name: "A"}, "a")
	assert.Equal(t, 1, delivered)
	assert.Len(t, a.frames, 0)
	assert.Len(t, c.frames, 1)
}

func assertSingleHost(t *testing.T, room *Room, want string) {
	t.Helper()
	require.Equal(t, want, room.HostID)
	hosts := 0
	for _, c := range room.Clients() {
		if c.IsHost {
			hosts++
			assert.Equal(t, want, c.ID)
		}
	}
	assert.Equal(t, 1, hosts)
}
