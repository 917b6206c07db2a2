package roomclient

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/proto"
)

type fakePlayer struct {
	mu      sync.Mutex
	pos     float64
	playing bool
	seeks   []float64
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *fakePlayer) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = t
	p.seeks = append(p.seeks, t)
}

func (p *fakePlayer) seekCalls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.seeks...)
}

type capturedSender struct {
	sent chan proto.Inbound
}

func newCapturedSender() *capturedSender {
	return &capturedSender{sent: make(chan proto.Inbound, 64)}
}

func (c *capturedSender) Send(_ context.Context, frame []byte) error {
	var env proto.Inbound
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	c.sent <- env
	return nil
}

func (c *capturedSender) next(t *testing.T, kind string) proto.Inbound {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-c.sent:
			if env.Type == kind {
				return env
			}
		case <-timeout:
			t.Fatalf("no %q envelope sent", kind)
			return proto.Inbound{}
		}
	}
}

func frame(t *testing.T, ev core.Event) []byte {
	t.Helper()
	raw, err := core.EncodeEvent(ev)
	require.NoError(t, err)
	return raw
}

func joinedFollower(t *testing.T, player Player, sender Sender) *Store {
	t.Helper()
	s := New(Options{ClientID: "follower", Player: player, Sender: sender})
	t.Cleanup(s.Close)
	require.NoError(t, s.Apply(context.Background(), frame(t, core.EventRoomInfo{Room: core.RoomSnapshot{
		Code:        "ABCDE",
		HostID:      "host",
		ClientID:    "follower",
		ClientCount: 2,
		Viewers:     []string{"Host", "Me"},
	}})))
	return s
}

func TestStoreFollowerDriftCorrection(t *testing.T) {
	sender := newCapturedSender()

	near := &fakePlayer{pos: 121, playing: true}
	s := joinedFollower(t, near, sender)
	require.NoError(t, s.Apply(context.Background(), frame(t, core.EventSync{Time: 120, IsPlaying: true})))
	assert.Empty(t, near.seekCalls())

	far := &fakePlayer{pos: 125, playing: true}
	s = joinedFollower(t, far, sender)
	require.NoError(t, s.Apply(context.Background(), frame(t, core.EventSync{Time: 120, IsPlaying: true})))
	assert.Equal(t, []float64{120}, far.seekCalls())
	assert.True(t, far.Playing())
}

func TestStoreActionsStampClientID(t *testing.T) {
	sender := newCapturedSender()
	s := New(Options{Sender: sender})
	t.Cleanup(s.Close)
	require.NotEmpty(t, s.ClientID())

	require.NoError(t, s.Join(context.Background(), "", "Alice", ""))
	env := sender.next(t, proto.TypeJoin)
	assert.Equal(t, s.ClientID(), env.ClientID)

	var data proto.JoinData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Alice", data.Name)
	assert.Empty(t, data.RoomCode)

	require.ErrorIs(t, s.Chat(context.Background(), "too early", nil), ErrNotInRoom)
}

func TestStoreJoiningFollowerRequestsSync(t *testing.T) {
	sender := newCapturedSender()
	s := New(Options{ClientID: "f", Sender: sender})
	t.Cleanup(s.Close)

	url := "https://cdn/ep1.m3u8"
	require.NoError(t, s.Apply(context.Background(), frame(t, core.EventRoomInfo{Room: core.RoomSnapshot{
		Code: "ABCDE", HostID: "h", ClientID: "f", StreamURL: &url, IsPlaying: true,
	}})))
	sender.next(t, proto.TypeSyncRequest)
}

func TestStoreHostHeartbeat(t *testing.T) {
	sender := newCapturedSender()
	player := &fakePlayer{pos: 42}
	s := New(Options{ClientID: "h", Sender: sender, Player: player, HeartbeatInterval: 20 * time.Millisecond})
	t.Cleanup(s.Close)

	require.NoError(t, s.Apply(context.Background(), frame(t, core.EventRoomInfo{Room: core.RoomSnapshot{
		Code: "ABCDE", HostID: "h", ClientID: "h", IsHost: true,
	}})))
	require.NoError(t, s.Play(context.Background()))
	sender.next(t, proto.TypePlay)

	beat := sender.next(t, proto.TypeSync)
	var data proto.SyncData
	require.NoError(t, json.Unmarshal(beat.Data, &data))
	assert.Equal(t, 42.0, data.Time)
	assert.True(t, data.IsPlaying)

	require.NoError(t, s.Pause(context.Background()))
	sender.next(t, proto.TypePause)
	// drain a beat that may have been in flight, then expect silence
	time.Sleep(40 * time.Millisecond)
	for len(sender.sent) > 0 {
		<-sender.sent
	}
	select {
	case env := <-sender.sent:
		t.Fatalf("heartbeat kept running: %+v", env)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestStoreChatAndReactions(t *testing.T) {
	s := joinedFollower(t, nil, newCapturedSender())
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, frame(t, core.EventChat{Name: "Host", Text: "hello", MsgID: 1, Time: 1})))
	require.NoError(t, s.Apply(ctx, frame(t, core.EventChatEdit{MsgID: 1, Text: "hello!"})))
	require.NoError(t, s.Apply(ctx, frame(t, core.EventChatReaction{MsgID: 1, Emoji: "👍", Name: "Me", Action: core.ReactionAdded})))

	st := s.State()
	require.Len(t, st.Chat, 1)
	assert.Equal(t, "hello!", st.Chat[0].Text)
	assert.True(t, st.Chat[0].Edited)
	assert.Equal(t, []string{"Me"}, st.ChatReactions[1]["👍"])

	require.NoError(t, s.Apply(ctx, frame(t, core.EventChatReaction{MsgID: 1, Emoji: "👍", Name: "Me", Action: core.ReactionRemoved})))
	assert.Empty(t, s.State().ChatReactions)
}

func TestStoreChatHistoryBounded(t *testing.T) {
	s := joinedFollower(t, nil, newCapturedSender())
	for i := int64(1); i <= core.DefaultChatHistorySize+5; i++ {
		require.NoError(t, s.Apply(context.Background(), frame(t, core.EventChat{Name: "x", Text: "y", MsgID: i})))
	}
	st := s.State()
	require.Len(t, st.Chat, core.DefaultChatHistorySize)
	assert.EqualValues(t, 6, st.Chat[0].MsgID)
}

func TestStoreTypingExpires(t *testing.T) {
	s := New(Options{ClientID: "f", TypingTimeout: 30 * time.Millisecond})
	t.Cleanup(s.Close)

	require.NoError(t, s.Apply(context.Background(), frame(t, core.EventTyping{Name: "Bob"})))
	assert.Equal(t, []string{"Bob"}, s.State().Typing)

	assert.Eventually(t, func() bool { return len(s.State().Typing) == 0 }, time.Second, 10*time.Millisecond)
}

func TestStoreUserLeftUpdatesRoster(t *testing.T) {
	s := joinedFollower(t, nil, newCapturedSender())
	require.NoError(t, s.Apply(context.Background(), frame(t, core.EventUserLeft{Name: "Host", Count: 1, Viewers: []string{"Me"}})))

	st := s.State()
	assert.Equal(t, 1, st.ClientCount)
	assert.Equal(t, []string{"Me"}, st.Viewers)
}
