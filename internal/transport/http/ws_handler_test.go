package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/auth"
	"github.com/vovakirdan/watchparty-server/internal/config"
	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/proto"
	"github.com/vovakirdan/watchparty-server/internal/service/library"
)

type testServer struct {
	*httptest.Server
	auth *auth.Service
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	st := createTestStore(t)
	authService := createTestAuthService(t, st, "testsecret")
	lib := library.New(st, &logger)

	hub := core.NewHub(core.Options{Recorder: lib, Logger: &logger})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	server := NewServer(Deps{Hub: hub, Auth: authService, Library: lib}, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, auth: authService}
}

func (ts *testServer) dial(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		wsURL += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, clientID, kind string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s: %v", kind, err)
		}
		raw = b
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: kind, ClientID: clientID, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", kind, err)
	}
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads frames until one of the given kind arrives.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, kind string) json.RawMessage {
	t.Helper()
	for {
		var ev wireEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if ev.Type == kind {
			return ev.Data
		}
	}
}

func roomInfo(t *testing.T, raw json.RawMessage) core.RoomSnapshot {
	t.Helper()
	var info core.EventRoomInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("unmarshal room-info: %v", err)
	}
	return info.Room
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketCreateJoinAndChat(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := ts.dial(ctx, t, "")
	guest := ts.dial(ctx, t, "")

	send(ctx, t, host, "host-1", proto.TypeJoin, proto.JoinData{Name: "Alice"})
	created := roomInfo(t, readUntil(ctx, t, host, proto.TypeRoomInfo))
	if !created.IsHost || len(created.Code) != 5 {
		t.Fatalf("unexpected created room: %+v", created)
	}

	send(ctx, t, guest, "guest-1", proto.TypeJoin, proto.JoinData{RoomCode: strings.ToLower(created.Code), Name: "Bob"})
	joined := roomInfo(t, readUntil(ctx, t, guest, proto.TypeRoomInfo))
	if joined.Code != created.Code || joined.IsHost || joined.ClientCount != 2 {
		t.Fatalf("unexpected joined room: %+v", joined)
	}

	var userJoined core.EventUserJoined
	if err := json.Unmarshal(readUntil(ctx, t, host, proto.TypeUserJoined), &userJoined); err != nil {
		t.Fatalf("unmarshal user-joined: %v", err)
	}
	if userJoined.Name != "Bob" || userJoined.Count != 2 {
		t.Fatalf("unexpected user-joined: %+v", userJoined)
	}

	send(ctx, t, guest, "guest-1", proto.TypeChat, proto.ChatData{Text: "hi there"})
	for _, conn := range []*websocket.Conn{host, guest} {
		var chat core.EventChat
		if err := json.Unmarshal(readUntil(ctx, t, conn, proto.TypeChat), &chat); err != nil {
			t.Fatalf("unmarshal chat: %v", err)
		}
		if chat.Name != "Bob" || chat.Text != "hi there" || chat.MsgID != 1 {
			t.Fatalf("unexpected chat: %+v", chat)
		}
	}
}

func TestWebSocketUnknownRoom(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := ts.dial(ctx, t, "")
	send(ctx, t, conn, "c1", proto.TypeJoin, proto.JoinData{RoomCode: "ZZZZZ", Name: "Bob"})

	var ev core.EventError
	if err := json.Unmarshal(readUntil(ctx, t, conn, proto.TypeError), &ev); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if ev.Message != "Room not found" {
		t.Fatalf("unexpected error message: %q", ev.Message)
	}
}

func TestWebSocketMalformedFramesAreDropped(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := ts.dial(ctx, t, "")
	for _, frame := range []string{
		`not json`,
		`{"type":"join","data":{}}`,
		`{"type":"warp-drive","clientId":"c1"}`,
		`{"type":"seek","clientId":"c1","data":{}}`,
	} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
			t.Fatalf("write %q: %v", frame, err)
		}
	}

	// the connection survives and still serves valid frames
	send(ctx, t, conn, "c1", proto.TypeJoin, proto.JoinData{Name: "Alice"})
	if info := roomInfo(t, readUntil(ctx, t, conn, proto.TypeRoomInfo)); info.ClientID != "c1" {
		t.Fatalf("unexpected room-info: %+v", info)
	}
}

func TestWebSocketReconnectKeepsSeat(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := ts.dial(ctx, t, "")
	send(ctx, t, host, "host-1", proto.TypeJoin, proto.JoinData{Name: "Alice"})
	code := roomInfo(t, readUntil(ctx, t, host, proto.TypeRoomInfo)).Code

	first := ts.dial(ctx, t, "")
	send(ctx, t, first, "guest-1", proto.TypeJoin, proto.JoinData{RoomCode: code, Name: "Bob"})
	readUntil(ctx, t, first, proto.TypeRoomInfo)
	readUntil(ctx, t, host, proto.TypeUserJoined)
	first.Close(websocket.StatusGoingAway, "network blip")

	second := ts.dial(ctx, t, "")
	send(ctx, t, second, "guest-1", proto.TypeJoin, proto.JoinData{RoomCode: code, Name: "Bob"})
	info := roomInfo(t, readUntil(ctx, t, second, proto.TypeRoomInfo))
	if info.ClientCount != 2 {
		t.Fatalf("expected seat to be kept, got %+v", info)
	}

	// no leave or rejoin broadcast reaches the host
	send(ctx, t, host, "host-1", proto.TypeChat, proto.ChatData{Text: "still here?"})
	var ev wireEvent
	if err := wsjson.Read(ctx, host, &ev); err != nil {
		t.Fatalf("read host: %v", err)
	}
	if ev.Type != proto.TypeChat {
		t.Fatalf("host saw %s before its own chat", ev.Type)
	}
}

func TestWebSocketInvalidTokenRejected(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=garbage"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketSharedWatchIsRecordedForTokenAccounts(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := ts.auth.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := ts.auth.Register(ctx, "bob", "password123")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	host := ts.dial(ctx, t, alice.Token)
	follower := ts.dial(ctx, t, bob.Token)

	// claimed user ids are replaced by the token's account
	send(ctx, t, host, "host-1", proto.TypeJoin, proto.JoinData{Name: "Alice", UserID: "999"})
	code := roomInfo(t, readUntil(ctx, t, host, proto.TypeRoomInfo)).Code
	send(ctx, t, follower, "guest-1", proto.TypeJoin, proto.JoinData{RoomCode: code, Name: "Bob", UserID: "998"})
	readUntil(ctx, t, follower, proto.TypeRoomInfo)

	send(ctx, t, host, "host-1", proto.TypeSetShow, map[string]any{"show": map[string]string{"title": "Show"}, "sourceUrl": "https://example.org/show"})
	readUntil(ctx, t, follower, proto.TypeShowLoaded)
	send(ctx, t, host, "host-1", proto.TypeSelectEpisode, map[string]any{"episode": map[string]int{"n": 1}})
	send(ctx, t, host, "host-1", proto.TypeStreamReady, proto.StreamReadyData{StreamURL: "https://cdn/ep1.m3u8"})
	readUntil(ctx, t, follower, proto.TypeEpisodeChange)

	deadline := time.Now().Add(2 * time.Second)
	for {
		body := getWithToken(t, ts, "/api/watches", bob.Token)
		var out struct {
			Watches []SharedWatchResponse `json:"watches"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("unmarshal watches: %v", err)
		}
		if len(out.Watches) == 1 {
			if out.Watches[0].PartnerID != alice.UserID || out.Watches[0].RoomCode != code {
				t.Fatalf("unexpected watch: %+v", out.Watches[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("shared watch was not recorded: %s", body)
		}
		time.Sleep(20 * time.Millisecond)
	}

	body := getWithToken(t, ts, "/api/library", alice.Token)
	if !bytes.Contains(body, []byte(`"status":"watching"`)) {
		t.Fatalf("expected library entry in watching, got %s", body)
	}
}

func TestWebSocketClaimedUserIDWithoutTokenIsIgnored(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := ts.auth.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := ts.auth.Register(ctx, "bob", "password123")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	// anonymous sockets claiming real account ids
	host := ts.dial(ctx, t, "")
	follower := ts.dial(ctx, t, "")
	send(ctx, t, host, "host-1", proto.TypeJoin, proto.JoinData{Name: "Mallory", UserID: strconv.FormatInt(alice.UserID, 10)})
	code := roomInfo(t, readUntil(ctx, t, host, proto.TypeRoomInfo)).Code
	send(ctx, t, follower, "guest-1", proto.TypeJoin, proto.JoinData{RoomCode: code, Name: "Eve", UserID: strconv.FormatInt(bob.UserID, 10)})
	readUntil(ctx, t, follower, proto.TypeRoomInfo)

	send(ctx, t, host, "host-1", proto.TypeSetShow, map[string]any{"show": map[string]string{"title": "Show"}, "sourceUrl": "https://example.org/show"})
	send(ctx, t, host, "host-1", proto.TypeSelectEpisode, map[string]any{"episode": map[string]int{"n": 1}})
	send(ctx, t, host, "host-1", proto.TypeStreamReady, proto.StreamReadyData{StreamURL: "https://cdn/ep1.m3u8"})
	readUntil(ctx, t, follower, proto.TypeEpisodeChange)
	time.Sleep(200 * time.Millisecond)

	for _, token := range []string{alice.Token, bob.Token} {
		if body := getWithToken(t, ts, "/api/watches", token); !bytes.Contains(body, []byte(`"watches":[]`)) {
			t.Fatalf("expected no watches, got %s", body)
		}
		if body := getWithToken(t, ts, "/api/library", token); !bytes.Contains(body, []byte(`"entries":[]`)) {
			t.Fatalf("expected empty library, got %s", body)
		}
	}
}

func TestWebSocketUpgradeAlongsideREST(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	if resp.StatusCode != stdhttp.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	send(ctx, t, conn, "c1", proto.TypeJoin, proto.JoinData{Name: "Alice"})
	code := roomInfo(t, readUntil(ctx, t, conn, proto.TypeRoomInfo)).Code

	// the REST side still answers through the router
	lookup, err := ts.Client().Get(ts.URL + "/api/rooms/" + strings.ToLower(code))
	if err != nil {
		t.Fatalf("room lookup: %v", err)
	}
	defer lookup.Body.Close()
	if lookup.StatusCode != stdhttp.StatusOK {
		t.Fatalf("expected 200 for live room, got %d", lookup.StatusCode)
	}
}

func getWithToken(t *testing.T, ts *testServer, path, token string) []byte {
	t.Helper()
	req, err := stdhttp.NewRequest(stdhttp.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.Bytes()
}
