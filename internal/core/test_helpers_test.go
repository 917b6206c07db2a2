package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errSendFailed = errors.New("send failed")

type fakeTransport struct {
	id     string
	frames chan []byte

	mu   sync.Mutex
	fail bool
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id, frames: make(chan []byte, 128)}
}

func (f *fakeTransport) ID() string { return f.id }

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errSendFailed
	}
	select {
	case f.frames <- frame:
		return nil
	default:
		return errSendFailed
	}
}

func (f *fakeTransport) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// mustEvent waits for the next frame of the given type, skipping others.
func mustEvent(t *testing.T, ft *fakeTransport, kind string) wireFrame {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case raw := <-ft.frames:
			var f wireFrame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Type == kind {
				return f
			}
		case <-timeout:
			t.Fatalf("expected %q on %s, got nothing", kind, ft.id)
			return wireFrame{}
		}
	}
}

// expectNoEvent drains ft for wait and fails if a frame of kind shows up.
func expectNoEvent(t *testing.T, ft *fakeTransport, kind string, wait time.Duration) {
	t.Helper()

	timeout := time.After(wait)
	for {
		select {
		case raw := <-ft.frames:
			var f wireFrame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Type == kind {
				t.Fatalf("unexpected %q on %s: %s", kind, ft.id, f.Data)
			}
		case <-timeout:
			return
		}
	}
}

func decodeData[T any](t *testing.T, f wireFrame) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(f.Data, &out))
	return out
}

// assertJSONNull accepts an absent or literal null payload. A nil raw field
// goes out as null and comes back as the bytes "null".
func assertJSONNull(t *testing.T, raw json.RawMessage) {
	t.Helper()
	if len(raw) != 0 && string(raw) != "null" {
		t.Fatalf("expected null, got %s", raw)
	}
}

func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(opts)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

// barrier waits until the hub has processed everything queued before it.
func barrier(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := hub.LookupRoom(ctx, "")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

// createRoom joins clientID as host of a new room and returns its snapshot.
func createRoom(t *testing.T, hub *Hub, ft *fakeTransport, clientID, name string) RoomSnapshot {
	t.Helper()
	hub.Dispatch(ft, clientID, CommandJoin{Name: name})
	return decodeData[EventRoomInfo](t, mustEvent(t, ft, "room-info")).Room
}

func joinRoom(t *testing.T, hub *Hub, ft *fakeTransport, clientID, name, code string) RoomSnapshot {
	t.Helper()
	hub.Dispatch(ft, clientID, CommandJoin{RoomCode: code, Name: name})
	return decodeData[EventRoomInfo](t, mustEvent(t, ft, "room-info")).Room
}

func seq(codes ...string) CodeGenerator {
	i := 0
	return func() string {
		c := codes[i%len(codes)]
		i++
		return c
	}
}
