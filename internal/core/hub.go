package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	inboxSize            = 256
	defaultRecordTimeout = 5 * time.Second
)

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	GracePeriod     time.Duration
	ChatHistorySize int
	RecordTimeout   time.Duration
	Recorder        WatchRecorder
	CodeGenerator   CodeGenerator
	Logger          *zerolog.Logger
}

// Hub owns every room and client session of one server. All state is
// mutated from the Run goroutine only; other goroutines talk to it by
// posting onto its inbox.
type Hub struct {
	registry *Registry
	sessions map[string]*session
	conns    map[string]string // transport id -> client id

	inbox    chan hubMessage
	done     chan struct{}
	stopOnce sync.Once

	gracePeriod   time.Duration
	recordTimeout time.Duration
	recorder      WatchRecorder
	timerSeq      uint64
	baseCtx       context.Context
	now           func() time.Time
	log           *zerolog.Logger
}

// RoomSummary is a read-only view of a room for lookups outside the loop.
type RoomSummary struct {
	Code        string   `json:"code"`
	ClientCount int      `json:"clientCount"`
	Viewers     []string `json:"viewers"`
	IsPlaying   bool     `json:"isPlaying"`
	HasStream   bool     `json:"hasStream"`
}

type hubMessage interface{}

type inboundMessage struct {
	transport Transport
	clientID  string
	cmd       Command
}

type transportClosed struct {
	transport Transport
}

type graceExpired struct {
	clientID string
	gen      uint64
}

type roomQuery struct {
	code  string
	reply chan *RoomSummary
}

// NewHub creates a new hub instance.
func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	history := opts.ChatHistorySize
	if history <= 0 {
		history = DefaultChatHistorySize
	}
	recordTimeout := opts.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = defaultRecordTimeout
	}

	return &Hub{
		registry:      NewRegistry(history, opts.CodeGenerator, logger),
		sessions:      make(map[string]*session),
		conns:         make(map[string]string),
		inbox:         make(chan hubMessage, inboxSize),
		done:          make(chan struct{}),
		gracePeriod:   grace,
		recordTimeout: recordTimeout,
		recorder:      opts.Recorder,
		baseCtx:       context.Background(),
		now:           time.Now,
		log:           logger,
	}
}

// Run processes inbound messages one at a time until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.baseCtx = ctx
	defer h.stop()

	h.log.Info().Dur("grace_period", h.gracePeriod).Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Int("rooms", h.registry.Len()).Msg("hub stopped")
			return
		case msg := <-h.inbox:
			h.handle(msg)
		}
	}
}

// Dispatch queues a command from clientID received on t.
func (h *Hub) Dispatch(t Transport, clientID string, cmd Command) {
	h.post(inboundMessage{transport: t, clientID: clientID, cmd: cmd})
}

// TransportClosed reports that t is gone without an explicit disconnect.
func (h *Hub) TransportClosed(t Transport) {
	h.post(transportClosed{transport: t})
}

// LookupRoom returns a summary of an active room.
func (h *Hub) LookupRoom(ctx context.Context, code string) (RoomSummary, error) {
	reply := make(chan *RoomSummary, 1)
	select {
	case h.inbox <- roomQuery{code: code, reply: reply}:
	case <-ctx.Done():
		return RoomSummary{}, ctx.Err()
	case <-h.done:
		return RoomSummary{}, ErrHubStopped
	}

	select {
	case sum := <-reply:
		if sum == nil {
			return RoomSummary{}, ErrRoomNotFound
		}
		return *sum, nil
	case <-ctx.Done():
		return RoomSummary{}, ctx.Err()
	case <-h.done:
		return RoomSummary{}, ErrHubStopped
	}
}

func (h *Hub) post(msg hubMessage) {
	select {
	case h.inbox <- msg:
	case <-h.done:
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		for _, s := range h.sessions {
			s.cancelGrace()
		}
	})
}

func (h *Hub) handle(msg hubMessage) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error().Interface("panic", p).Msg("hub handler panicked")
		}
	}()

	switch m := msg.(type) {
	case inboundMessage:
		h.dispatch(m)
	case transportClosed:
		h.handleTransportClosed(m.transport)
	case graceExpired:
		h.handleGraceExpired(m)
	case roomQuery:
		m.reply <- h.summary(m.code)
	default:
		h.log.Warn().Msgf("unknown hub message %T", msg)
	}
}

func (h *Hub) dispatch(m inboundMessage) {
	if m.clientID == "" || m.cmd == nil {
		h.log.Debug().Msg("dropping envelope without client identity")
		return
	}
	s := h.session(m.clientID, m.transport)

	switch cmd := m.cmd.(type) {
	case CommandIdentify:
		h.identify(s, cmd)
	case CommandJoin:
		h.join(s, m.transport, cmd)
	case CommandDisconnect:
		h.disconnect(s)
	case CommandSetShow:
		h.setShow(s, cmd)
	case CommandSelectEpisode:
		h.selectEpisode(s, cmd)
	case CommandStreamReady:
		h.streamReady(s, cmd)
	case CommandPlay:
		h.play(s, cmd)
	case CommandPause:
		h.pause(s, cmd)
	case CommandSeek:
		h.seek(s, cmd)
	case CommandSync:
		h.sync(s, cmd)
	case CommandSyncRequest:
		h.syncRequest(s, m.transport)
	case CommandChat:
		h.chat(s, cmd)
	case CommandChatEdit:
		h.chatEdit(s, cmd)
	case CommandReaction:
		h.reaction(s, cmd)
	case CommandChatReaction:
		h.chatReaction(s, cmd)
	case CommandTyping:
		h.typing(s)
	default:
		h.log.Warn().Str("client_id", m.clientID).Msgf("unhandled command %T", m.cmd)
	}
}

// session returns the session for clientID, creating it on first contact.
func (h *Hub) session(clientID string, t Transport) *session {
	s, ok := h.sessions[clientID]
	if !ok {
		s = &session{clientID: clientID}
		h.sessions[clientID] = s
	}
	if t != nil {
		h.conns[t.ID()] = clientID
		if !s.bound() {
			s.transport = t
		}
	}
	return s
}

// member resolves the room and membership record of a bound session.
func (h *Hub) member(s *session) (*Room, *RoomClient) {
	if !s.bound() {
		return nil, nil
	}
	room := h.registry.GetRoom(s.roomCode)
	if room == nil {
		return nil, nil
	}
	c := room.Client(s.clientID)
	if c == nil {
		return nil, nil
	}
	return room, c
}

func (h *Hub) sendTo(t Transport, ev Event) {
	if t == nil {
		return
	}
	frame, err := EncodeEvent(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.EventType()).Msg("encode event")
		return
	}
	if err := t.Send(frame); err != nil {
		h.log.Debug().Err(err).Str("transport_id", t.ID()).Msg("send failed")
	}
}

func (h *Hub) summary(code string) *RoomSummary {
	room := h.registry.GetRoom(code)
	if room == nil {
		return nil
	}
	return &RoomSummary{
		Code:        room.Code,
		ClientCount: room.Len(),
		Viewers:     room.Viewers(),
		IsPlaying:   room.IsPlaying,
		HasStream:   room.StreamURL != nil,
	}
}
