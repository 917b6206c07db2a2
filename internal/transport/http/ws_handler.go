package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/auth"
	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/utils"
)

const writeTimeout = 10 * time.Second

var (
	errTransportClosed = errors.New("transport closed")
	errSlowConsumer    = errors.New("send queue full")
)

// WSOptions tunes a websocket handler.
type WSOptions struct {
	MaxMessageBytes    int64
	RateLimitPerMinute int
	SendQueueSize      int
}

// WSHandler upgrades HTTP connections and bridges them to the Hub.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	opts WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil, in
// which case the token query parameter is ignored.
func NewWSHandler(hub *core.Hub, authService *auth.Service, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 64
	}
	return &WSHandler{hub: hub, auth: authService, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	t := newWSTransport(utils.NewID(), h.opts.SendQueueSize, cancel)
	logger := h.log.With().Str("conn_id", t.ID()).Str("account", account).Logger()
	logger.Debug().Msg("ws connected")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, t, account, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, t, &logger)
	}()

	err = <-errCh
	cancel()
	<-errCh

	// the hub starts the grace period; nothing else may be sent on t
	t.close()
	h.hub.TransportClosed(t)

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(t.cause(), errSlowConsumer):
		status = websocket.StatusPolicyViolation
		reason = "too slow"
	case err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF):
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			break
		}
		status = websocket.StatusInternalError
		reason = "internal error"
		logger.Warn().Err(err).Msg("ws connection closed with error")
	}
	logger.Debug().Int("status", int(status)).Msg("ws disconnected")

	_ = conn.Close(status, reason)
}

// account resolves the optional ?token= into an account id. An invalid
// token rejects the upgrade.
func (h *WSHandler) account(w stdhttp.ResponseWriter, r *stdhttp.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" || h.auth == nil {
		return "", true
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
		return "", false
	}
	return claims.Identity(), true
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, t *wsTransport, account string, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute)
	limiter.startReset(ctx.Done())

	for {
		typ, frame, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			logger.Debug().Msg("ignoring binary frame")
			continue
		}
		if !limiter.allow() {
			logger.Debug().Msg("rate limit exceeded, frame dropped")
			continue
		}

		clientID, cmd, err := decodeInbound(frame)
		if err != nil {
			logger.Debug().Err(err).Str("client_id", clientID).Msg("dropping malformed frame")
			continue
		}
		h.hub.Dispatch(t, clientID, withAccount(cmd, account))
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, t *wsTransport, logger *zerolog.Logger) error {
	for {
		select {
		case frame := <-t.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				logger.Debug().Err(err).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wsTransport is the Hub's handle on one websocket. Send never blocks the
// Hub: a full queue drops the connection instead.
type wsTransport struct {
	id   string
	send chan []byte

	mu     sync.Mutex
	closed bool
	err    error
	kill   context.CancelFunc
}

func newWSTransport(id string, queue int, kill context.CancelFunc) *wsTransport {
	return &wsTransport{id: id, send: make(chan []byte, queue), kill: kill}
}

func (t *wsTransport) ID() string { return t.id }

func (t *wsTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	select {
	case t.send <- frame:
		return nil
	default:
		t.closed = true
		t.err = errSlowConsumer
		t.kill()
		return errSlowConsumer
	}
}

func (t *wsTransport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *wsTransport) cause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
