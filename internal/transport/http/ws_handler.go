package http

import (
	"context"
	"errors"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/auth"
	"github.com/roomcast/roomcast-server/internal/chat"
)

// WSHandler terminates WebSocket connections and feeds inbound frames to the
// session handler one event at a time.
type WSHandler struct {
	sessions  *chat.SessionHandler
	peers     *PeerTable
	verifier  *auth.Verifier
	rateLimit int
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(sessions *chat.SessionHandler, peers *PeerTable, verifier *auth.Verifier, rateLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		sessions:  sessions,
		peers:     peers,
		verifier:  verifier,
		rateLimit: rateLimit,
		log:       logger,
	}
}

// wsError is the error frame written back on a rejected action.
type wsError struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	if h.verifier != nil {
		if err := h.verifier.Verify(r.URL.Query().Get("auth")); err != nil {
			h.log.Debug().Err(err).Msg("ws auth rejected")
			stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	connectionID := uuid.NewString()
	h.peers.Register(connectionID, conn)
	h.sessions.HandleConnect(ctx, connectionID)

	defer func() {
		h.peers.Unregister(connectionID)
		// Detach from the request context: it is already done when the
		// connection closes, but the registry row still has to go.
		if err := h.sessions.HandleDisconnect(context.WithoutCancel(ctx), connectionID); err != nil {
			h.log.Warn().Err(err).Str("conn_id", connectionID).Msg("disconnect cleanup failed")
		}
	}()

	limiter := newRateLimiter(h.rateLimit)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	err = h.readLoop(ctx, conn, connectionID, limiter)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			status = websocket.StatusInternalError
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", connectionID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, connectionID string, limiter *rateLimiter) error {
	for {
		typ, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		if !limiter.allow() {
			if err := h.writeError(ctx, conn, chat.ErrCodeBadRequest, "message rate limit exceeded"); err != nil {
				return err
			}
			continue
		}

		if err := h.sessions.HandleFrame(ctx, connectionID, raw); err != nil {
			var cerr *chat.Error
			if errors.As(err, &cerr) {
				// A bad frame is the client's problem, not the connection's.
				if err := h.writeError(ctx, conn, cerr.Code, cerr.Message); err != nil {
					return err
				}
				continue
			}
			return err
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, wsError{Error: errorBody{Code: code, Msg: msg}})
}
