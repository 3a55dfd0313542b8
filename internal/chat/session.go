package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/store"
)

// Action is the inbound frame sent by clients over the realtime channel.
type Action struct {
	Action   string `json:"action"`
	RoomID   string `json:"roomId"`
	Text     string `json:"text"`
	Nickname string `json:"nickname"`
}

const (
	ActionJoin        = "join"
	ActionSendMessage = "sendMessage"
	ActionLeave       = "leave"
)

// SessionHandler is the per-event entry point for the realtime channel. Each
// invocation is independent; the registry and message store are the only
// shared state, both safe for concurrent access.
type SessionHandler struct {
	store      store.Store
	dispatcher *Dispatcher
	log        *zerolog.Logger
	now        func() time.Time
}

// NewSessionHandler builds a session handler over the given store and
// dispatcher.
func NewSessionHandler(st store.Store, dispatcher *Dispatcher, logger *zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		store:      st,
		dispatcher: dispatcher,
		log:        logger,
		now:        time.Now,
	}
}

// HandleConnect acknowledges a new transport connection. The connection is
// not associated with any room until it joins one.
func (h *SessionHandler) HandleConnect(_ context.Context, connectionID string) {
	h.log.Info().Str("conn_id", connectionID).Msg("connect")
}

// HandleDisconnect removes the connection from whatever room it was in.
// Idempotent.
func (h *SessionHandler) HandleDisconnect(ctx context.Context, connectionID string) error {
	if err := h.store.RemoveConnection(ctx, connectionID); err != nil {
		return chatError(ErrCodeStoreUnavailable, "remove connection: "+err.Error())
	}
	h.log.Info().Str("conn_id", connectionID).Msg("disconnect")
	return nil
}

// HandleFrame classifies an inbound action frame and drives registry,
// persistence and fan-out. Unknown actions are a bad-request error, never
// fatal to other connections.
func (h *SessionHandler) HandleFrame(ctx context.Context, connectionID string, raw []byte) error {
	var act Action
	if err := json.Unmarshal(raw, &act); err != nil {
		return chatError(ErrCodeBadRequest, "malformed action frame")
	}

	switch act.Action {
	case ActionJoin:
		return h.handleJoin(ctx, connectionID, act)
	case ActionSendMessage:
		return h.handleSend(ctx, connectionID, act)
	case ActionLeave:
		return h.handleLeave(ctx, connectionID, act)
	default:
		return chatError(ErrCodeUnknownAction, fmt.Sprintf("unknown action %q", act.Action))
	}
}

func (h *SessionHandler) handleJoin(ctx context.Context, connectionID string, act Action) error {
	if act.RoomID == "" {
		return chatError(ErrCodeRoomRequired, "join requires a roomId")
	}

	if err := h.store.AddConnection(ctx, act.RoomID, connectionID); err != nil {
		return chatError(ErrCodeStoreUnavailable, "add connection: "+err.Error())
	}
	h.log.Info().Str("conn_id", connectionID).Str("room", act.RoomID).Str("nickname", act.Nickname).Msg("joined room")

	if act.Nickname != "" {
		notice := Message{
			RoomID:    act.RoomID,
			Timestamp: h.now().UnixMilli(),
			Nickname:  act.Nickname,
			Text:      act.Nickname + " joined",
			Type:      TypeSystem,
		}
		if err := h.persistAndBroadcast(ctx, notice); err != nil {
			// The join itself succeeded; a lost notice is not worth failing it.
			h.log.Warn().Err(err).Str("room", act.RoomID).Msg("join notice dropped")
		}
	}
	return nil
}

func (h *SessionHandler) handleSend(ctx context.Context, connectionID string, act Action) error {
	if act.RoomID == "" {
		return chatError(ErrCodeRoomRequired, "sendMessage requires a roomId")
	}
	if strings.TrimSpace(act.Text) == "" {
		return chatError(ErrCodeBadRequest, "sendMessage requires text")
	}

	msg := Message{
		RoomID:    act.RoomID,
		Timestamp: h.now().UnixMilli(),
		Nickname:  act.Nickname,
		Text:      act.Text,
		Type:      TypeMessage,
	}
	h.log.Debug().Str("conn_id", connectionID).Str("room", act.RoomID).Msg("message received")
	return h.persistAndBroadcast(ctx, msg)
}

func (h *SessionHandler) handleLeave(ctx context.Context, connectionID string, act Action) error {
	if err := h.store.RemoveConnection(ctx, connectionID); err != nil {
		return chatError(ErrCodeStoreUnavailable, "remove connection: "+err.Error())
	}
	h.log.Info().Str("conn_id", connectionID).Str("room", act.RoomID).Msg("left room")
	return nil
}

// persistAndBroadcast writes the message to history before fanning it out, so
// a client that reconnects and re-fetches history sees every message it could
// have received live. A message that cannot be persisted is not broadcast.
func (h *SessionHandler) persistAndBroadcast(ctx context.Context, msg Message) error {
	if err := h.store.AppendMessage(ctx, toStore(msg)); err != nil {
		return chatError(ErrCodeStoreUnavailable, "persist message: "+err.Error())
	}

	if _, err := h.dispatcher.Broadcast(ctx, msg); err != nil {
		return err
	}
	return nil
}
