package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrUnknownPeer is reported when a send targets a connection this instance
// no longer holds. The dispatcher treats it like any other delivery failure.
var ErrUnknownPeer = errors.New("unknown peer")

const sendTimeout = 5 * time.Second

// PeerTable maps transport-assigned connection IDs to live WebSocket
// connections. It implements chat.Sender for the broadcast dispatcher.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[string]*websocket.Conn
}

// NewPeerTable builds an empty peer table.
func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[string]*websocket.Conn)}
}

// Register adds a connection under its ID.
func (t *PeerTable) Register(connectionID string, conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[connectionID] = conn
}

// Unregister drops a connection. No-op when absent.
func (t *PeerTable) Unregister(connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, connectionID)
}

// Send writes a text frame to one peer. Failure means the connection is gone
// or unreachable.
func (t *PeerTable) Send(ctx context.Context, connectionID string, payload []byte) error {
	t.mu.RLock()
	conn, ok := t.peers[connectionID]
	t.mu.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

// Len returns the number of live peers.
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
