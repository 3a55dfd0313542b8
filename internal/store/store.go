package store

import "context"

// MessageKind distinguishes user chat messages from server-generated notices.
type MessageKind string

const (
	KindMessage MessageKind = "message"
	KindSystem  MessageKind = "system"
)

// Message is a persisted chat message. Seq is assigned by the store on append
// and breaks timestamp ties in insertion order.
type Message struct {
	Seq       int64
	RoomID    string
	Timestamp int64 // unix milliseconds, server-assigned
	Nickname  string
	Body      string
	Kind      MessageKind
}

// Position marks a resume point inside a room's message history.
// It is the (timestamp, seq) pair of the last message a page returned.
type Position struct {
	Timestamp int64 `json:"ts"`
	Seq       int64 `json:"seq"`
}

// MessageStore handles message persistence. Writes are append-only and
// partition-isolated per room.
type MessageStore interface {
	// AppendMessage persists a message and fills in its Seq.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit messages for a room strictly after the
	// given position, ascending by (timestamp, seq). A nil position starts
	// from the beginning of the room's history.
	ListMessages(ctx context.Context, roomID string, limit int, after *Position) ([]*Message, error)
}

// ConnectionStore is the presence directory mapping rooms to live connection
// IDs. It is best-effort: entries may be momentarily stale and are pruned by
// the dispatcher on delivery failure, not by locking.
type ConnectionStore interface {
	// AddConnection registers a connection in a room. Idempotent. A
	// connection already registered elsewhere is moved, so an ID maps to at
	// most one room at any instant.
	AddConnection(ctx context.Context, roomID, connectionID string) error

	// RemoveConnection deletes every entry for the connection, whatever room
	// it ended up in. No-op when absent.
	RemoveConnection(ctx context.Context, connectionID string) error

	// ListMembers returns the current connection IDs joined to a room. The
	// result may race with concurrent joins and removals.
	ListMembers(ctx context.Context, roomID string) ([]string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	ConnectionStore

	// Close closes the underlying database connection.
	Close() error
}
