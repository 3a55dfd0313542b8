package chat

import (
	"github.com/roomcast/roomcast-server/internal/store"
)

// Message is the wire form of a chat message, broadcast to room members and
// returned by history queries.
type Message struct {
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Type      string `json:"type"`
}

const (
	// TypeMessage marks an ordinary user message.
	TypeMessage = "message"
	// TypeSystem marks a server-generated notice, rendered distinctly.
	TypeSystem = "system"
)

// Key identifies a message for deduplication across the live channel and a
// concurrent history refresh.
type Key struct {
	RoomID    string
	Timestamp int64
	Nickname  string
}

// DedupKey returns the message's deduplication identity.
func (m Message) DedupKey() Key {
	return Key{RoomID: m.RoomID, Timestamp: m.Timestamp, Nickname: m.Nickname}
}

func fromStore(msg *store.Message) Message {
	return Message{
		RoomID:    msg.RoomID,
		Timestamp: msg.Timestamp,
		Nickname:  msg.Nickname,
		Text:      msg.Body,
		Type:      string(msg.Kind),
	}
}

func toStore(msg Message) *store.Message {
	return &store.Message{
		RoomID:    msg.RoomID,
		Timestamp: msg.Timestamp,
		Nickname:  msg.Nickname,
		Body:      msg.Text,
		Kind:      store.MessageKind(msg.Type),
	}
}
