package client

import (
	"encoding/json"

	"github.com/roomcast/roomcast-server/internal/chat"
)

// FrameKind tags the recognized inbound payload shapes.
type FrameKind int

const (
	// FrameBatch is a bare array of messages or an {items: [...]} object.
	FrameBatch FrameKind = iota
	// FrameSingle is a single message, bare or wrapped in {message: {...}}.
	FrameSingle
	// FrameUnknown is anything else; logged and dropped, never coerced.
	FrameUnknown
)

// Frame is the decoded form of one inbound WebSocket payload.
type Frame struct {
	Kind     FrameKind
	Messages []chat.Message
}

// envelope covers the two wrapped shapes the server side may produce.
type envelope struct {
	Items   json.RawMessage `json:"items"`
	Message json.RawMessage `json:"message"`
}

// DecodeFrame classifies an inbound payload into one of the recognized
// shapes: bare array, {items: [...]}, {message: {...}}, or a bare message
// object (the broadcast frame). Everything else is FrameUnknown.
func DecodeFrame(raw []byte) Frame {
	var batch []chat.Message
	if err := json.Unmarshal(raw, &batch); err == nil {
		return Frame{Kind: FrameBatch, Messages: batch}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{Kind: FrameUnknown}
	}

	if len(env.Items) > 0 {
		if err := json.Unmarshal(env.Items, &batch); err != nil {
			return Frame{Kind: FrameUnknown}
		}
		return Frame{Kind: FrameBatch, Messages: batch}
	}

	if len(env.Message) > 0 {
		var msg chat.Message
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return Frame{Kind: FrameUnknown}
		}
		return Frame{Kind: FrameSingle, Messages: []chat.Message{msg}}
	}

	// Broadcast frames are the serialized message itself.
	var msg chat.Message
	if err := json.Unmarshal(raw, &msg); err == nil && msg.RoomID != "" && msg.Type != "" {
		return Frame{Kind: FrameSingle, Messages: []chat.Message{msg}}
	}

	return Frame{Kind: FrameUnknown}
}
