package chat

import (
	"encoding/base64"
	"encoding/json"

	"github.com/roomcast/roomcast-server/internal/store"
)

// cursorPayload is the decoded form of a continuation token. The room is
// carried so a token minted for one room cannot be replayed against another.
type cursorPayload struct {
	RoomID string `json:"roomId"`
	store.Position
}

// encodeCursor produces an opaque continuation token for the last returned
// message of a page.
func encodeCursor(roomID string, pos store.Position) string {
	raw, _ := json.Marshal(cursorPayload{RoomID: roomID, Position: pos})
	return base64.StdEncoding.EncodeToString(raw)
}

// decodeCursor validates and unpacks a continuation token. A malformed or
// tampered token is a client error, never a silent restart from the beginning.
func decodeCursor(roomID, token string) (*store.Position, *Error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, chatError(ErrCodeCursorInvalid, "malformed continuation token")
	}

	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, chatError(ErrCodeCursorInvalid, "malformed continuation token")
	}
	if payload.RoomID != roomID || payload.Timestamp <= 0 || payload.Seq <= 0 {
		return nil, chatError(ErrCodeCursorInvalid, "continuation token does not match request")
	}

	pos := payload.Position
	return &pos, nil
}
