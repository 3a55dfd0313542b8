package chat

// Error codes for domain errors.
const (
	ErrCodeRoomRequired     = "room_required"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnknownAction    = "unknown_action"
	ErrCodeCursorInvalid    = "cursor_invalid"
	ErrCodeStoreUnavailable = "store_unavailable"
)

// Error wraps a code and human-readable message. Codes naming a client
// mistake (bad request, bad cursor, unknown action) map to 4xx in the
// transport; store failures surface as 5xx.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func chatError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// IsClientError reports whether the code names a caller mistake rather than a
// server-side failure.
func IsClientError(code string) bool {
	switch code {
	case ErrCodeRoomRequired, ErrCodeBadRequest, ErrCodeUnknownAction, ErrCodeCursorInvalid:
		return true
	}
	return false
}
