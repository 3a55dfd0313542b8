package chat

import (
	"context"

	"github.com/roomcast/roomcast-server/internal/store"
)

// HistoryPage is one page of a room's message history, oldest first. A nil
// NextToken means this was the last page.
type HistoryPage struct {
	Items     []Message `json:"items"`
	NextToken *string   `json:"nextToken"`
}

// HistoryService translates bounded page requests into cursor-paginated store
// queries.
type HistoryService struct {
	messages     store.MessageStore
	defaultLimit int
	maxLimit     int
}

// NewHistoryService builds a history service. Non-positive limits fall back
// to sane defaults.
func NewHistoryService(messages store.MessageStore, defaultLimit, maxLimit int) *HistoryService {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &HistoryService{messages: messages, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Page returns one page of a room's history ascending by timestamp, resuming
// after the position encoded in token when one is supplied. Following
// NextToken page by page yields every persisted message exactly once.
func (s *HistoryService) Page(ctx context.Context, roomID string, limit int, token string) (*HistoryPage, error) {
	if roomID == "" {
		return nil, chatError(ErrCodeRoomRequired, "missing roomId")
	}

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	var after *store.Position
	if token != "" {
		pos, cerr := decodeCursor(roomID, token)
		if cerr != nil {
			return nil, cerr
		}
		after = pos
	}

	// Fetch one past the page to learn whether a next page exists.
	msgs, err := s.messages.ListMessages(ctx, roomID, limit+1, after)
	if err != nil {
		return nil, chatError(ErrCodeStoreUnavailable, "query history: "+err.Error())
	}

	page := &HistoryPage{Items: make([]Message, 0, len(msgs))}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	for _, m := range msgs {
		page.Items = append(page.Items, fromStore(m))
	}

	if hasMore {
		last := msgs[len(msgs)-1]
		token := encodeCursor(roomID, store.Position{Timestamp: last.Timestamp, Seq: last.Seq})
		page.NextToken = &token
	}

	return page, nil
}
