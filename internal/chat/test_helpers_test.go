package chat

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/store"
)

// fakeStore is an in-memory store.Store with the same contract semantics as
// the SQLite implementation.
type fakeStore struct {
	mu       sync.Mutex
	nextSeq  int64
	messages []*store.Message
	rooms    map[string]string // connectionID -> roomID
	failPut  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]string)}
}

func (f *fakeStore) AppendMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("store down")
	}
	f.nextSeq++
	msg.Seq = f.nextSeq
	stored := *msg
	f.messages = append(f.messages, &stored)
	return nil
}

func (f *fakeStore) ListMessages(_ context.Context, roomID string, limit int, after *store.Position) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Message
	for _, m := range f.messages {
		if m.RoomID != roomID {
			continue
		}
		if after != nil {
			if m.Timestamp < after.Timestamp ||
				(m.Timestamp == after.Timestamp && m.Seq <= after.Seq) {
				continue
			}
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Seq < out[j].Seq
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) AddConnection(_ context.Context, roomID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[connectionID] = roomID
	return nil
}

func (f *fakeStore) RemoveConnection(_ context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, connectionID)
	return nil
}

func (f *fakeStore) ListMembers(_ context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, room := range f.rooms {
		if room == roomID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeSender records sends and fails for configured connection IDs.
type fakeSender struct {
	mu     sync.Mutex
	sent   map[string][][]byte
	failed map[string]bool
}

func newFakeSender(failIDs ...string) *fakeSender {
	failed := make(map[string]bool)
	for _, id := range failIDs {
		failed[id] = true
	}
	return &fakeSender{sent: make(map[string][][]byte), failed: failed}
}

func (s *fakeSender) Send(_ context.Context, connectionID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed[connectionID] {
		return errors.New("connection gone")
	}
	s.sent[connectionID] = append(s.sent[connectionID], payload)
	return nil
}

func (s *fakeSender) sentTo(connectionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[connectionID])
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}
