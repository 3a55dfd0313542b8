package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/chat"
	"github.com/roomcast/roomcast-server/internal/config"
	"github.com/roomcast/roomcast-server/internal/store/sqlite"
)

// startTestServer wires a full server over an in-memory store.
func startTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
		cfg.Addr = ":0"
		cfg.ReadHeaderTimeout = time.Second
		cfg.ShutdownTimeout = time.Second
	}

	logger := zerolog.Nop()

	peers := NewPeerTable()
	dispatcher := chat.NewDispatcher(st, peers, &logger)
	sessions := chat.NewSessionHandler(st, dispatcher, &logger)
	history := chat.NewHistoryService(st, cfg.HistoryPageSize, cfg.HistoryMaxPageSize)

	server := NewServer(sessions, history, peers, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts
}
