package client

import (
	"context"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebSocketDialer dials real WebSocket transports.
type WebSocketDialer struct{}

// Dial opens a WebSocket connection to url.
func (WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, t.conn, v)
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, raw, err := t.conn.Read(ctx)
	return raw, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "bye")
}
