package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roomcast/roomcast-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id   TEXT NOT NULL,
	ts        INTEGER NOT NULL,
	nickname  TEXT NOT NULL,
	body      TEXT NOT NULL,
	kind      TEXT NOT NULL DEFAULT 'message'
);
CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, ts, seq);

CREATE TABLE IF NOT EXISTS connections (
	connection_id TEXT PRIMARY KEY,
	room_id       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_connections_room ON connections(room_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// AppendMessage persists a message and fills in its Seq.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (room_id, ts, nickname, body, kind)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.RoomID, msg.Timestamp, msg.Nickname, msg.Body, string(msg.Kind))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.Seq = seq
	return nil
}

// ListMessages returns up to limit messages for a room strictly after the
// given position, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, limit int, after *store.Position) ([]*store.Message, error) {
	var query string
	var args []interface{}

	if after != nil {
		query = `
			SELECT seq, room_id, ts, nickname, body, kind
			FROM messages
			WHERE room_id = ? AND (ts, seq) > (?, ?)
			ORDER BY ts ASC, seq ASC
			LIMIT ?
		`
		args = []interface{}{roomID, after.Timestamp, after.Seq, limit}
	} else {
		query = `
			SELECT seq, room_id, ts, nickname, body, kind
			FROM messages
			WHERE room_id = ?
			ORDER BY ts ASC, seq ASC
			LIMIT ?
		`
		args = []interface{}{roomID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var kind string
		if err := rows.Scan(&msg.Seq, &msg.RoomID, &msg.Timestamp, &msg.Nickname, &msg.Body, &kind); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Kind = store.MessageKind(kind)
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// ==== ConnectionStore implementation ====

// AddConnection registers a connection in a room. An upsert on the connection
// ID keeps a connection in at most one room: joining a new room replaces the
// old membership.
func (s *SQLiteStore) AddConnection(ctx context.Context, roomID, connectionID string) error {
	query := `
		INSERT INTO connections (connection_id, room_id)
		VALUES (?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET room_id = excluded.room_id
	`
	if _, err := s.db.ExecContext(ctx, query, connectionID, roomID); err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// RemoveConnection deletes every entry for the connection. The delete is keyed
// by connection ID alone so callers that never learned the room (disconnects,
// failed deliveries) can still clean up.
func (s *SQLiteStore) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = ?`, connectionID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// ListMembers returns the connection IDs currently joined to a room.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT connection_id FROM connections WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
