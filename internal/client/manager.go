package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/chat"
)

// State is the connection manager's lifecycle state.
type State int

const (
	// StateIdle means the manager has not started or was torn down.
	StateIdle State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the transport is live and the room is joined.
	StateOpen
	// StateDisconnected means the transport dropped; a reconnect is pending.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ErrNotConnected is returned by SendMessage while the transport is down.
// Sends are fire-and-forget; callers disable input instead of retrying.
var ErrNotConnected = errors.New("not connected")

// Transport is one live connection as the manager sees it.
type Transport interface {
	WriteJSON(ctx context.Context, v any) error
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Transport. Injected so the state machine is testable
// without a real socket.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// Options configures a Manager.
type Options struct {
	URL      string
	Room     string
	Nickname string
	Backoff  Backoff
	Dialer   Dialer
	Logger   *zerolog.Logger

	// OnState is invoked on every state transition (connection indicator).
	OnState func(State)
	// OnMessages is invoked with newly accepted messages after each merge.
	OnMessages func([]chat.Message)

	// AfterFunc schedules the reconnect timer; nil means time.AfterFunc.
	AfterFunc func(d time.Duration, fn func()) *time.Timer
}

// Manager maintains a single logical connection per room: dial, join on
// open, reconnect with capped exponential backoff, and merge inbound
// messages into an ordered, deduplicated list.
type Manager struct {
	opts      Options
	log       *zerolog.Logger
	afterFunc func(time.Duration, func()) *time.Timer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	room      string
	attempt   int
	gen       int // connection generation; stale goroutines compare and bail
	timer     *time.Timer
	transport Transport
	closed    bool
	messages  []chat.Message
	seen      map[chat.Key]struct{}
}

// New builds a manager. Call Start to begin the first connect cycle.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	afterFunc := opts.AfterFunc
	if afterFunc == nil {
		afterFunc = time.AfterFunc
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:      opts,
		log:       logger,
		afterFunc: afterFunc,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		room:      opts.Room,
		seen:      make(map[chat.Key]struct{}),
	}
}

// Start kicks off the first connect cycle.
func (m *Manager) Start() {
	go m.connect()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Room returns the currently subscribed room.
func (m *Manager) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// Messages returns a copy of the locally held ordered message list.
func (m *Manager) Messages() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chat.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// SendMessage publishes text to the current room. Fire-and-forget: no
// acknowledgment is awaited.
func (m *Manager) SendMessage(text string) error {
	m.mu.Lock()
	tr := m.transport
	room := m.room
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || tr == nil {
		return ErrNotConnected
	}
	return tr.WriteJSON(m.ctx, chat.Action{
		Action:   chat.ActionSendMessage,
		RoomID:   room,
		Text:     text,
		Nickname: m.opts.Nickname,
	})
}

// SetRoom switches the subscription to a new room: best-effort leave of the
// old one, transport teardown, then a fresh connect cycle.
func (m *Manager) SetRoom(room string) {
	m.mu.Lock()
	if m.closed || room == m.room {
		m.mu.Unlock()
		return
	}

	oldRoom := m.room
	tr := m.transport
	m.room = room
	m.transport = nil
	m.messages = nil
	m.seen = make(map[chat.Key]struct{})
	m.gen++
	m.attempt = 0
	m.stopTimerLocked()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if tr != nil {
		m.leaveAndClose(tr, oldRoom)
	}
	go m.connect()
}

// Close tears the manager down: cancels any pending reconnect timer, sends a
// best-effort leave and closes the transport. No reconnect attempt fires
// after Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	m.stopTimerLocked()
	tr := m.transport
	room := m.room
	m.transport = nil
	m.setStateLocked(StateIdle)
	m.mu.Unlock()

	if tr != nil {
		m.leaveAndClose(tr, room)
	}
	m.cancel()
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed || m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	tr, err := m.opts.Dialer.Dial(m.ctx, m.opts.URL)

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		if err == nil {
			tr.Close()
		}
		return
	}
	if err != nil {
		m.log.Debug().Err(err).Msg("dial failed")
		m.setStateLocked(StateDisconnected)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.transport = tr
	m.attempt = 0
	room := m.room
	m.setStateLocked(StateOpen)
	m.mu.Unlock()

	// Join immediately so broadcasts for the room start flowing.
	if err := tr.WriteJSON(m.ctx, chat.Action{
		Action:   chat.ActionJoin,
		RoomID:   room,
		Nickname: m.opts.Nickname,
	}); err != nil {
		m.log.Debug().Err(err).Msg("join send failed")
		m.transportClosed(gen)
		return
	}

	go m.readLoop(tr, gen)
}

func (m *Manager) readLoop(tr Transport, gen int) {
	for {
		raw, err := tr.Read(m.ctx)
		if err != nil {
			m.transportClosed(gen)
			return
		}

		frame := DecodeFrame(raw)
		if frame.Kind == FrameUnknown {
			m.log.Warn().Str("payload", string(raw)).Msg("unrecognized frame shape, dropping")
			continue
		}
		m.merge(frame.Messages)
	}
}

// merge appends newly seen messages and keeps the list ordered by timestamp.
// Duplicates arriving via both the live channel and a history refresh are
// dropped by (room, timestamp, nickname) identity.
func (m *Manager) merge(msgs []chat.Message) {
	m.mu.Lock()
	var fresh []chat.Message
	for _, msg := range msgs {
		key := msg.DedupKey()
		if _, dup := m.seen[key]; dup {
			continue
		}
		m.seen[key] = struct{}{}
		m.messages = append(m.messages, msg)
		fresh = append(fresh, msg)
	}
	if len(fresh) > 0 {
		sort.SliceStable(m.messages, func(i, j int) bool {
			return m.messages[i].Timestamp < m.messages[j].Timestamp
		})
	}
	cb := m.opts.OnMessages
	m.mu.Unlock()

	if cb != nil && len(fresh) > 0 {
		cb(fresh)
	}
}

// transportClosed handles a dropped connection for generation gen.
func (m *Manager) transportClosed(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.setStateLocked(StateDisconnected)
	m.scheduleReconnectLocked()
	m.mu.Unlock()
}

// scheduleReconnectLocked arms the single reconnect timer. Overlapping
// failure events while a timer is pending do not arm a second one.
func (m *Manager) scheduleReconnectLocked() {
	if m.closed || m.timer != nil {
		return
	}
	m.attempt++
	delay := m.opts.Backoff.Delay(m.attempt)
	m.log.Debug().Int("attempt", m.attempt).Dur("delay", delay).Msg("reconnect scheduled")
	m.timer = m.afterFunc(delay, func() {
		m.mu.Lock()
		m.timer = nil
		closed := m.closed
		m.mu.Unlock()
		if !closed {
			m.connect()
		}
	})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.opts.OnState != nil {
		// Off the lock so the callback may call back into the manager.
		go m.opts.OnState(s)
	}
}

// leaveAndClose sends a best-effort leave and closes the transport. Failure
// to send is swallowed: the connection is going away regardless.
func (m *Manager) leaveAndClose(tr Transport, room string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = tr.WriteJSON(ctx, chat.Action{Action: chat.ActionLeave, RoomID: room})
	_ = tr.Close()
}
