package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/roomcast/roomcast-server/internal/chat"
)

// fakeTransport records writes and serves scripted inbound frames.
type fakeTransport struct {
	mu      sync.Mutex
	actions []chat.Action
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (t *fakeTransport) WriteJSON(_ context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var act chat.Action
	if err := json.Unmarshal(raw, &act); err != nil {
		return err
	}
	t.mu.Lock()
	t.actions = append(t.actions, act)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-t.inbound:
		return raw, nil
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *fakeTransport) sentActions() []chat.Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.Action, len(t.actions))
	copy(out, t.actions)
	return out
}

// fakeDialer fails the first failures dials, then hands out fresh transports.
type fakeDialer struct {
	mu         sync.Mutex
	failures   int
	dials      int
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("dial refused")
	}
	tr := newFakeTransport()
	d.transports = append(d.transports, tr)
	return tr, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

// timerRecorder captures scheduled reconnects so tests fire them manually.
type timerRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (r *timerRecorder) afterFunc(d time.Duration, fn func()) *time.Timer {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.fns = append(r.fns, fn)
	r.mu.Unlock()
	// Far enough out that it never fires on its own during a test.
	return time.AfterFunc(time.Hour, func() {})
}

func (r *timerRecorder) scheduled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fns)
}

func (r *timerRecorder) fire(i int) {
	r.mu.Lock()
	fn := r.fns[i]
	r.mu.Unlock()
	fn()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(dialer *fakeDialer, rec *timerRecorder) *Manager {
	opts := Options{
		URL:      "ws://test/ws",
		Room:     "general",
		Nickname: "alice",
		Backoff:  Backoff{Base: time.Second, Max: 30 * time.Second},
		Dialer:   dialer,
	}
	if rec != nil {
		opts.AfterFunc = rec.afterFunc
	}
	return New(opts)
}

func TestManagerJoinsOnOpen(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, nil)
	m.Start()
	defer m.Close()

	waitFor(t, "open state", func() bool { return m.State() == StateOpen })
	tr := dialer.transport(0)
	waitFor(t, "join frame", func() bool { return len(tr.sentActions()) > 0 })

	acts := tr.sentActions()
	if acts[0].Action != chat.ActionJoin || acts[0].RoomID != "general" || acts[0].Nickname != "alice" {
		t.Fatalf("expected join for general, got %+v", acts[0])
	}
}

func TestManagerReconnectBackoffSchedule(t *testing.T) {
	dialer := &fakeDialer{failures: 1 << 30} // never connects
	rec := &timerRecorder{}
	m := newTestManager(dialer, rec)
	m.Start()
	defer m.Close()

	waitFor(t, "first reconnect scheduled", func() bool { return rec.scheduled() == 1 })
	for i := 1; i < 6; i++ {
		rec.fire(i - 1)
		waitFor(t, "next reconnect scheduled", func() bool { return rec.scheduled() == i+1 })
	}

	want := []time.Duration{2, 4, 8, 16, 30, 30}
	for i, w := range want {
		if rec.delays[i] != w*time.Second {
			t.Fatalf("attempt %d: delay %v, want %v", i+1, rec.delays[i], w*time.Second)
		}
	}
}

func TestManagerSinglePendingTimer(t *testing.T) {
	dialer := &fakeDialer{failures: 1 << 30}
	rec := &timerRecorder{}
	m := newTestManager(dialer, rec)
	m.Start()

	waitFor(t, "reconnect scheduled", func() bool { return rec.scheduled() == 1 })

	// Overlapping failure reports must not arm a second timer.
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	m.transportClosed(gen)
	m.transportClosed(gen)
	if rec.scheduled() != 1 {
		t.Fatalf("expected a single pending timer, got %d", rec.scheduled())
	}
	m.Close()
}

func TestManagerCloseCancelsPendingReconnect(t *testing.T) {
	dialer := &fakeDialer{failures: 1 << 30}
	rec := &timerRecorder{}
	m := newTestManager(dialer, rec)
	m.Start()

	waitFor(t, "reconnect scheduled", func() bool { return rec.scheduled() == 1 })
	dialsBefore := dialer.dialCount()

	m.Close()

	// Even if the timer had already fired concurrently with Close, no
	// connection attempt may follow teardown.
	rec.fire(0)
	time.Sleep(50 * time.Millisecond)
	if dialer.dialCount() != dialsBefore {
		t.Fatalf("reconnect attempt after teardown: %d -> %d dials", dialsBefore, dialer.dialCount())
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after close, got %v", m.State())
	}
}

func TestManagerResetsAttemptOnOpen(t *testing.T) {
	dialer := &fakeDialer{failures: 2}
	rec := &timerRecorder{}
	m := newTestManager(dialer, rec)
	m.Start()
	defer m.Close()

	waitFor(t, "first retry", func() bool { return rec.scheduled() >= 1 })
	rec.fire(0)
	waitFor(t, "second retry", func() bool { return rec.scheduled() >= 2 })
	rec.fire(1)
	waitFor(t, "open", func() bool { return m.State() == StateOpen })

	// A later drop starts the backoff over from the first step.
	tr := dialer.transport(0)
	tr.Close()
	waitFor(t, "retry after drop", func() bool { return rec.scheduled() >= 3 })
	if rec.delays[2] != 2*time.Second {
		t.Fatalf("attempt counter not reset: delay %v after reopen", rec.delays[2])
	}
}

func TestManagerMergesAndDedupes(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, nil)
	m.Start()
	defer m.Close()

	waitFor(t, "open", func() bool { return m.State() == StateOpen })
	tr := dialer.transport(0)

	// The same message arrives as a live broadcast and inside a history
	// refresh batch; later messages arrive out of order.
	tr.inbound <- []byte(`{"roomId":"general","timestamp":2000,"nickname":"bob","text":"second","type":"message"}`)
	tr.inbound <- []byte(`{"items":[{"roomId":"general","timestamp":1000,"nickname":"bob","text":"first","type":"message"},{"roomId":"general","timestamp":2000,"nickname":"bob","text":"second","type":"message"}]}`)

	waitFor(t, "merge", func() bool { return len(m.Messages()) == 2 })

	msgs := m.Messages()
	if msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Fatalf("merge order wrong: %+v", msgs)
	}
}

func TestManagerDropsUnrecognizedFrames(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, nil)
	m.Start()
	defer m.Close()

	waitFor(t, "open", func() bool { return m.State() == StateOpen })
	tr := dialer.transport(0)

	tr.inbound <- []byte(`{"status":"ok"}`)
	tr.inbound <- []byte(`{"roomId":"general","timestamp":1,"nickname":"a","text":"x","type":"message"}`)

	waitFor(t, "valid frame accepted", func() bool { return len(m.Messages()) == 1 })
	// The unrecognized frame must not have produced a message or killed the
	// connection.
	if m.State() != StateOpen {
		t.Fatalf("unexpected state after bad frame: %v", m.State())
	}
}

func TestManagerSetRoomLeavesAndRedials(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, nil)
	m.Start()
	defer m.Close()

	waitFor(t, "open", func() bool { return m.State() == StateOpen })
	first := dialer.transport(0)

	tr := first
	tr.inbound <- []byte(`{"roomId":"general","timestamp":1,"nickname":"a","text":"x","type":"message"}`)
	waitFor(t, "message buffered", func() bool { return len(m.Messages()) == 1 })

	m.SetRoom("random")

	waitFor(t, "redial", func() bool { return dialer.dialCount() == 2 })
	waitFor(t, "reopen", func() bool { return m.State() == StateOpen })

	var sawLeave bool
	for _, act := range first.sentActions() {
		if act.Action == chat.ActionLeave && act.RoomID == "general" {
			sawLeave = true
		}
	}
	if !sawLeave {
		t.Fatalf("expected best-effort leave on room change, got %+v", first.sentActions())
	}

	if len(m.Messages()) != 0 {
		t.Fatal("message buffer not cleared on room change")
	}

	second := dialer.transport(1)
	waitFor(t, "join for new room", func() bool {
		for _, act := range second.sentActions() {
			if act.Action == chat.ActionJoin && act.RoomID == "random" {
				return true
			}
		}
		return false
	})
}

func TestSendMessageRequiresOpen(t *testing.T) {
	dialer := &fakeDialer{failures: 1 << 30}
	rec := &timerRecorder{}
	m := newTestManager(dialer, rec)
	m.Start()
	defer m.Close()

	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })
	if err := m.SendMessage("hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendMessagePublishesToCurrentRoom(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, nil)
	m.Start()
	defer m.Close()

	waitFor(t, "open", func() bool { return m.State() == StateOpen })
	if err := m.SendMessage("hello there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	tr := dialer.transport(0)
	waitFor(t, "sendMessage frame", func() bool {
		for _, act := range tr.sentActions() {
			if act.Action == chat.ActionSendMessage {
				return true
			}
		}
		return false
	})

	var sent chat.Action
	for _, act := range tr.sentActions() {
		if act.Action == chat.ActionSendMessage {
			sent = act
		}
	}
	if sent.RoomID != "general" || sent.Text != "hello there" || sent.Nickname != "alice" {
		t.Fatalf("unexpected sendMessage frame: %+v", sent)
	}
}
