package conn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/sonaris/internal/session"
	"github.com/MrWong99/sonaris/pkg/audio"
	"github.com/MrWong99/sonaris/pkg/audio/codec"
)

// received is one message observed by the test backend.
type received struct {
	binary []byte // raw binary frame
	text   []byte // raw text frame
}

// testBackend is a WebSocket server standing in for the assistant backend.
type testBackend struct {
	srv   *httptest.Server
	msgs  chan received
	conns chan *websocket.Conn
}

// newTestBackend starts a backend that records every inbound frame and hands
// the live connection to the test for scripted replies.
func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		msgs:  make(chan received, 128),
		conns: make(chan *websocket.Conn, 4),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- ws
		for {
			typ, data, err := ws.Read(r.Context())
			if err != nil {
				return
			}
			switch typ {
			case websocket.MessageBinary:
				b.msgs <- received{binary: data}
			case websocket.MessageText:
				b.msgs <- received{text: data}
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) url() string {
	return "ws://" + strings.TrimPrefix(b.srv.URL, "http://")
}

// conn waits for the next accepted connection.
func (b *testBackend) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("backend: no connection accepted")
		return nil
	}
}

// next waits for the next recorded message.
func (b *testBackend) next(t *testing.T) received {
	t.Helper()
	select {
	case m := <-b.msgs:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("backend: no message received")
		return received{}
	}
}

// expectNoMessage fails if the backend receives anything within the window.
func (b *testBackend) expectNoMessage(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case m := <-b.msgs:
		t.Fatalf("backend received unexpected message: %+v", m)
	case <-time.After(window):
	}
}

// send writes a text control frame to the satellite.
func (b *testBackend) send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("backend write: %v", err)
	}
}

// startManager runs a Manager against the given resolver and returns it with
// a cancel func joined to test cleanup.
func startManager(t *testing.T, cfg Config, r Resolver) *Manager {
	t.Helper()
	m := New(cfg, r, codec.PCMEncoder{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("manager did not stop")
		}
	})
	return m
}

// waitEvent polls the uplink until an event of the wanted kind arrives.
// Events of other kinds arriving first fail the test, keeping ordering
// assertions strict.
func waitEvent(t *testing.T, m *Manager, want session.EventKind) session.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if e, ok := m.Poll(); ok {
			if e.Kind != want {
				t.Fatalf("event = %v, want kind %v", e, want)
			}
			return e
		}
		select {
		case <-deadline:
			t.Fatalf("no event of kind %v", want)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// testUtterance builds a sealed utterance of n frames with ascending
// sequence numbers.
func testUtterance(n int) *session.Utterance {
	u := session.NewUtterance(16000)
	for i := 0; i < n; i++ {
		samples := make([]int16, 160)
		for j := range samples {
			samples[j] = int16(i)
		}
		_ = u.Append(audio.Frame{
			Samples:    samples,
			SampleRate: 16000,
			Channels:   1,
			Seq:        uint64(i),
			Timestamp:  time.Duration(i) * 10 * time.Millisecond,
		})
	}
	u.Seal()
	return u
}

func TestManager_StreamsUtteranceInOrder(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{SessionID: "sat-test"}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	ws := backend.conn(t)

	const frames = 20
	u := testUtterance(frames)
	if !m.Submit(session.Command{Kind: session.CommandSend, Utterance: u}) {
		t.Fatal("Submit returned false")
	}

	// Exactly one begin_utterance first.
	first := backend.next(t)
	if first.text == nil {
		t.Fatal("first frame is not a control message")
	}
	var begin beginUtteranceMsg
	if err := json.Unmarshal(first.text, &begin); err != nil {
		t.Fatalf("unmarshal begin: %v", err)
	}
	if begin.Type != typeBeginUtterance || begin.SessionID != "sat-test" || begin.UtteranceID != u.ID {
		t.Fatalf("begin = %+v", begin)
	}
	if begin.Codec != "pcm" || begin.SampleRate != 16000 {
		t.Errorf("begin codec/rate = %q/%d", begin.Codec, begin.SampleRate)
	}

	// All chunks, in capture order, none dropped.
	for i := range frames {
		msg := backend.next(t)
		if msg.binary == nil {
			t.Fatalf("chunk %d: not a binary frame", i)
		}
		seq, payload, err := DecodeChunk(msg.binary)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if seq != uint64(i) {
			t.Fatalf("chunk %d: seq = %d", i, seq)
		}
		if len(payload) != 160*2 {
			t.Fatalf("chunk %d: payload length = %d, want 320", i, len(payload))
		}
	}

	// Exactly one end_utterance, carrying the chunk count.
	last := backend.next(t)
	if last.text == nil {
		t.Fatal("trailing frame is not a control message")
	}
	var end endUtteranceMsg
	if err := json.Unmarshal(last.text, &end); err != nil {
		t.Fatalf("unmarshal end: %v", err)
	}
	if end.Type != typeEndUtterance || end.UtteranceID != u.ID || end.Chunks != frames {
		t.Fatalf("end = %+v", end)
	}

	// Scripted reply: deltas then done.
	backend.send(t, ws, map[string]any{"type": "stream", "delta": "turning on"})
	e := waitEvent(t, m, session.EventStreamDelta)
	if e.Delta != "turning on" {
		t.Errorf("delta = %q", e.Delta)
	}
	backend.send(t, ws, map[string]any{"type": "done", "already_rendered": true})
	e = waitEvent(t, m, session.EventDone)
	if !e.AlreadyRendered {
		t.Error("AlreadyRendered not carried through")
	}
}

func TestManager_AbortSendsControlMessage(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{SessionID: "sat-test"}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	backend.conn(t)

	if !m.Submit(session.Command{Kind: session.CommandAbort, ID: "utt-9"}) {
		t.Fatal("Submit returned false")
	}

	msg := backend.next(t)
	if msg.text == nil {
		t.Fatal("abort did not arrive as a control message")
	}
	var abort abortMsg
	if err := json.Unmarshal(msg.text, &abort); err != nil {
		t.Fatalf("unmarshal abort: %v", err)
	}
	if abort.Type != typeAbort || abort.UtteranceID != "utt-9" {
		t.Fatalf("abort = %+v", abort)
	}
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{
		SessionID:      "sat-test",
		ReconnectDelay: 20 * time.Millisecond,
	}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	ws := backend.conn(t)

	// Kill the stream from the backend side.
	ws.Close(websocket.StatusGoingAway, "restart")

	waitEvent(t, m, session.EventDisconnected)
	waitEvent(t, m, session.EventConnected)
	backend.conn(t)
}

func TestManager_StaleSendDroppedOnReconnect(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{
		SessionID:      "sat-test",
		ReconnectDelay: 100 * time.Millisecond,
	}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	ws := backend.conn(t)

	ws.Close(websocket.StatusGoingAway, "restart")
	waitEvent(t, m, session.EventDisconnected)

	// The capture domain raced the disconnect: an utterance lands in the
	// mailbox while the manager waits to reconnect. The machine has already
	// released it, so it must never reach the new stream.
	if !m.Submit(session.Command{Kind: session.CommandSend, Utterance: testUtterance(2)}) {
		t.Fatal("Submit returned false")
	}

	waitEvent(t, m, session.EventConnected)
	backend.conn(t)
	backend.expectNoMessage(t, 200*time.Millisecond)
}

func TestManager_MalformedReplyFailsExchange(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{SessionID: "sat-test"}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	ws := backend.conn(t)

	if !m.Submit(session.Command{Kind: session.CommandSend, Utterance: testUtterance(2)}) {
		t.Fatal("Submit returned false")
	}
	// begin_utterance, 2 chunks, end_utterance.
	for range 4 {
		backend.next(t)
	}

	if err := ws.Write(context.Background(), websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("backend write: %v", err)
	}

	e := waitEvent(t, m, session.EventBackendError)
	if e.Code != "malformed" {
		t.Errorf("code = %q, want %q", e.Code, "malformed")
	}
}

func TestManager_MalformedReplyWhileIdleIsIgnored(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{SessionID: "sat-test"}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	ws := backend.conn(t)

	// Garbage with no exchange in flight is dropped; the next well-formed
	// message must be the first event the capture domain sees.
	if err := ws.Write(context.Background(), websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("backend write: %v", err)
	}
	backend.send(t, ws, map[string]any{"type": "error", "code": "overloaded", "message": "try later"})

	e := waitEvent(t, m, session.EventBackendError)
	if e.Code != "overloaded" {
		t.Errorf("code = %q, want %q", e.Code, "overloaded")
	}
}

func TestManager_BackendErrorEvent(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{SessionID: "sat-test"}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	ws := backend.conn(t)

	backend.send(t, ws, map[string]any{"type": "error", "code": "overloaded", "message": "try later"})
	e := waitEvent(t, m, session.EventBackendError)
	if e.Code != "overloaded" || e.Message != "try later" {
		t.Errorf("event = %+v", e)
	}
}

func TestManager_WatchdogTimeout(t *testing.T) {
	backend := newTestBackend(t)
	m := startManager(t, Config{
		SessionID:       "sat-test",
		WatchdogTimeout: 30 * time.Millisecond,
	}, StaticResolver{URL: backend.url()})

	waitEvent(t, m, session.EventConnected)
	backend.conn(t)

	if !m.Submit(session.Command{Kind: session.CommandSend, Utterance: testUtterance(2)}) {
		t.Fatal("Submit returned false")
	}

	// The backend stays silent; the watchdog must fire.
	waitEvent(t, m, session.EventTimeout)
}

// failingResolver never finds a backend.
type failingResolver struct {
	calls atomic.Int32
}

func (r *failingResolver) Lookup(context.Context) (string, error) {
	r.calls.Add(1)
	return "", ErrNoBackend
}

func (r *failingResolver) Invalidate() {}

func TestManager_DiscoveryFailureRetries(t *testing.T) {
	r := &failingResolver{}
	m := startManager(t, Config{
		SessionID:     "sat-test",
		RetryInterval: 10 * time.Millisecond,
	}, r)

	// Every failed round surfaces as a no-backend event; the manager keeps
	// retrying instead of giving up.
	waitEvent(t, m, session.EventNoBackend)
	waitEvent(t, m, session.EventNoBackend)
	if got := r.calls.Load(); got < 2 {
		t.Errorf("lookup calls = %d, want >= 2", got)
	}
}

func TestManager_SubmitBackpressure(t *testing.T) {
	// No Run loop: the command slot fills after one Submit.
	m := New(Config{}, StaticResolver{URL: "ws://127.0.0.1:1/"}, codec.PCMEncoder{})

	if !m.Submit(session.Command{Kind: session.CommandAbort, ID: "a"}) {
		t.Fatal("first Submit failed")
	}
	if m.Submit(session.Command{Kind: session.CommandAbort, ID: "b"}) {
		t.Fatal("second Submit succeeded, want mailbox full")
	}
}
