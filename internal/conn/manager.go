package conn

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/sonaris/internal/observe"
	"github.com/MrWong99/sonaris/internal/session"
	"github.com/MrWong99/sonaris/pkg/audio/codec"
)

// Default connection timing parameters.
const (
	DefaultReconnectDelay  = 3 * time.Second
	DefaultRetryInterval   = 10 * time.Second
	DefaultWatchdogTimeout = 30 * time.Second
	DefaultPingInterval    = 30 * time.Second
)

// Config holds the connection manager's settings.
type Config struct {
	// SessionID identifies this satellite in the begin_utterance handshake.
	SessionID string

	// ReconnectDelay is the fixed wait between reconnect attempts.
	// Defaults to 3s if zero. Retries are unbounded.
	ReconnectDelay time.Duration

	// RetryInterval is the wait between discovery rounds while no backend
	// answers. Defaults to 10s if zero.
	RetryInterval time.Duration

	// WatchdogTimeout bounds the wait for a backend reply after an
	// utterance is fully streamed. Defaults to 30s if zero.
	WatchdogTimeout time.Duration

	// PingInterval is the keepalive cadence on an idle stream. Defaults to
	// 30s if zero.
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

// Manager owns the backend link. It resolves the backend, holds one
// persistent WebSocket stream, reconnects with a fixed delay on loss, and
// enforces the reply watchdog. It implements [session.Uplink] for the
// capture domain.
//
// Submit and Poll are the only methods intended for the capture goroutine;
// everything else runs inside Run's event loop.
type Manager struct {
	cfg      Config
	codec    Codec
	resolver Resolver
	enc      codec.Encoder
	metrics  *observe.Metrics

	// Single-slot mailboxes, one per direction. The capture domain never
	// blocks on either.
	commands chan session.Command
	events   chan session.Event

	// up mirrors the stream state for the readiness probe.
	up atomic.Bool
}

// Connected reports whether the backend stream is currently up. Safe from
// any goroutine.
func (m *Manager) Connected() bool {
	return m.up.Load()
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics overrides the metrics instance (tests).
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// New creates a Manager. resolver locates the backend; enc encodes audio
// chunk payloads.
func New(cfg Config, resolver Resolver, enc codec.Encoder, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:      cfg,
		codec:    Codec{SessionID: cfg.SessionID},
		resolver: resolver,
		enc:      enc,
		metrics:  observe.DefaultMetrics(),
		commands: make(chan session.Command, 1),
		events:   make(chan session.Event, 1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Submit posts a command from the capture domain. Returns false when the
// outbound slot is occupied.
func (m *Manager) Submit(cmd session.Command) bool {
	select {
	case m.commands <- cmd:
		return true
	default:
		return false
	}
}

// Poll takes the next pending event, if any. Never blocks.
func (m *Manager) Poll() (session.Event, bool) {
	select {
	case e := <-m.events:
		return e, true
	default:
		return session.Event{}, false
	}
}

// post delivers an event to the capture domain. The slot applies
// backpressure: a stalled capture loop stalls the event loop rather than
// growing a queue.
func (m *Manager) post(ctx context.Context, e session.Event) {
	select {
	case m.events <- e:
	case <-ctx.Done():
	}
}

// Run drives the connection lifecycle until ctx is cancelled: resolve, dial,
// serve, reconnect. It always returns ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	for {
		url, err := m.resolve(ctx)
		if err != nil {
			return err
		}

		ws, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.metrics.RecordReconnect(ctx, "error")
			slog.Warn("backend dial failed", "url", url, "error", err)
			// The cached address may be stale; re-run discovery next round.
			m.resolver.Invalidate()
			if !sleep(ctx, m.cfg.ReconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		// Anything still in the outbound mailbox predates this connection:
		// the machine released its utterance when the previous stream
		// dropped, so replaying it would hand the backend an aborted
		// exchange.
		m.dropStale()

		m.metrics.RecordReconnect(ctx, "ok")
		m.metrics.SetConnected(ctx, true)
		m.up.Store(true)
		slog.Info("backend connected", "url", url)
		m.post(ctx, session.Event{Kind: session.EventConnected})

		m.serve(ctx, ws)

		m.up.Store(false)
		m.metrics.SetConnected(ctx, false)
		if ctx.Err() != nil {
			ws.Close(websocket.StatusNormalClosure, "shutting down")
			return ctx.Err()
		}
		ws.Close(websocket.StatusGoingAway, "stream failed")
		slog.Warn("backend connection lost, reconnecting", "delay", m.cfg.ReconnectDelay)
		m.post(ctx, session.Event{Kind: session.EventDisconnected})
		m.resolver.Invalidate()
		if !sleep(ctx, m.cfg.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

// dropStale empties the command mailbox. Commands submitted against a dead
// stream must never reach the next one.
func (m *Manager) dropStale() {
	select {
	case cmd := <-m.commands:
		if cmd.Kind == session.CommandSend {
			slog.Warn("dropping utterance from previous connection", "utterance", cmd.Utterance.ID)
		}
	default:
	}
}

// resolve loops discovery until a backend answers or ctx ends. Each failed
// round posts EventNoBackend so the indicator can show the condition.
func (m *Manager) resolve(ctx context.Context) (string, error) {
	for {
		url, err := m.resolver.Lookup(ctx)
		if err == nil {
			return url, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("backend discovery failed, retrying", "error", err, "retry_in", m.cfg.RetryInterval)
		m.post(ctx, session.Event{Kind: session.EventNoBackend})
		if !sleep(ctx, m.cfg.RetryInterval) {
			return "", ctx.Err()
		}
	}
}

// inbound carries one read result from the stream reader goroutine.
type inbound struct {
	data []byte
	err  error
}

// serve runs the event loop for one established stream. Returns when the
// stream fails or ctx is cancelled; the caller closes the socket.
func (m *Manager) serve(ctx context.Context, ws *websocket.Conn) {
	reads := make(chan inbound, 8)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			typ, data, err := ws.Read(ctx)
			if err != nil {
				select {
				case reads <- inbound{err: err}:
				case <-done:
				}
				return
			}
			if typ != websocket.MessageText {
				// The backend never sends binary frames.
				continue
			}
			select {
			case reads <- inbound{data: data}:
			case <-done:
				return
			}
		}
	}()

	// The watchdog channel is nil while disarmed; a nil channel never
	// fires in select.
	var (
		watchdog  *time.Timer
		watchdogC <-chan time.Time
		inflight  string
	)
	disarm := func() {
		if watchdog != nil {
			watchdog.Stop()
			watchdog = nil
		}
		watchdogC = nil
	}
	arm := func() {
		disarm()
		watchdog = time.NewTimer(m.cfg.WatchdogTimeout)
		watchdogC = watchdog.C
	}
	defer disarm()

	ping := time.NewTicker(m.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-m.commands:
			switch cmd.Kind {
			case session.CommandSend:
				if err := m.stream(ctx, ws, cmd.Utterance); err != nil {
					if ctx.Err() != nil {
						return
					}
					slog.Warn("utterance send failed", "utterance", cmd.Utterance.ID, "error", err)
					m.post(ctx, session.Event{Kind: session.EventSendFailed})
					return
				}
				inflight = cmd.Utterance.ID
				arm()
			case session.CommandAbort:
				data, err := m.codec.EncodeAbort(cmd.ID)
				if err == nil {
					err = ws.Write(ctx, websocket.MessageText, data)
				}
				if err != nil && ctx.Err() == nil {
					slog.Warn("abort send failed", "utterance", cmd.ID, "error", err)
					return
				}
				inflight = ""
				disarm()
			}

		case in := <-reads:
			if in.err != nil {
				return
			}
			msg, err := DecodeServerMessage(in.data)
			if err != nil {
				m.metrics.RecordProtocolError(ctx, "malformed")
				slog.Warn("bad server message", "error", err)
				if inflight != "" {
					// A garbled reply mid-exchange fails that utterance
					// now instead of waiting out the watchdog.
					inflight = ""
					disarm()
					m.post(ctx, session.Event{
						Kind:    session.EventBackendError,
						Code:    "malformed",
						Message: "unparseable backend reply",
					})
				}
				continue
			}
			switch msg.Type {
			case typeStream:
				// Reply activity pushes the watchdog out.
				if watchdogC != nil {
					arm()
				}
				m.post(ctx, session.Event{Kind: session.EventStreamDelta, Delta: msg.Delta})
			case typeDone:
				inflight = ""
				disarm()
				m.post(ctx, session.Event{Kind: session.EventDone, AlreadyRendered: msg.AlreadyRendered})
			case typeError:
				inflight = ""
				disarm()
				m.post(ctx, session.Event{
					Kind:    session.EventBackendError,
					Code:    msg.Code,
					Message: msg.Message,
				})
			case typePong:
				// Keepalive answer, nothing to do.
			default:
				m.metrics.RecordProtocolError(ctx, "unexpected_type")
				slog.Warn("unexpected server message", "type", msg.Type)
			}

		case <-watchdogC:
			slog.Warn("reply watchdog expired", "utterance", inflight, "timeout", m.cfg.WatchdogTimeout)
			inflight = ""
			disarm()
			m.post(ctx, session.Event{Kind: session.EventTimeout})

		case <-ping.C:
			data, err := m.codec.EncodePing()
			if err == nil {
				err = ws.Write(ctx, websocket.MessageText, data)
			}
			if err != nil && ctx.Err() == nil {
				return
			}
		}
	}
}

// stream writes one sealed utterance: begin_utterance, every chunk in
// capture order, end_utterance. Any write error fails the whole utterance;
// there is no partial resume.
func (m *Manager) stream(ctx context.Context, ws *websocket.Conn, u *session.Utterance) error {
	begin, err := m.codec.EncodeBegin(u.ID, u.SampleRate, string(m.enc.Name()))
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, begin); err != nil {
		return err
	}

	chunks := 0
	for _, f := range u.Frames() {
		payload, err := m.enc.Encode(f.Samples)
		if err != nil {
			return err
		}
		if err := ws.Write(ctx, websocket.MessageBinary, EncodeChunk(f.Seq, payload)); err != nil {
			return err
		}
		chunks++
		m.metrics.ChunksSent.Add(ctx, 1)
	}

	end, err := m.codec.EncodeEnd(u.ID, chunks)
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, end); err != nil {
		return err
	}

	slog.Debug("utterance streamed", "utterance", u.ID, "chunks", chunks)
	return nil
}

// sleep waits for d or until ctx ends, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
