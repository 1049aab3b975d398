package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/sonaris/internal/observe"
	"github.com/MrWong99/sonaris/pkg/audio"
	"github.com/MrWong99/sonaris/pkg/detect/vad"
	"github.com/MrWong99/sonaris/pkg/detect/wake"
	"github.com/MrWong99/sonaris/pkg/hw"
)

// Default timing parameters for the machine.
const (
	DefaultWakeThreshold   = 0.5
	DefaultRefractory      = 2 * time.Second
	DefaultActivationDelay = 500 * time.Millisecond
	DefaultMinUtterance    = 300 * time.Millisecond
)

// Config holds the state machine's tuning knobs.
type Config struct {
	// WakeThreshold is the confidence at or above which a wake detection

	// fires. Defaults to 0.5 if zero.
	WakeThreshold float64

	// Refractory suppresses further wake detections for this long after any
	// activation, so the activation tone's echo cannot re-trigger. Defaults
	// to 2s if zero.
	Refractory time.Duration

	// ActivationDelay is the pause between activation feedback and the start
	// of recording. Defaults to 500ms if zero.
	ActivationDelay time.Duration

	// MinUtterance is the minimum viable utterance duration; anything
	// shorter is discarded without a network round trip. Defaults to 300ms
	// if zero.
	MinUtterance time.Duration

	// Tracker configures end-of-utterance timing.
	Tracker TrackerConfig

	// StopWords cancel the in-flight exchange when they appear in a partial
	// reply transcript.
	StopWords []string
}

func (c Config) withDefaults() Config {
	if c.WakeThreshold <= 0 {
		c.WakeThreshold = DefaultWakeThreshold
	}
	if c.Refractory <= 0 {
		c.Refractory = DefaultRefractory
	}
	if c.ActivationDelay <= 0 {
		c.ActivationDelay = DefaultActivationDelay
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	return c
}

// Deps are the machine's collaborators. Wake, VAD, and Uplink are required;
// the rest default to inert implementations.
type Deps struct {
	Wake      wake.Detector
	VAD       vad.Detector
	Uplink    Uplink
	Indicator hw.Indicator
	Player    hw.Player

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// OnSealed is invoked with each viable sealed utterance before it is
	// handed to the uplink (used for the WAV debug dump). Must not block.
	OnSealed func(*Utterance)
}

// Machine is the session state machine. All methods except [Machine.Press]
// must be called from the capture goroutine only — the single-writer rule
// for the state value is what keeps the pipeline race-free.
type Machine struct {
	cfg  Config
	deps Deps

	state     State
	tracker   *Tracker
	stopWords *StopWordFilter

	utterance   *Utterance
	inflightID  string
	lastWake    time.Duration
	activatedAt time.Duration

	connected bool
	terminal  bool

	presses      chan hw.Press
	playbackDone chan struct{}
	tunes        chan Config
}

// New creates a Machine in StateIdle.
func New(cfg Config, deps Deps) *Machine {
	cfg = cfg.withDefaults()
	if deps.Indicator == nil {
		deps.Indicator = &hw.LogIndicator{}
	}
	if deps.Player == nil {
		deps.Player = hw.NullPlayer{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	m := &Machine{
		cfg:          cfg,
		deps:         deps,
		state:        StateIdle,
		tracker:      NewTracker(cfg.Tracker),
		stopWords:    NewStopWordFilter(cfg.StopWords),
		lastWake:     -time.Hour,
		presses:      make(chan hw.Press, 4),
		playbackDone: make(chan struct{}, 1),
		tunes:        make(chan Config, 1),
	}
	deps.Indicator.SetPattern(hw.PatternNoBackend)
	return m
}

// State returns the current state. Capture goroutine only.
func (m *Machine) State() State {
	return m.state
}

// Press delivers a button event. Safe to call from any goroutine; the press
// is observed on the next tick. Full queue drops the press.
func (m *Machine) Press(p hw.Press) {
	select {
	case m.presses <- p:
	default:
	}
}

// DeviceLost moves the machine to its terminal error state after capture
// device loss. The process instance is expected to exit; the external
// supervisor restarts it.
func (m *Machine) DeviceLost() {
	m.terminal = true
	m.transition(StateError)
}

// Retune applies the hot-reloadable tuning knobs (wake threshold, refractory
// window, stop words, end-of-utterance timing). Safe to call from any
// goroutine; the change takes effect at the start of the next tick. When a
// tuning is already pending it is replaced by the newer one.
func (m *Machine) Retune(cfg Config) {
	cfg = cfg.withDefaults()
	for {
		select {
		case m.tunes <- cfg:
			return
		default:
		}
		select {
		case <-m.tunes:
		default:
		}
	}
}

// Tick runs one pipeline step for a captured (and, if enabled, beamformed)
// mono frame. Every state transition in the process happens inside this
// function.
func (m *Machine) Tick(frame audio.Frame) {
	pos := frame.Timestamp

	m.drainTunes()
	m.drainEvents()
	m.drainPresses(pos)
	m.drainPlayback()

	switch m.state {
	case StateListening:
		m.scoreWake(frame, pos)
	case StateActivated:
		if pos-m.activatedAt >= m.cfg.ActivationDelay {
			m.beginRecording(pos)
		}
	case StateRecording:
		m.recordFrame(frame, pos)
	case StateError:
		m.recover()
	default:
		// Idle, Processing, Speaking: frames flow but are not scored; wake
		// scoring stays paused until the exchange finishes.
	}
}

// ─── Per-frame handling ───────────────────────────────────────────────────────

func (m *Machine) scoreWake(frame audio.Frame, pos time.Duration) {
	score, err := m.deps.Wake.Score(frame)
	if err != nil {
		slog.Warn("wake scoring failed", "error", err)
		return
	}
	if score < m.cfg.WakeThreshold {
		return
	}
	if pos-m.lastWake < m.cfg.Refractory {
		// Inside the refractory window: suppress, do not even log at info.
		slog.Debug("wake detection suppressed by refractory window",
			"confidence", score,
			"since_last", pos-m.lastWake,
		)
		return
	}
	m.activate(pos, score, "wakeword")
}

func (m *Machine) activate(pos time.Duration, confidence float64, trigger string) {
	m.lastWake = pos
	m.activatedAt = pos
	m.deps.Metrics.RecordWakeDetection(context.Background(), trigger)
	slog.Info("activation", "trigger", trigger, "confidence", confidence)
	m.transition(StateActivated)
}

func (m *Machine) beginRecording(pos time.Duration) {
	m.deps.Wake.Reset()
	m.deps.VAD.Reset()
	m.utterance = nil
	m.tracker.Begin(pos)
	m.transition(StateRecording)
}

func (m *Machine) recordFrame(frame audio.Frame, pos time.Duration) {
	if m.utterance == nil {
		// First frame fixes the utterance's sample rate.
		m.utterance = NewUtterance(frame.SampleRate)
	}
	if err := m.utterance.Append(frame); err != nil {
		slog.Error("frame append failed", "error", err)
		m.transition(StateError)
		return
	}

	isSpeech, err := m.deps.VAD.IsSpeech(frame)
	if err != nil {
		slog.Warn("vad scoring failed", "error", err)
		isSpeech = false
	}
	m.tracker.Observe(pos, isSpeech)

	if m.tracker.Done(pos) {
		m.finishRecording()
	}
}

func (m *Machine) finishRecording() {
	m.tracker.Stop()
	u := m.utterance
	m.utterance = nil
	u.Seal()

	if !m.tracker.HasSpoken() || u.Duration() < m.cfg.MinUtterance {
		m.deps.Metrics.RecordUtterance(context.Background(), "discarded", u.Duration())
		slog.Info("utterance discarded",
			"id", u.ID,
			"duration", u.Duration(),
			"has_spoken", m.tracker.HasSpoken(),
		)
		m.transition(StateListening)
		return
	}

	if m.deps.OnSealed != nil {
		m.deps.OnSealed(u)
	}

	if !m.deps.Uplink.Submit(Command{Kind: CommandSend, Utterance: u}) {
		// Outbound slot occupied: the previous exchange is still draining.
		// Treat as a send failure rather than queueing unboundedly.
		m.deps.Metrics.RecordUtterance(context.Background(), "dropped", u.Duration())
		slog.Warn("uplink busy, dropping utterance", "id", u.ID)
		m.transition(StateError)
		return
	}

	m.inflightID = u.ID
	m.deps.Metrics.RecordUtterance(context.Background(), "sent", u.Duration())
	slog.Info("utterance handed to uplink", "id", u.ID, "frames", u.Len(), "duration", u.Duration())
	m.transition(StateProcessing)
}

// recover leaves the (non-terminal) error state once buffers are released.
func (m *Machine) recover() {
	if m.terminal {
		return
	}
	m.release()
	if m.connected {
		m.transition(StateListening)
	} else {
		m.transition(StateIdle)
	}
}

// release drops the current utterance and in-flight reference.
func (m *Machine) release() {
	m.tracker.Stop()
	m.utterance = nil
	m.inflightID = ""
}

// ─── Cross-domain inputs ──────────────────────────────────────────────────────

func (m *Machine) drainTunes() {
	select {
	case cfg := <-m.tunes:
		m.cfg.WakeThreshold = cfg.WakeThreshold
		m.cfg.Refractory = cfg.Refractory
		m.cfg.ActivationDelay = cfg.ActivationDelay
		m.cfg.MinUtterance = cfg.MinUtterance
		m.cfg.Tracker = cfg.Tracker
		m.stopWords = NewStopWordFilter(cfg.StopWords)
		m.tracker.cfg = cfg.Tracker.withDefaults()
		slog.Info("session tuning updated",
			"wake_threshold", cfg.WakeThreshold,
			"refractory", cfg.Refractory,
			"stop_words", len(cfg.StopWords),
		)
	default:
	}
}

func (m *Machine) drainEvents() {
	if m.deps.Uplink == nil {
		return
	}
	for {
		e, ok := m.deps.Uplink.Poll()
		if !ok {
			return
		}
		m.handleEvent(e)
	}
}

func (m *Machine) drainPresses(pos time.Duration) {
	for {
		select {
		case p := <-m.presses:
			if p.Kind != hw.PressShort {
				continue
			}
			if m.state != StateListening {
				slog.Debug("button press ignored", "state", m.state.String())
				continue
			}
			m.activate(pos, 1.0, "button")
		default:
			return
		}
	}
}

func (m *Machine) drainPlayback() {
	select {
	case <-m.playbackDone:
		if m.state == StateSpeaking {
			slog.Debug("playback complete")
			m.transition(StateListening)
		}
	default:
	}
}

func (m *Machine) handleEvent(e Event) {
	switch e.Kind {
	case EventConnected:
		m.connected = true
		if m.state == StateIdle {
			m.transition(StateListening)
		}

	case EventDisconnected:
		m.connected = false
		if m.state == StateIdle {
			return
		}
		// A drop mid-utterance aborts the exchange; nothing to send an abort
		// over, the stream is gone.
		m.release()
		slog.Warn("backend connection lost", "state", m.state.String())
		m.transition(StateIdle)

	case EventNoBackend:
		m.connected = false
		if m.state != StateIdle {
			m.release()
			m.transition(StateIdle)
		}
		m.deps.Indicator.SetPattern(hw.PatternNoBackend)

	case EventStreamDelta:
		if m.state != StateProcessing && m.state != StateSpeaking {
			return
		}
		if word, ok := m.stopWords.Match(e.Delta); ok {
			slog.Info("stop word matched, cancelling exchange", "word", word)
			m.cancelInFlight()
			return
		}
		slog.Debug("reply delta", "text", e.Delta)

	case EventDone:
		if m.state != StateProcessing {
			return
		}
		m.inflightID = ""
		if e.AlreadyRendered {
			slog.Debug("reply rendered elsewhere, skipping local playback")
			m.transition(StateListening)
			return
		}
		m.transition(StateSpeaking)
		m.deps.Player.Play(func() {
			select {
			case m.playbackDone <- struct{}{}:
			default:
			}
		})

	case EventBackendError:
		if m.state != StateProcessing && m.state != StateSpeaking {
			return
		}
		m.deps.Metrics.RecordProtocolError(context.Background(), e.Code)
		slog.Warn("backend error", "code", e.Code, "message", e.Message)
		m.release()
		m.transition(StateError)

	case EventTimeout:
		if m.state != StateProcessing {
			return
		}
		m.deps.Metrics.RecordWatchdogTimeout(context.Background())
		slog.Warn("backend reply watchdog expired", "utterance", m.inflightID)
		m.release()
		m.transition(StateError)

	case EventSendFailed:
		if m.state != StateProcessing {
			return
		}
		slog.Warn("utterance send failed", "utterance", m.inflightID)
		m.release()
		m.transition(StateError)
	}
}

// cancelInFlight aborts the current exchange at the user's request.
func (m *Machine) cancelInFlight() {
	if m.inflightID != "" {
		if !m.deps.Uplink.Submit(Command{Kind: CommandAbort, ID: m.inflightID}) {
			slog.Warn("abort submit failed, uplink busy", "utterance", m.inflightID)
		}
	}
	m.release()
	m.transition(StateListening)
}

// ─── Transitions ──────────────────────────────────────────────────────────────

// transition is the single mutation point for the state value.
func (m *Machine) transition(to State) {
	if m.state == to {
		return
	}
	from := m.state
	m.state = to
	m.deps.Indicator.SetPattern(patternFor(to))
	slog.Debug("state transition", "from", from.String(), "to", to.String())
}

func patternFor(s State) hw.Pattern {
	switch s {
	case StateIdle:
		return hw.PatternNoBackend
	case StateListening:
		return hw.PatternIdle
	case StateActivated, StateProcessing:
		return hw.PatternProcessing
	case StateRecording:
		return hw.PatternListening
	case StateSpeaking:
		return hw.PatternSpeaking
	default:
		return hw.PatternError
	}
}
