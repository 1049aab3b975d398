package session

import "time"

// Default end-of-utterance timing parameters.
const (
	DefaultSilenceDuration = 1500 * time.Millisecond
	DefaultMinRecording    = 800 * time.Millisecond
	DefaultMaxRecording    = 15 * time.Second
)

// TrackerConfig holds the end-of-utterance timing knobs.
type TrackerConfig struct {
	// SilenceDuration is the unbroken silence that ends an utterance.
	// Defaults to 1.5s if zero.
	SilenceDuration time.Duration

	// MinRecording is the minimum elapsed recording time before silence may
	// end the utterance. Defaults to 800ms if zero.
	MinRecording time.Duration

	// MaxRecording is the hard ceiling after which end-of-utterance fires
	// regardless of VAD state, bounding latency and memory. Defaults to 15s
	// if zero.
	MaxRecording time.Duration
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.MinRecording <= 0 {
		c.MinRecording = DefaultMinRecording
	}
	if c.MaxRecording <= 0 {
		c.MaxRecording = DefaultMaxRecording
	}
	return c
}

// Tracker decides end-of-utterance from per-frame speech classifications.
//
// It works in stream positions (frame timestamps) rather than wall-clock
// time, so its decisions are deterministic for a given frame sequence. Not
// safe for concurrent use; the machine owns it.
type Tracker struct {
	cfg TrackerConfig

	active     bool
	start      time.Duration
	lastSpeech time.Duration
	hasSpoken  bool
}

// NewTracker returns a Tracker with defaults applied.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg.withDefaults()}
}

// Begin resets the tracker for a new utterance starting at stream position
// pos.
func (t *Tracker) Begin(pos time.Duration) {
	t.active = true
	t.start = pos
	t.lastSpeech = pos
	t.hasSpoken = false
}

// Observe records the classification of the frame at stream position pos.
func (t *Tracker) Observe(pos time.Duration, isSpeech bool) {
	if !t.active {
		return
	}
	if isSpeech {
		t.lastSpeech = pos
		t.hasSpoken = true
	}
}

// HasSpoken reports whether any speech frame was observed since Begin.
func (t *Tracker) HasSpoken() bool {
	return t.hasSpoken
}

// Elapsed returns the recording time up to stream position pos.
func (t *Tracker) Elapsed(pos time.Duration) time.Duration {
	return pos - t.start
}

// Remaining returns how much more unbroken silence (measured at pos) is
// needed before the silence condition is met.
func (t *Tracker) Remaining(pos time.Duration) time.Duration {
	quiet := pos - t.lastSpeech
	if quiet >= t.cfg.SilenceDuration {
		return 0
	}
	return t.cfg.SilenceDuration - quiet
}

// Done reports whether end-of-utterance has been reached at stream position
// pos: either speech was observed, the minimum recording time elapsed, and
// the silence window ran out — or the hard recording ceiling was hit.
func (t *Tracker) Done(pos time.Duration) bool {
	if !t.active {
		return false
	}
	if t.Elapsed(pos) >= t.cfg.MaxRecording {
		return true
	}
	return t.hasSpoken &&
		t.Elapsed(pos) >= t.cfg.MinRecording &&
		t.Remaining(pos) == 0
}

// Stop deactivates the tracker until the next Begin.
func (t *Tracker) Stop() {
	t.active = false
}
