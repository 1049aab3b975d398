// Package hw defines the opaque hardware interfaces the satellite talks to:
// the visual indicator, the physical button, and the playback sink. Board
// wiring lives behind these interfaces in deployment-specific adapters; this
// package only ships the contracts plus minimal software implementations.
package hw

import "log/slog"

// Pattern selects the indicator animation for a satellite state.
type Pattern string

const (
	// PatternIdle: armed and waiting for the wake word.
	PatternIdle Pattern = "idle"

	// PatternListening: actively recording the user's utterance.
	PatternListening Pattern = "listening"

	// PatternProcessing: activation chime through backend round trip.
	PatternProcessing Pattern = "processing"

	// PatternSpeaking: rendering the reply.
	PatternSpeaking Pattern = "speaking"

	// PatternError: recoverable fault, blinking.
	PatternError Pattern = "error"

	// PatternNoBackend: no backend discovered or connection lost.
	PatternNoBackend Pattern = "no_backend"
)

// Indicator drives the visual feedback element (LED ring, lamp, …).
// SetPattern is fire-and-forget: implementations must not block and must
// tolerate being called from the capture path.
type Indicator interface {
	SetPattern(p Pattern)
}

// LogIndicator logs pattern changes instead of driving hardware. It is the
// default when no board adapter is configured and doubles as a development
// aid.
type LogIndicator struct {
	last Pattern
}

// SetPattern logs the transition at debug level, suppressing repeats.
func (l *LogIndicator) SetPattern(p Pattern) {
	if p == l.last {
		return
	}
	l.last = p
	slog.Debug("indicator pattern", "pattern", string(p))
}
