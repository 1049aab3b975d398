// Package wake defines the Detector interface for wake-word scoring backends.
//
// A wake detector is a pluggable frame-in/score-out unit: it consumes
// fixed-size mono audio frames and returns a confidence that the wake phrase
// was just spoken. Detectors are stateful (they keep an internal sliding
// window) but single-threaded — the state machine calls Score from its
// per-frame step only.
//
// The refractory window after a detection is enforced by the state machine,
// not here: a detector only scores.
package wake

import "github.com/MrWong99/sonaris/pkg/audio"

// Detector scores frames for the wake phrase.
//
// A Detector must not be shared across goroutines unless the implementation
// explicitly documents thread safety.
type Detector interface {
	// Score analyses one mono frame and returns a confidence in [0, 1].
	// It is called on the capture path and must not block.
	Score(frame audio.Frame) (float64, error)

	// Reset clears the internal sliding window. Used when scoring resumes
	// after an activation so stale context cannot re-trigger.
	Reset()
}
