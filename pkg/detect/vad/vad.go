// Package vad defines the Detector interface for voice activity detection
// backends, plus the RMS-level fallback implementation.
//
// A VAD detector classifies each frame as speech or non-speech. Like the wake
// detector it is a pluggable frame-in/score-out unit called only from the
// state machine's per-frame step; it must never block.
package vad

import "github.com/MrWong99/sonaris/pkg/audio"

// Detector classifies frames as speech or silence.
//
// A Detector must not be shared across goroutines unless the implementation
// explicitly documents thread safety.
type Detector interface {
	// IsSpeech reports whether the mono frame contains speech.
	IsSpeech(frame audio.Frame) (bool, error)

	// Reset clears accumulated state. Called when recording restarts so a
	// previous segment cannot leak into the next.
	Reset()
}
