package audio

import "errors"

// ErrDeviceLost is returned by [Source.Capture] when the capture device has
// disappeared or can no longer deliver samples. Device loss is fatal to the
// process instance; the caller gets one re-open attempt before giving up.
var ErrDeviceLost = errors.New("audio: capture device lost")

// Source pulls fixed-size PCM frames from a capture device.
//
// Capture blocks until a full frame is available and must be called from a
// single dedicated goroutine — the capture domain is the sole owner of the
// hardware device. Frame size, sample rate, and channel count are fixed for
// the lifetime of the source.
type Source interface {
	// Start opens the device and begins capturing. Calling Start again after
	// Close re-opens the device (used for the single in-process recovery
	// attempt after a device error).
	Start() error

	// Capture blocks until the next frame is available. The returned frame is
	// owned by the caller. Returns [ErrDeviceLost] when the device fails.
	Capture() (Frame, error)

	// Close stops capturing and releases the device. Safe to call more than
	// once.
	Close() error
}
