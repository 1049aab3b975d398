// Package energy implements a model-free wake detector based on sustained
// signal energy. It scores the fraction of recent frames whose RMS exceeds a
// threshold, so a short burst of loud speech ramps the confidence towards 1.
//
// It exists as the zero-dependency fallback scorer; a neural detector can be
// dropped in behind the same [wake.Detector] interface without touching the
// pipeline.
package energy

import (
	"github.com/MrWong99/sonaris/pkg/audio"
	"github.com/MrWong99/sonaris/pkg/detect/wake"
)

const (
	defaultWindow    = 16
	defaultThreshold = 500.0
)

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithWindow sets the sliding-window length in frames. Default: 16.
func WithWindow(frames int) Option {
	return func(d *Detector) {
		if frames > 0 {
			d.window = make([]bool, frames)
		}
	}
}

// WithRMSThreshold sets the per-frame RMS level counted as signal, in raw
// int16 units. Default: 500.
func WithRMSThreshold(rms float64) Option {
	return func(d *Detector) {
		d.threshold = rms
	}
}

// Detector is an energy-based [wake.Detector]. Not safe for concurrent use.
type Detector struct {
	threshold float64
	window    []bool
	pos       int
	filled    int
}

var _ wake.Detector = (*Detector)(nil)

// New returns a Detector with the supplied options applied in order.
func New(opts ...Option) *Detector {
	d := &Detector{
		threshold: defaultThreshold,
		window:    make([]bool, defaultWindow),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Score returns the fraction of window frames at or above the RMS threshold.
func (d *Detector) Score(frame audio.Frame) (float64, error) {
	hot := audio.RMS(frame.Samples) >= d.threshold
	d.window[d.pos] = hot
	d.pos = (d.pos + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}

	count := 0
	for _, h := range d.window {
		if h {
			count++
		}
	}
	return float64(count) / float64(len(d.window)), nil
}

// Reset clears the sliding window.
func (d *Detector) Reset() {
	for i := range d.window {
		d.window[i] = false
	}
	d.pos = 0
	d.filled = 0
}
