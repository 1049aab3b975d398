package vad

import "github.com/MrWong99/sonaris/pkg/audio"

// DefaultRMSThreshold is the speech threshold in raw int16 RMS units used
// when configuration does not override it.
const DefaultRMSThreshold = 300.0

// RMSDetector is the model-free fallback [Detector]: a frame is speech when
// its RMS level reaches the threshold. It is stateless, so end-of-utterance
// timing is decided purely by the silence tracker — a frame's classification
// never depends on its neighbours.
type RMSDetector struct {
	threshold float64
}

var _ Detector = (*RMSDetector)(nil)

// NewRMS returns an RMSDetector. A non-positive threshold selects
// [DefaultRMSThreshold].
func NewRMS(threshold float64) *RMSDetector {
	if threshold <= 0 {
		threshold = DefaultRMSThreshold
	}
	return &RMSDetector{threshold: threshold}
}

// IsSpeech reports whether the frame's RMS level reaches the threshold.
func (d *RMSDetector) IsSpeech(frame audio.Frame) (bool, error) {
	return audio.RMS(frame.Samples) >= d.threshold, nil
}

// Reset is a no-op; the detector keeps no state.
func (d *RMSDetector) Reset() {}
