// Package mock provides a scripted test double for the wake package.
//
// Scores are returned in order from the Scores slice; once exhausted, Score
// returns 0. ResetCalls counts Reset invocations so tests can verify the
// state machine clears the window on activation.
package mock

import (
	"sync"

	"github.com/MrWong99/sonaris/pkg/audio"
)

// Detector is a scripted wake.Detector.
type Detector struct {
	mu sync.Mutex

	// Scores is consumed one value per Score call.
	Scores []float64

	// ScoreErr, if non-nil, is returned from every Score call.
	ScoreErr error

	// ScoreCalls counts Score invocations.
	ScoreCalls int

	// ResetCalls counts Reset invocations.
	ResetCalls int
}

// Score pops the next scripted value.
func (d *Detector) Score(_ audio.Frame) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ScoreCalls++
	if d.ScoreErr != nil {
		return 0, d.ScoreErr
	}
	if len(d.Scores) == 0 {
		return 0, nil
	}
	s := d.Scores[0]
	d.Scores = d.Scores[1:]
	return s, nil
}

// Reset records the call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCalls++
}
