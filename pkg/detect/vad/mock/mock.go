// Package mock provides a scripted test double for the vad package.
package mock

import (
	"sync"

	"github.com/MrWong99/sonaris/pkg/audio"
)

// Detector is a scripted vad.Detector. Results are consumed one per
// IsSpeech call; once exhausted, IsSpeech returns Fallback.
type Detector struct {
	mu sync.Mutex

	// Results is consumed one value per IsSpeech call.
	Results []bool

	// Fallback is returned once Results is exhausted.
	Fallback bool

	// Err, if non-nil, is returned from every IsSpeech call.
	Err error

	// Calls counts IsSpeech invocations.
	Calls int

	// ResetCalls counts Reset invocations.
	ResetCalls int
}

// IsSpeech pops the next scripted value.
func (d *Detector) IsSpeech(_ audio.Frame) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Err != nil {
		return false, d.Err
	}
	if len(d.Results) == 0 {
		return d.Fallback, nil
	}
	r := d.Results[0]
	d.Results = d.Results[1:]
	return r, nil
}

// Reset records the call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCalls++
}
