// Package beamform implements delay-and-sum beamforming for a two-microphone
// array. The processor time-aligns the two channels for a configured steering
// direction and sums them, boosting signal-to-noise ratio from that direction
// while emitting a mono frame of the same length as the input.
package beamform

import (
	"fmt"
	"math"

	"github.com/MrWong99/sonaris/pkg/audio"
)

// speedOfSound is the propagation speed used for the delay computation, in
// metres per second at room temperature.
const speedOfSound = 343.0

// SteeringConfig describes the microphone geometry and the target direction.
type SteeringConfig struct {
	// MicSpacing is the distance between the two microphones in metres.
	MicSpacing float64

	// SteeringAngle is the target direction in degrees, in [-90, 90].
	// 0 is broadside (straight ahead); positive angles steer towards the
	// second channel's side of the array.
	SteeringAngle float64

	// SampleRate in Hz of the frames the processor will receive.
	SampleRate int
}

// DelaySamples returns the signed inter-channel delay in samples for the
// configured geometry, clamped so its magnitude never exceeds frameLen.
// A positive value means the second channel lags the first.
func (c SteeringConfig) DelaySamples(frameLen int) int {
	rad := c.SteeringAngle * math.Pi / 180
	d := math.Round(c.MicSpacing * math.Sin(rad) / speedOfSound * float64(c.SampleRate))
	delay := int(d)
	if delay > frameLen {
		delay = frameLen
	}
	if delay < -frameLen {
		delay = -frameLen
	}
	return delay
}

// Processor combines a two-channel frame into an enhanced mono frame.
//
// The lagging channel is shifted by the steering delay; the samples that fall
// before the current frame are filled from the previous frame's tail so
// consecutive frames join without discontinuities. The aligned channels are
// summed and halved to avoid clipping.
//
// Processor is stateful (it keeps the previous frame's tail) and must be used
// from the single capture goroutine.
type Processor struct {
	cfg  SteeringConfig
	tail []int16 // tail of the shifted channel from the previous frame
}

// New returns a Processor for cfg.
func New(cfg SteeringConfig) (*Processor, error) {
	if cfg.MicSpacing <= 0 {
		return nil, fmt.Errorf("beamform: mic spacing %.4f must be > 0", cfg.MicSpacing)
	}
	if cfg.SteeringAngle < -90 || cfg.SteeringAngle > 90 {
		return nil, fmt.Errorf("beamform: steering angle %.1f out of range [-90, 90]", cfg.SteeringAngle)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("beamform: sample rate %d is invalid", cfg.SampleRate)
	}
	return &Processor{cfg: cfg}, nil
}

// Reset discards the retained tail. Call when the capture stream restarts.
func (p *Processor) Reset() {
	p.tail = nil
}

// Process consumes a two-channel interleaved frame and returns a mono frame
// of identical per-channel length. Mono input frames pass through unchanged.
func (p *Processor) Process(f audio.Frame) (audio.Frame, error) {
	if f.Channels == 1 {
		return f, nil
	}
	if f.Channels != 2 {
		return audio.Frame{}, fmt.Errorf("beamform: %d channels unsupported (want 2)", f.Channels)
	}
	if len(f.Samples)%2 != 0 {
		return audio.Frame{}, fmt.Errorf("beamform: odd sample count %d for stereo frame", len(f.Samples))
	}

	n := len(f.Samples) / 2
	left := make([]int16, n)
	right := make([]int16, n)
	for i := 0; i < n; i++ {
		left[i] = f.Samples[2*i]
		right[i] = f.Samples[2*i+1]
	}

	delay := p.cfg.DelaySamples(n)
	lagging, steady := right, left
	if delay < 0 {
		lagging, steady = left, right
		delay = -delay
	}

	shifted := p.shift(lagging, delay)

	out := make([]int16, n)
	for i := 0; i < n; i++ {
		// Sum then halve to stay within int16 range.
		out[i] = int16((int32(steady[i]) + int32(shifted[i])) / 2)
	}

	return audio.Frame{
		Samples:    out,
		SampleRate: f.SampleRate,
		Channels:   1,
		Seq:        f.Seq,
		Timestamp:  f.Timestamp,
	}, nil
}

// shift delays ch by delay samples, borrowing the first delay samples from
// the previous frame's tail (zeros on the very first frame).
func (p *Processor) shift(ch []int16, delay int) []int16 {
	n := len(ch)
	out := make([]int16, n)
	for i := 0; i < delay && i < n; i++ {
		if p.tail != nil && len(p.tail) >= delay {
			out[i] = p.tail[len(p.tail)-delay+i]
		}
	}
	copy(out[delay:], ch)

	// Retain this frame's tail for the next call.
	keep := delay
	if keep == 0 {
		// Nothing to retain but keep the buffer warm for a later non-zero
		// delay after a config-driven restart.
		p.tail = nil
		return out
	}
	if keep > n {
		keep = n
	}
	p.tail = append(p.tail[:0], ch[n-keep:]...)
	return out
}
