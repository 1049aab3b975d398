package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/sonaris/pkg/audio"
)

// ErrSealed is returned by [Utterance.Append] after the utterance has been
// sealed.
var ErrSealed = errors.New("session: utterance is sealed")

// Utterance is the ordered, append-only frame sequence for one user turn,
// from activation to end-of-speech. It is owned by the state machine while
// recording; Seal makes it immutable the instant it leaves the Recording
// state, after which ownership may transfer to the connection manager.
type Utterance struct {
	ID         string
	SampleRate int

	frames []audio.Frame
	sealed bool
}

// NewUtterance creates an empty utterance with a fresh identifier.
func NewUtterance(sampleRate int) *Utterance {
	return &Utterance{
		ID:         uuid.NewString(),
		SampleRate: sampleRate,
	}
}

// Append adds a captured frame. Frames must arrive in capture order; the
// sequence numbers they carry are preserved for the wire protocol.
func (u *Utterance) Append(f audio.Frame) error {
	if u.sealed {
		return ErrSealed
	}
	u.frames = append(u.frames, f)
	return nil
}

// Seal freezes the utterance. Safe to call more than once.
func (u *Utterance) Seal() {
	u.sealed = true
}

// Sealed reports whether the utterance has been sealed.
func (u *Utterance) Sealed() bool {
	return u.sealed
}

// Frames returns the captured frames in order. Callers must not mutate the
// returned slice once the utterance is sealed.
func (u *Utterance) Frames() []audio.Frame {
	return u.frames
}

// Len returns the number of captured frames.
func (u *Utterance) Len() int {
	return len(u.frames)
}

// Duration returns the total captured audio duration.
func (u *Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.frames {
		d += f.Duration()
	}
	return d
}

// Samples concatenates all frames into one mono PCM buffer (used by the
// debug dump path).
func (u *Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.frames {
		out = append(out, f.Samples...)
	}
	return out
}
