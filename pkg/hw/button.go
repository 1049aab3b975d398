package hw

import "time"

// PressKind distinguishes the two physical button gestures.
type PressKind int

const (
	// PressShort activates the pipeline directly, bypassing wake scoring.
	PressShort PressKind = iota

	// PressLong requests process shutdown; it is consumed by the supervisor
	// path, never by the state machine.
	PressLong
)

// String returns the human-readable name of the press kind.
func (k PressKind) String() string {
	switch k {
	case PressShort:
		return "short"
	case PressLong:
		return "long"
	default:
		return "unknown"
	}
}

// Press is one debounced button event.
type Press struct {
	Kind PressKind
	At   time.Time
}

// Button emits debounced press events. The channel is closed when the
// underlying input goes away.
type Button interface {
	Presses() <-chan Press
}

// NullButton is the Button used when no physical button is wired. Its
// channel never delivers and never closes.
type NullButton struct{}

// Presses returns a channel that never delivers.
func (NullButton) Presses() <-chan Press {
	return nil
}
