// Package session implements the satellite's session state machine: per-frame
// wake-word and VAD scoring, utterance capture with end-of-utterance timing,
// and the transitions between the listening, recording, processing, and
// speaking phases.
//
// The machine runs entirely inside the capture domain — every transition
// executes inside one pipeline tick driven from the capture goroutine. All
// interaction with the network layer goes through the [Uplink] handoff and is
// never invoked directly from Tick's call stack beyond a non-blocking post.
package session

// State is the satellite's lifecycle state. A single State value exists per
// process and is mutated only inside the machine's transition function.
type State int

const (
	// StateIdle: no backend available yet; activation is not honoured.
	StateIdle State = iota

	// StateListening: armed — wake-word scoring runs on every frame.
	StateListening

	// StateActivated: wake word (or button) fired; local feedback plays and
	// wake scoring is paused so the activation tone cannot re-trigger.
	StateActivated

	// StateRecording: frames are appended to the current utterance and the
	// silence tracker decides end-of-utterance.
	StateRecording

	// StateProcessing: the sealed utterance is with the connection manager;
	// a watchdog bounds the wait for the backend reply.
	StateProcessing

	// StateSpeaking: the reply is being rendered locally.
	StateSpeaking

	// StateError: recoverable fault; buffers are released and the machine
	// returns to Listening or Idle on the next tick. Terminal only for
	// device loss, which ends the process instance.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateActivated:
		return "activated"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
