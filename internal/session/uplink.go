package session

// CommandKind enumerates the requests the state machine posts to the
// connection manager.
type CommandKind int

const (
	// CommandSend asks the manager to stream a sealed utterance.
	CommandSend CommandKind = iota

	// CommandAbort cancels the in-flight utterance, sending an explicit
	// abort control message if streaming already started.
	CommandAbort
)

// Command crosses from the capture domain to the event-loop domain. The
// utterance it carries is sealed and handed off by move — the machine drops
// its reference the moment the post succeeds.
type Command struct {
	Kind      CommandKind
	Utterance *Utterance // set for CommandSend
	ID        string     // utterance ID, set for CommandAbort
}

// EventKind enumerates notifications the connection manager posts back to
// the state machine.
type EventKind int

const (
	// EventConnected: the backend stream is up.
	EventConnected EventKind = iota

	// EventDisconnected: the stream dropped; reconnection is underway.
	EventDisconnected

	// EventNoBackend: discovery timed out with no static fallback; retries
	// continue periodically.
	EventNoBackend

	// EventStreamDelta: a partial reply arrived.
	EventStreamDelta

	// EventDone: the terminal reply arrived.
	EventDone

	// EventBackendError: the backend reported an error for this exchange.
	EventBackendError

	// EventTimeout: the processing watchdog expired with no reply.
	EventTimeout

	// EventSendFailed: streaming the utterance failed mid-flight.
	EventSendFailed
)

// Event crosses from the event-loop domain to the capture domain. Events are
// parsed, immutable values; the machine observes them at the start of its
// next tick.
type Event struct {
	Kind EventKind

	// Delta is the partial reply text for EventStreamDelta.
	Delta string

	// AlreadyRendered is set on EventDone when the backend rendered playback
	// on another output, suppressing local synthesis.
	AlreadyRendered bool

	// Code and Message describe an EventBackendError.
	Code    string
	Message string
}

// Uplink is the handoff between the capture domain and the event-loop
// domain: one single-slot mailbox per direction. Both methods are
// non-blocking and safe to call from the capture goroutine.
type Uplink interface {
	// Submit posts a command. Returns false when the outbound slot is
	// occupied — the caller treats that as a send failure rather than
	// waiting.
	Submit(cmd Command) bool

	// Poll takes the next pending event, if any.
	Poll() (Event, bool)
}
