package hw

// Player renders the backend's reply on the local output device. The reply
// audio itself is delivered out-of-band by the playback subsystem; the
// satellite only needs the completion signal to leave the Speaking state.
//
// Play must not block: implementations start playback and invoke done exactly
// once from their own goroutine when rendering finishes (or immediately when
// there is nothing to render).
type Player interface {
	Play(done func())
}

// NullPlayer completes immediately. Used when the backend renders playback
// elsewhere or no output device is configured.
type NullPlayer struct{}

// Play invokes done synchronously.
func (NullPlayer) Play(done func()) {
	done()
}
