// Package mock provides test doubles for the hw package interfaces.
package mock

import (
	"sync"

	"github.com/MrWong99/sonaris/pkg/hw"
)

// Indicator records every pattern set on it.
type Indicator struct {
	mu       sync.Mutex
	Patterns []hw.Pattern
}

// SetPattern appends p to Patterns.
func (i *Indicator) SetPattern(p hw.Pattern) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Patterns = append(i.Patterns, p)
}

// Last returns the most recently set pattern, or "" if none.
func (i *Indicator) Last() hw.Pattern {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.Patterns) == 0 {
		return ""
	}
	return i.Patterns[len(i.Patterns)-1]
}

// Seen reports whether p was ever set.
func (i *Indicator) Seen(p hw.Pattern) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, got := range i.Patterns {
		if got == p {
			return true
		}
	}
	return false
}

// Button delivers presses pushed via Push.
type Button struct {
	ch chan hw.Press

	initOnce sync.Once
}

func (b *Button) init() {
	b.initOnce.Do(func() {
		b.ch = make(chan hw.Press, 8)
	})
}

// Push queues a press event.
func (b *Button) Push(p hw.Press) {
	b.init()
	b.ch <- p
}

// Presses returns the event channel.
func (b *Button) Presses() <-chan hw.Press {
	b.init()
	return b.ch
}

// Player records Play calls and optionally defers completion.
type Player struct {
	mu sync.Mutex

	// Hold prevents Play from invoking done immediately; the test completes
	// playback by calling Release.
	Hold bool

	// Calls counts Play invocations.
	Calls int

	pending []func()
}

// Play records the call, completing immediately unless Hold is set.
func (p *Player) Play(done func()) {
	p.mu.Lock()
	p.Calls++
	hold := p.Hold
	if hold {
		p.pending = append(p.pending, done)
	}
	p.mu.Unlock()
	if !hold {
		done()
	}
}

// Release completes all held playbacks.
func (p *Player) Release() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, done := range pending {
		done()
	}
}
