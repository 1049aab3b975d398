package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/sonaris/pkg/detect/vad"
	"github.com/MrWong99/sonaris/pkg/detect/wake"
)

// ErrDetectorNotRegistered is returned by Create* methods when no factory
// has been registered under the requested detector name.
var ErrDetectorNotRegistered = errors.New("config: detector not registered")

// Registry maps detector names to their constructor functions. Factories
// receive the relevant config section plus the audio parameters they need to
// size their windows. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	wake map[string]func(WakewordConfig, AudioConfig) (wake.Detector, error)
	vad  map[string]func(VADConfig, AudioConfig) (vad.Detector, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		wake: make(map[string]func(WakewordConfig, AudioConfig) (wake.Detector, error)),
		vad:  make(map[string]func(VADConfig, AudioConfig) (vad.Detector, error)),
	}
}

// RegisterWake registers a wake-word detector factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterWake(name string, factory func(WakewordConfig, AudioConfig) (wake.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wake[name] = factory
}

// RegisterVAD registers a voice-activity detector factory under name.
func (r *Registry) RegisterVAD(name string, factory func(VADConfig, AudioConfig) (vad.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateWake instantiates the wake-word detector selected by cfg.Name.
// Returns [ErrDetectorNotRegistered] if no factory is registered under that
// name.
func (r *Registry) CreateWake(cfg WakewordConfig, audio AudioConfig) (wake.Detector, error) {
	r.mu.RLock()
	factory, ok := r.wake[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wakeword/%q", ErrDetectorNotRegistered, cfg.Name)
	}
	return factory(cfg, audio)
}

// CreateVAD instantiates the voice-activity detector selected by cfg.Name.
func (r *Registry) CreateVAD(cfg VADConfig, audio AudioConfig) (vad.Detector, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrDetectorNotRegistered, cfg.Name)
	}
	return factory(cfg, audio)
}

// WakeNames returns the registered wake detector names (unordered).
func (r *Registry) WakeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.wake))
	for n := range r.wake {
		names = append(names, n)
	}
	return names
}

// VADNames returns the registered VAD names (unordered).
func (r *Registry) VADNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.vad))
	for n := range r.vad {
		names = append(names, n)
	}
	return names
}
