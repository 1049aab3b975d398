// Package codec provides payload encoders for audio chunks sent over the
// backend stream. PCM (little-endian int16 pass-through) is the interop
// baseline; Opus trades CPU for a much smaller uplink on constrained links.
package codec

import "fmt"

// Name identifies a wire payload codec in configuration and in the
// begin_utterance handshake.
type Name string

const (
	PCM  Name = "pcm"
	Opus Name = "opus"
)

// IsValid reports whether n is a recognised codec name.
func (n Name) IsValid() bool {
	return n == PCM || n == Opus
}

// Encoder turns a frame's samples into a wire payload. Implementations keep
// per-stream state and are not safe for concurrent use.
type Encoder interface {
	// Name returns the codec identifier advertised in begin_utterance.
	Name() Name

	// Encode converts one fixed-size block of mono samples into a payload.
	Encode(samples []int16) ([]byte, error)
}

// NewEncoder builds the encoder selected by name. sampleRate and chunkSize
// describe the mono frames the encoder will receive.
func NewEncoder(name Name, sampleRate, chunkSize int) (Encoder, error) {
	switch name {
	case PCM, "":
		return PCMEncoder{}, nil
	case Opus:
		return NewOpusEncoder(sampleRate, chunkSize)
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
