package codec

import "github.com/MrWong99/sonaris/pkg/audio"

// PCMEncoder passes samples through as little-endian 16-bit PCM.
type PCMEncoder struct{}

// Name returns [PCM].
func (PCMEncoder) Name() Name { return PCM }

// Encode serialises samples without compression.
func (PCMEncoder) Encode(samples []int16) ([]byte, error) {
	return audio.BytesLE(samples), nil
}
