package codec

import (
	"fmt"

	"layeh.com/gopus"
)

// maxOpusPayload bounds the encoded size of a single chunk. Voice frames at
// satellite bitrates stay far below this.
const maxOpusPayload = 4000

// OpusEncoder compresses mono chunks with Opus in VoIP mode.
type OpusEncoder struct {
	enc       *gopus.Encoder
	chunkSize int
}

// NewOpusEncoder creates an encoder for mono frames of chunkSize samples at
// sampleRate. Opus only accepts specific frame durations; chunk sizes that do
// not map to one are rejected so the misconfiguration surfaces at startup
// rather than on the first utterance.
func NewOpusEncoder(sampleRate, chunkSize int) (*OpusEncoder, error) {
	if !ValidOpusChunk(sampleRate, chunkSize) {
		return nil, fmt.Errorf(
			"codec: chunk size %d is not a valid opus frame at %d Hz (need 2.5/5/10/20/40/60 ms)",
			chunkSize, sampleRate,
		)
	}
	enc, err := gopus.NewEncoder(sampleRate, 1, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("codec: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc, chunkSize: chunkSize}, nil
}

// ValidOpusChunk reports whether chunkSize samples at sampleRate form a legal
// Opus frame duration.
func ValidOpusChunk(sampleRate, chunkSize int) bool {
	if sampleRate <= 0 || chunkSize <= 0 {
		return false
	}
	// Durations in units of 1/400 s: 1 (2.5ms), 2, 4, 8, 16, 24 (60ms).
	for _, units := range []int{1, 2, 4, 8, 16, 24} {
		if chunkSize*400 == sampleRate*units {
			return true
		}
	}
	return false
}

// Name returns [Opus].
func (e *OpusEncoder) Name() Name { return Opus }

// Encode compresses one chunk. The input length must equal the chunk size the
// encoder was created with.
func (e *OpusEncoder) Encode(samples []int16) ([]byte, error) {
	if len(samples) != e.chunkSize {
		return nil, fmt.Errorf("codec: opus frame has %d samples, want %d", len(samples), e.chunkSize)
	}
	data, err := e.enc.Encode(samples, e.chunkSize, maxOpusPayload)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encode: %w", err)
	}
	return data, nil
}
