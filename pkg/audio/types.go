// Package audio defines the frame type and capture-source interface shared by
// the Sonaris audio pipeline.
//
// A [Frame] is the atomic unit of audio transport: captured from the input
// device, optionally beamformed, scored by the wake-word and VAD detectors,
// and appended to an utterance. Frames are immutable once captured — each
// pipeline stage owns the frame exclusively while processing it and hands it
// off by value.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is a fixed-length block of PCM samples captured from the microphone.
//
// Samples are interleaved when Channels > 1. Seq is a monotonic sequence
// number assigned by the capture source; Timestamp is the offset of the
// frame's first sample relative to stream start.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Seq        uint64
	Timestamp  time.Duration
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root-mean-square level of the samples in raw int16 units.
// An empty slice has RMS 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// BytesLE serialises samples as little-endian 16-bit PCM.
func BytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// SamplesLE parses little-endian 16-bit PCM back into samples. A trailing odd
// byte is ignored.
func SamplesLE(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
