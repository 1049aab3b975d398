// Package silero wraps the Silero ONNX voice activity model as a
// [vad.Detector]. Silero emits explicit speech-start and speech-end events on
// a streaming frame feed; the wrapper folds those into the boolean
// speech/no-speech classification the pipeline consumes.
//
// The model operates on 512-sample frames at 16 kHz (or 256 at 8 kHz); the
// audio chunk size must match or NewDetector fails at startup.
package silero

import (
	"fmt"
	"log/slog"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/MrWong99/sonaris/pkg/audio"
	"github.com/MrWong99/sonaris/pkg/detect/vad"
)

const defaultThreshold = 0.5

// Config describes the Silero session to create.
type Config struct {
	// ModelPath is the path to the silero_vad.onnx file.
	ModelPath string

	// SampleRate must be 8000 or 16000.
	SampleRate int

	// ChunkSize is the samples-per-frame the pipeline delivers. Must be 512
	// at 16 kHz or 256 at 8 kHz.
	ChunkSize int

	// Threshold is the speech probability threshold. Zero selects 0.5.
	Threshold float64
}

// Detector is a Silero-backed [vad.Detector]. Not safe for concurrent use.
type Detector struct {
	det      *speech.Detector
	buf      []float32
	inSpeech bool
}

var _ vad.Detector = (*Detector)(nil)

// NewDetector loads the model and validates that the pipeline's frame
// geometry matches what Silero expects.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("silero: model path is required")
	}
	wantChunk := 0
	switch cfg.SampleRate {
	case 16000:
		wantChunk = 512
	case 8000:
		wantChunk = 256
	default:
		return nil, fmt.Errorf("silero: sample rate %d unsupported (want 8000 or 16000)", cfg.SampleRate)
	}
	if cfg.ChunkSize != wantChunk {
		return nil, fmt.Errorf("silero: chunk size %d incompatible with %d Hz (model wants %d)",
			cfg.ChunkSize, cfg.SampleRate, wantChunk)
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}

	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  cfg.ModelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  float32(threshold),
	})
	if err != nil {
		return nil, fmt.Errorf("silero: create detector: %w", err)
	}
	return &Detector{
		det: det,
		buf: make([]float32, cfg.ChunkSize),
	}, nil
}

// IsSpeech feeds one frame through the model and reports the current
// speech/no-speech state.
func (d *Detector) IsSpeech(frame audio.Frame) (bool, error) {
	if len(frame.Samples) != len(d.buf) {
		return false, fmt.Errorf("silero: frame has %d samples, want %d", len(frame.Samples), len(d.buf))
	}
	for i, s := range frame.Samples {
		d.buf[i] = float32(s) / 32768.0
	}

	event, err := d.det.DetectStreamFrame(d.buf)
	if err != nil {
		// The streaming detector occasionally desynchronises on abrupt
		// segment boundaries; reset and carry the previous classification.
		slog.Warn("silero stream frame failed, resetting detector state", "error", err)
		if resetErr := d.det.Reset(); resetErr != nil {
			return false, fmt.Errorf("silero: reset after stream error: %w", resetErr)
		}
		return d.inSpeech, nil
	}
	if event != nil {
		if event.IsStart {
			d.inSpeech = true
		}
		if event.IsEnd {
			d.inSpeech = false
		}
	}
	return d.inSpeech, nil
}

// Reset clears the model's streaming state.
func (d *Detector) Reset() {
	if err := d.det.Reset(); err != nil {
		slog.Warn("silero reset failed", "error", err)
	}
	d.inSpeech = false
}

// Close releases the ONNX session.
func (d *Detector) Close() error {
	if err := d.det.Destroy(); err != nil {
		return fmt.Errorf("silero: destroy detector: %w", err)
	}
	return nil
}
