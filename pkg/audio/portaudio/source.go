// Package portaudio implements [audio.Source] on top of the PortAudio
// capture API. It is the production frame source on the satellite; tests use
// the in-memory mocks instead.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/sonaris/pkg/audio"
)

// Config describes the capture stream to open.
type Config struct {
	// Device selects the input device by (substring of) name. Empty selects
	// the system default input.
	Device string

	// SampleRate in Hz, fixed for the process lifetime.
	SampleRate int

	// ChunkSize is the number of samples per channel in each captured frame.
	ChunkSize int

	// Channels is 1 for mono or 2 for a stereo microphone pair.
	Channels int
}

// Source captures interleaved int16 PCM frames from a PortAudio input stream.
// It is not safe for concurrent use; Capture must be called from the single
// capture goroutine.
type Source struct {
	cfg Config

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	seq     uint64
	started time.Time
}

var _ audio.Source = (*Source)(nil)

// initOnce guards global PortAudio initialisation. Terminate is deliberately
// never called: the library is torn down with the process.
var initOnce sync.Once

// New creates a Source for cfg. The device is not opened until [Source.Start].
func New(cfg Config) (*Source, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("portaudio: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("portaudio: chunk size %d is invalid", cfg.ChunkSize)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("portaudio: channel count %d is unsupported (want 1 or 2)", cfg.Channels)
	}
	return &Source{cfg: cfg}, nil
}

// Start opens the capture stream. Calling Start after Close re-opens the
// device.
func (s *Source) Start() error {
	var initErr error
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	if initErr != nil {
		return fmt.Errorf("portaudio: initialise: %w", initErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}

	s.buf = make([]int16, s.cfg.ChunkSize*s.cfg.Channels)

	stream, err := s.open()
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	s.stream = stream
	s.seq = 0
	s.started = time.Now()
	slog.Info("audio capture started",
		"device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate,
		"chunk_size", s.cfg.ChunkSize,
		"channels", s.cfg.Channels,
	)
	return nil
}

// open builds the PortAudio stream, resolving the configured device name.
func (s *Source) open() (*portaudio.Stream, error) {
	if s.cfg.Device == "" {
		stream, err := portaudio.OpenDefaultStream(
			s.cfg.Channels, 0, float64(s.cfg.SampleRate), s.cfg.ChunkSize, s.buf,
		)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open default input: %w", err)
		}
		return stream, nil
	}

	dev, err := findInputDevice(s.cfg.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = s.cfg.Channels
	params.SampleRate = float64(s.cfg.SampleRate)
	params.FramesPerBuffer = s.cfg.ChunkSize

	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open device %q: %w", dev.Name, err)
	}
	return stream, nil
}

// Capture blocks until the next frame has been read from the device.
func (s *Source) Capture() (audio.Frame, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return audio.Frame{}, audio.ErrDeviceLost
	}

	if err := stream.Read(); err != nil {
		// Overflows mean the capture loop fell behind; the frame is stale but
		// usable. Anything else is device loss.
		if !errors.Is(err, portaudio.InputOverflowed) {
			slog.Error("audio capture read failed", "error", err)
			return audio.Frame{}, fmt.Errorf("%w: %v", audio.ErrDeviceLost, err)
		}
		slog.Warn("audio input overflow, frame may be stale")
	}

	samples := make([]int16, len(s.buf))
	copy(samples, s.buf)

	frame := audio.Frame{
		Samples:    samples,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Seq:        s.seq,
		Timestamp:  framePosition(s.seq, s.cfg.ChunkSize, s.cfg.SampleRate),
	}
	s.seq++
	return frame, nil
}

// framePosition converts a frame sequence number to its stream position.
// Whole seconds and the sub-second remainder are computed separately so the
// result stays exact for any uptime; naive seq*chunk*1e9 arithmetic turns
// negative after a few days of continuous capture.
func framePosition(seq uint64, chunkSize, sampleRate int) time.Duration {
	samples := seq * uint64(chunkSize)
	rate := uint64(sampleRate)
	return time.Duration(samples/rate)*time.Second +
		time.Duration(samples%rate)*time.Second/time.Duration(rate)
}

// Close stops and releases the capture stream. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil

	if err := stream.Stop(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: stop stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("portaudio: close stream: %w", err)
	}
	return nil
}

// findInputDevice returns the first input-capable device whose name contains
// name (case-insensitive).
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	needle := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no input device matching %q", name)
}
