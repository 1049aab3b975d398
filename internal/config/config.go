// Package config provides the configuration schema, loader, and detector
// registry for the Sonaris satellite.
package config

import (
	"time"

	"github.com/MrWong99/sonaris/pkg/audio/codec"
)

// LogLevel controls log verbosity for the satellite.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Sonaris.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Satellite SatelliteConfig `yaml:"satellite"`
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Wakeword  WakewordConfig  `yaml:"wakeword"`
	VAD       VADConfig       `yaml:"vad"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// LogLevel controls verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`
}

// SatelliteConfig identifies this satellite to the backend.
type SatelliteConfig struct {
	// ID uniquely identifies the satellite (e.g., "sat-kitchen-01").
	ID string `yaml:"id"`

	// Room is a human-readable room label.
	Room string `yaml:"room"`

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de-DE").
	Language string `yaml:"language"`
}

// ServerConfig describes how to reach the backend.
type ServerConfig struct {
	// AutoDiscover enables mDNS backend discovery. When false, URL must be
	// set.
	AutoDiscover bool `yaml:"auto_discover"`

	// URL is the static backend stream URL (e.g., "ws://10.0.0.5:8800/stream").
	// With AutoDiscover it serves as a fallback when discovery times out.
	URL string `yaml:"url"`

	// DiscoveryTimeoutSeconds bounds one mDNS browse round. Default 10.
	DiscoveryTimeoutSeconds int `yaml:"discovery_timeout"`

	// ReconnectDelaySeconds is the fixed wait between reconnect attempts.
	// Retries are unbounded. Default 3.
	ReconnectDelaySeconds int `yaml:"reconnect_delay"`

	// RetryIntervalSeconds is the wait between discovery rounds while no
	// backend answers. Default 10.
	RetryIntervalSeconds int `yaml:"retry_interval"`

	// ReplyTimeoutSeconds bounds the wait for a backend reply after an
	// utterance is sent. Default 30.
	ReplyTimeoutSeconds int `yaml:"reply_timeout"`
}

// DiscoveryTimeout returns the browse window as a duration.
func (s ServerConfig) DiscoveryTimeout() time.Duration {
	return time.Duration(s.DiscoveryTimeoutSeconds) * time.Second
}

// ReconnectDelay returns the reconnect wait as a duration.
func (s ServerConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelaySeconds) * time.Second
}

// RetryInterval returns the discovery retry wait as a duration.
func (s ServerConfig) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalSeconds) * time.Second
}

// ReplyTimeout returns the reply watchdog timeout as a duration.
func (s ServerConfig) ReplyTimeout() time.Duration {
	return time.Duration(s.ReplyTimeoutSeconds) * time.Second
}

// AudioConfig holds capture and wire-codec settings.
type AudioConfig struct {
	// SampleRate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSize is the fixed frame length in samples per channel. Default 512.
	ChunkSize int `yaml:"chunk_size"`

	// Channels is the capture channel count: 1, or 2 with beamforming.
	// Default 1.
	Channels int `yaml:"channels"`

	// Device selects the capture device by name substring. Empty uses the
	// system default input.
	Device string `yaml:"device"`

	// PlaybackDevice selects the output device for reply rendering. Empty
	// uses the system default output.
	PlaybackDevice string `yaml:"playback_device"`

	// Codec selects the wire payload codec: "pcm" (default) or "opus".
	Codec codec.Name `yaml:"codec"`

	// DumpDir, when set, writes every sealed utterance as a WAV file into
	// this directory for wake/VAD tuning.
	DumpDir string `yaml:"dump_dir"`

	Beamforming BeamformingConfig `yaml:"beamforming"`
}

// BeamformingConfig configures the delay-and-sum processor.
type BeamformingConfig struct {
	// Enabled turns the processor on; requires Channels == 2.
	Enabled bool `yaml:"enabled"`

	// MicSpacing is the microphone spacing in meters.
	MicSpacing float64 `yaml:"mic_spacing"`

	// SteeringAngle is the target direction in degrees, in [-90, 90].
	SteeringAngle float64 `yaml:"steering_angle"`
}

// WakewordConfig selects and tunes the wake-word detector.
type WakewordConfig struct {
	// Name selects the registered detector implementation (e.g., "energy").
	Name string `yaml:"name"`

	// Model is a detector-specific model path, if any.
	Model string `yaml:"model"`

	// Threshold is the detection confidence threshold in [0, 1]. Default 0.5.
	Threshold float64 `yaml:"threshold"`

	// RefractorySeconds suppresses detections after an activation. Default 2.
	RefractorySeconds int `yaml:"refractory_seconds"`

	// StopWords cancel the in-flight exchange when they appear in a partial
	// reply transcript.
	StopWords []string `yaml:"stop_words"`
}

// Refractory returns the refractory window as a duration.
func (w WakewordConfig) Refractory() time.Duration {
	return time.Duration(w.RefractorySeconds) * time.Second
}

// VADConfig selects and tunes the voice-activity detector and the
// end-of-utterance timing.
type VADConfig struct {
	// Name selects the registered detector implementation ("rms", "silero").
	Name string `yaml:"name"`

	// Model is a detector-specific model path (silero).
	Model string `yaml:"model"`

	// SilenceThreshold is the RMS level below which a frame counts as
	// silence (rms detector).
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDurationMs is the unbroken silence that ends an utterance.
	// Default 1500.
	SilenceDurationMs int `yaml:"silence_duration_ms"`

	// MinRecordingMs is the minimum recording time before silence may end
	// the utterance. Default 800.
	MinRecordingMs int `yaml:"min_recording_ms"`

	// MaxRecordingSeconds forces end-of-utterance regardless of VAD state.
	// Default 15.
	MaxRecordingSeconds int `yaml:"max_recording_seconds"`
}

// SilenceDuration returns the silence window as a duration.
func (v VADConfig) SilenceDuration() time.Duration {
	return time.Duration(v.SilenceDurationMs) * time.Millisecond
}

// MinRecording returns the minimum recording time as a duration.
func (v VADConfig) MinRecording() time.Duration {
	return time.Duration(v.MinRecordingMs) * time.Millisecond
}

// MaxRecording returns the recording ceiling as a duration.
func (v VADConfig) MaxRecording() time.Duration {
	return time.Duration(v.MaxRecordingSeconds) * time.Second
}

// TelemetryConfig configures the metrics/health HTTP endpoint.
type TelemetryConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz, and /readyz.
	// Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`
}
