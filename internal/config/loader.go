package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sonaris/pkg/audio/codec"
)

// ValidDetectorNames lists known detector names per detector kind.
// Used by [Validate] to warn about unrecognised names.
var ValidDetectorNames = map[string][]string{
	"wakeword": {"energy"},
	"vad":      {"rms", "silero"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Satellite.Language == "" {
		cfg.Satellite.Language = "en"
	}
	if cfg.Server.DiscoveryTimeoutSeconds == 0 {
		cfg.Server.DiscoveryTimeoutSeconds = 10
	}
	if cfg.Server.ReconnectDelaySeconds == 0 {
		cfg.Server.ReconnectDelaySeconds = 3
	}
	if cfg.Server.RetryIntervalSeconds == 0 {
		cfg.Server.RetryIntervalSeconds = 10
	}
	if cfg.Server.ReplyTimeoutSeconds == 0 {
		cfg.Server.ReplyTimeoutSeconds = 30
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.ChunkSize == 0 {
		cfg.Audio.ChunkSize = 512
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.Codec == "" {
		cfg.Audio.Codec = codec.PCM
	}
	if cfg.Wakeword.Name == "" {
		cfg.Wakeword.Name = "energy"
	}
	if cfg.Wakeword.Threshold == 0 {
		cfg.Wakeword.Threshold = 0.5
	}
	if cfg.Wakeword.RefractorySeconds == 0 {
		cfg.Wakeword.RefractorySeconds = 2
	}
	if cfg.VAD.Name == "" {
		cfg.VAD.Name = "rms"
	}
	if cfg.VAD.SilenceDurationMs == 0 {
		cfg.VAD.SilenceDurationMs = 1500
	}
	if cfg.VAD.MinRecordingMs == 0 {
		cfg.VAD.MinRecordingMs = 800
	}
	if cfg.VAD.MaxRecordingSeconds == 0 {
		cfg.VAD.MaxRecordingSeconds = 15
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Satellite.ID == "" {
		errs = append(errs, errors.New("satellite.id is required"))
	}

	// Server
	if !cfg.Server.AutoDiscover && cfg.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required when server.auto_discover is false"))
	}
	if cfg.Server.AutoDiscover && cfg.Server.URL != "" {
		slog.Info("static server.url set alongside auto_discover; it will be used as a discovery fallback")
	}
	if cfg.Server.DiscoveryTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("server.discovery_timeout %d must not be negative", cfg.Server.DiscoveryTimeoutSeconds))
	}
	if cfg.Server.ReconnectDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("server.reconnect_delay %d must not be negative", cfg.Server.ReconnectDelaySeconds))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be positive", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if !cfg.Audio.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("audio.codec %q is invalid; valid values: pcm, opus", cfg.Audio.Codec))
	} else if cfg.Audio.Codec == codec.Opus && !codec.ValidOpusChunk(cfg.Audio.SampleRate, cfg.Audio.ChunkSize) {
		errs = append(errs, fmt.Errorf(
			"audio.chunk_size %d is not a valid opus frame at %d Hz (need 2.5/5/10/20/40/60 ms)",
			cfg.Audio.ChunkSize, cfg.Audio.SampleRate,
		))
	}

	// Beamforming
	if cfg.Audio.Beamforming.Enabled {
		if cfg.Audio.Channels != 2 {
			errs = append(errs, fmt.Errorf("audio.beamforming requires audio.channels 2, got %d", cfg.Audio.Channels))
		}
		if cfg.Audio.Beamforming.MicSpacing <= 0 {
			errs = append(errs, fmt.Errorf("audio.beamforming.mic_spacing %.3f must be positive", cfg.Audio.Beamforming.MicSpacing))
		}
		if a := cfg.Audio.Beamforming.SteeringAngle; a < -90 || a > 90 {
			errs = append(errs, fmt.Errorf("audio.beamforming.steering_angle %.1f is out of range [-90, 90]", a))
		}
	}

	// Detectors
	validateDetectorName("wakeword", cfg.Wakeword.Name)
	validateDetectorName("vad", cfg.VAD.Name)
	if cfg.Wakeword.Threshold < 0 || cfg.Wakeword.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wakeword.threshold %.2f is out of range [0, 1]", cfg.Wakeword.Threshold))
	}
	if cfg.Wakeword.RefractorySeconds < 0 {
		errs = append(errs, fmt.Errorf("wakeword.refractory_seconds %d must not be negative", cfg.Wakeword.RefractorySeconds))
	}
	if len(cfg.Wakeword.StopWords) == 0 {
		slog.Warn("wakeword.stop_words is empty; replies cannot be cancelled by voice")
	}
	if cfg.VAD.Name == "silero" && cfg.VAD.Model == "" {
		errs = append(errs, errors.New("vad.model is required when vad.name is silero"))
	}
	if cfg.VAD.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.1f must not be negative", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SilenceDurationMs < 0 || cfg.VAD.MinRecordingMs < 0 || cfg.VAD.MaxRecordingSeconds < 0 {
		errs = append(errs, errors.New("vad timing values must not be negative"))
	}
	if cfg.VAD.MaxRecording() <= cfg.VAD.MinRecording() {
		errs = append(errs, fmt.Errorf(
			"vad.max_recording_seconds %d must exceed vad.min_recording_ms %d",
			cfg.VAD.MaxRecordingSeconds, cfg.VAD.MinRecordingMs,
		))
	}

	if cfg.Telemetry.ListenAddr == "" {
		slog.Warn("telemetry.listen_addr is empty; metrics and health endpoints are disabled")
	}

	return errors.Join(errs...)
}

// validateDetectorName logs a warning if name is non-empty and not found in
// the [ValidDetectorNames] list for the given kind.
func validateDetectorName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidDetectorNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown detector name, may be a typo or an externally registered detector",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
