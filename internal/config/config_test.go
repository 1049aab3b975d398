package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/sonaris/internal/config"
	"github.com/MrWong99/sonaris/pkg/audio/codec"
	"github.com/MrWong99/sonaris/pkg/detect/vad"
	vadmock "github.com/MrWong99/sonaris/pkg/detect/vad/mock"
	"github.com/MrWong99/sonaris/pkg/detect/wake"
	wakemock "github.com/MrWong99/sonaris/pkg/detect/wake/mock"
)

const validYAML = `
satellite:
  id: sat-kitchen-01
  room: kitchen
  language: en
server:
  auto_discover: true
  discovery_timeout: 5
  reconnect_delay: 2
audio:
  sample_rate: 16000
  chunk_size: 512
  channels: 2
  device: "ReSpeaker"
  beamforming:
    enabled: true
    mic_spacing: 0.06
    steering_angle: 15
wakeword:
  name: energy
  threshold: 0.6
  refractory_seconds: 2
  stop_words: [stop, cancel]
vad:
  name: rms
  silence_threshold: 300
  silence_duration_ms: 1500
  min_recording_ms: 800
  max_recording_seconds: 15
telemetry:
  listen_addr: ":9102"
log_level: debug
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Satellite.ID != "sat-kitchen-01" {
		t.Errorf("satellite.id = %q", cfg.Satellite.ID)
	}
	if cfg.Satellite.Room != "kitchen" {
		t.Errorf("satellite.room = %q", cfg.Satellite.Room)
	}
	if !cfg.Server.AutoDiscover {
		t.Error("server.auto_discover = false")
	}
	if got := cfg.Server.DiscoveryTimeout().Seconds(); got != 5 {
		t.Errorf("discovery timeout = %.0fs", got)
	}
	if !cfg.Audio.Beamforming.Enabled || cfg.Audio.Beamforming.MicSpacing != 0.06 {
		t.Errorf("beamforming = %+v", cfg.Audio.Beamforming)
	}
	if cfg.Wakeword.Threshold != 0.6 {
		t.Errorf("wakeword.threshold = %v", cfg.Wakeword.Threshold)
	}
	if len(cfg.Wakeword.StopWords) != 2 {
		t.Errorf("stop_words = %v", cfg.Wakeword.StopWords)
	}
	if cfg.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	minimal := `
satellite:
  id: sat-1
server:
  url: ws://10.0.0.5:8800/stream
`
	cfg, err := config.LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("default sample_rate = %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.ChunkSize != 512 {
		t.Errorf("default chunk_size = %d", cfg.Audio.ChunkSize)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("default channels = %d", cfg.Audio.Channels)
	}
	if cfg.Audio.Codec != codec.PCM {
		t.Errorf("default codec = %q", cfg.Audio.Codec)
	}
	if got := cfg.Server.DiscoveryTimeout().Seconds(); got != 10 {
		t.Errorf("default discovery_timeout = %.0fs", got)
	}
	if got := cfg.Server.ReconnectDelay().Seconds(); got != 3 {
		t.Errorf("default reconnect_delay = %.0fs", got)
	}
	if got := cfg.Server.ReplyTimeout().Seconds(); got != 30 {
		t.Errorf("default reply_timeout = %.0fs", got)
	}
	if cfg.Wakeword.Name != "energy" || cfg.Wakeword.Threshold != 0.5 {
		t.Errorf("wakeword defaults = %+v", cfg.Wakeword)
	}
	if cfg.VAD.Name != "rms" || cfg.VAD.SilenceDurationMs != 1500 ||
		cfg.VAD.MinRecordingMs != 800 || cfg.VAD.MaxRecordingSeconds != 15 {
		t.Errorf("vad defaults = %+v", cfg.VAD)
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("default log_level = %q", cfg.LogLevel)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	bad := `
satellite:
  id: sat-1
  colour: blue
server:
  url: ws://x/
`
	if _, err := config.LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("want error for unknown field")
	}
}

// ---- Registry ----

func TestRegistry_UnknownWake(t *testing.T) {
	r := config.NewRegistry()
	_, err := r.CreateWake(config.WakewordConfig{Name: "nope"}, config.AudioConfig{})
	if !errors.Is(err, config.ErrDetectorNotRegistered) {
		t.Fatalf("err = %v, want ErrDetectorNotRegistered", err)
	}
}

func TestRegistry_UnknownVAD(t *testing.T) {
	r := config.NewRegistry()
	_, err := r.CreateVAD(config.VADConfig{Name: "nope"}, config.AudioConfig{})
	if !errors.Is(err, config.ErrDetectorNotRegistered) {
		t.Fatalf("err = %v, want ErrDetectorNotRegistered", err)
	}
}

func TestRegistry_RegisteredWake(t *testing.T) {
	r := config.NewRegistry()
	want := &wakemock.Detector{}
	r.RegisterWake("mock", func(config.WakewordConfig, config.AudioConfig) (wake.Detector, error) {
		return want, nil
	})

	got, err := r.CreateWake(config.WakewordConfig{Name: "mock"}, config.AudioConfig{})
	if err != nil {
		t.Fatalf("CreateWake: %v", err)
	}
	if got != want {
		t.Error("factory result not returned")
	}
}

func TestRegistry_RegisteredVAD(t *testing.T) {
	r := config.NewRegistry()
	want := &vadmock.Detector{}
	r.RegisterVAD("mock", func(config.VADConfig, config.AudioConfig) (vad.Detector, error) {
		return want, nil
	})

	got, err := r.CreateVAD(config.VADConfig{Name: "mock"}, config.AudioConfig{})
	if err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if got != want {
		t.Error("factory result not returned")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	r := config.NewRegistry()
	boom := errors.New("model file missing")
	r.RegisterVAD("broken", func(config.VADConfig, config.AudioConfig) (vad.Detector, error) {
		return nil, boom
	})

	_, err := r.CreateVAD(config.VADConfig{Name: "broken"}, config.AudioConfig{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want factory error", err)
	}
}
