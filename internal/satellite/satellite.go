// Package satellite wires all Sonaris subsystems into a running satellite.
//
// The Satellite struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture loop and the connection event loop,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithUplink, etc.). When an option is not provided, New
// creates real implementations from the config.
package satellite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sonaris/internal/config"
	"github.com/MrWong99/sonaris/internal/conn"
	"github.com/MrWong99/sonaris/internal/observe"
	"github.com/MrWong99/sonaris/internal/session"
	"github.com/MrWong99/sonaris/pkg/audio"
	"github.com/MrWong99/sonaris/pkg/audio/beamform"
	"github.com/MrWong99/sonaris/pkg/audio/codec"
	paudio "github.com/MrWong99/sonaris/pkg/audio/portaudio"
	"github.com/MrWong99/sonaris/pkg/audio/wavdump"
	"github.com/MrWong99/sonaris/pkg/hw"
)

// ErrDeviceGone is returned by Run when the capture device was lost and the
// single in-process recovery attempt failed. The supervisor is expected to
// restart the process.
var ErrDeviceGone = errors.New("satellite: capture device gone")

// Uplink is the backend link as the satellite sees it: the capture-domain
// mailbox pair plus the event loop that owns the network side.
// [conn.Manager] is the production implementation.
type Uplink interface {
	session.Uplink

	// Run executes the connection event loop until ctx is cancelled.
	Run(ctx context.Context) error

	// Connected reports whether the backend stream is currently up.
	Connected() bool
}

// Satellite owns all subsystem lifetimes and runs the voice pipeline.
type Satellite struct {
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	source    audio.Source
	processor *beamform.Processor // nil when beamforming is disabled
	uplink    Uplink
	machine   *session.Machine
	recorder  *wavdump.Recorder // nil when no dump dir is configured
	button    hw.Button
	indicator hw.Indicator
	player    hw.Player
	metrics   *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once

	// deviceLost flips when the capture device is gone beyond recovery.
	deviceLost atomic.Bool
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Satellite)

// WithSource injects a frame source instead of opening a PortAudio device.
func WithSource(s audio.Source) Option {
	return func(sat *Satellite) { sat.source = s }
}

// WithUplink injects a backend link instead of creating a [conn.Manager].
func WithUplink(u Uplink) Option {
	return func(sat *Satellite) { sat.uplink = u }
}

// WithButton injects a button instead of the default NullButton.
func WithButton(b hw.Button) Option {
	return func(sat *Satellite) { sat.button = b }
}

// WithIndicator injects an indicator instead of the default LogIndicator.
func WithIndicator(i hw.Indicator) Option {
	return func(sat *Satellite) { sat.indicator = i }
}

// WithPlayer injects a playback sink instead of the default NullPlayer.
func WithPlayer(p hw.Player) Option {
	return func(sat *Satellite) { sat.player = p }
}

// WithMetrics overrides the metrics instance (tests).
func WithMetrics(m *observe.Metrics) Option {
	return func(sat *Satellite) { sat.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates a Satellite by wiring all subsystems together. The registry
// provides the wake-word and VAD detector factories; use Option functions to
// inject test doubles for any subsystem.
func New(cfg *config.Config, registry *config.Registry, opts ...Option) (*Satellite, error) {
	sat := &Satellite{cfg: cfg}
	for _, o := range opts {
		o(sat)
	}
	if sat.metrics == nil {
		sat.metrics = observe.DefaultMetrics()
	}
	if sat.button == nil {
		sat.button = hw.NullButton{}
	}
	if sat.indicator == nil {
		sat.indicator = &hw.LogIndicator{}
	}
	if sat.player == nil {
		sat.player = hw.NullPlayer{}
	}

	if err := sat.initSource(); err != nil {
		return nil, fmt.Errorf("satellite: init capture source: %w", err)
	}
	if err := sat.initBeamformer(); err != nil {
		return nil, fmt.Errorf("satellite: init beamformer: %w", err)
	}
	if err := sat.initUplink(); err != nil {
		return nil, fmt.Errorf("satellite: init uplink: %w", err)
	}
	if err := sat.initRecorder(); err != nil {
		return nil, fmt.Errorf("satellite: init wav recorder: %w", err)
	}
	if err := sat.initMachine(registry); err != nil {
		return nil, fmt.Errorf("satellite: init state machine: %w", err)
	}

	return sat, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (sat *Satellite) initSource() error {
	if sat.source != nil {
		return nil
	}
	src, err := paudio.New(paudio.Config{
		Device:     sat.cfg.Audio.Device,
		SampleRate: sat.cfg.Audio.SampleRate,
		ChunkSize:  sat.cfg.Audio.ChunkSize,
		Channels:   sat.cfg.Audio.Channels,
	})
	if err != nil {
		return err
	}
	sat.source = src
	return nil
}

func (sat *Satellite) initBeamformer() error {
	bf := sat.cfg.Audio.Beamforming
	if !bf.Enabled {
		return nil
	}
	p, err := beamform.New(beamform.SteeringConfig{
		MicSpacing:    bf.MicSpacing,
		SteeringAngle: bf.SteeringAngle,
		SampleRate:    sat.cfg.Audio.SampleRate,
	})
	if err != nil {
		return err
	}
	sat.processor = p
	return nil
}

func (sat *Satellite) initUplink() error {
	if sat.uplink != nil {
		return nil
	}

	var resolver conn.Resolver
	if sat.cfg.Server.AutoDiscover {
		resolver = conn.NewMDNSResolver(sat.cfg.Server.DiscoveryTimeout())
		if sat.cfg.Server.URL != "" {
			resolver = conn.FallbackResolver{
				Primary:   resolver,
				Secondary: conn.StaticResolver{URL: sat.cfg.Server.URL},
			}
		}
	} else {
		resolver = conn.StaticResolver{URL: sat.cfg.Server.URL}
	}

	enc, err := codec.NewEncoder(sat.cfg.Audio.Codec, sat.cfg.Audio.SampleRate, sat.cfg.Audio.ChunkSize)
	if err != nil {
		return err
	}

	sat.uplink = conn.New(conn.Config{
		SessionID:       sat.cfg.Satellite.ID,
		ReconnectDelay:  sat.cfg.Server.ReconnectDelay(),
		RetryInterval:   sat.cfg.Server.RetryInterval(),
		WatchdogTimeout: sat.cfg.Server.ReplyTimeout(),
	}, resolver, enc, conn.WithMetrics(sat.metrics))
	return nil
}

func (sat *Satellite) initRecorder() error {
	dir := sat.cfg.Audio.DumpDir
	if dir == "" {
		return nil
	}
	rec, err := wavdump.NewRecorder(dir)
	if err != nil {
		return err
	}
	sat.recorder = rec
	sat.closers = append(sat.closers, rec.Close)
	slog.Info("utterance dumps enabled", "dir", dir)
	return nil
}

func (sat *Satellite) initMachine(registry *config.Registry) error {
	wakeDet, err := registry.CreateWake(sat.cfg.Wakeword, sat.cfg.Audio)
	if err != nil {
		return fmt.Errorf("create wakeword detector %q: %w", sat.cfg.Wakeword.Name, err)
	}
	vadDet, err := registry.CreateVAD(sat.cfg.VAD, sat.cfg.Audio)
	if err != nil {
		return fmt.Errorf("create vad detector %q: %w", sat.cfg.VAD.Name, err)
	}

	var onSealed func(*session.Utterance)
	if sat.recorder != nil {
		rec := sat.recorder
		onSealed = func(u *session.Utterance) {
			rec.Submit(wavdump.Dump{
				ID:         u.ID,
				Samples:    u.Samples(),
				SampleRate: u.SampleRate,
			})
		}
	}

	sat.machine = session.New(sessionConfig(sat.cfg), session.Deps{
		Wake:      wakeDet,
		VAD:       vadDet,
		Uplink:    sat.uplink,
		Indicator: sat.indicator,
		Player:    sat.player,
		Metrics:   sat.metrics,
		OnSealed:  onSealed,
	})
	return nil
}

// Machine exposes the session state machine (used by readiness checks).
func (sat *Satellite) Machine() *session.Machine {
	return sat.machine
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the connection event loop and the capture loop and blocks until
// ctx is cancelled or the capture device is lost beyond recovery. A long
// button press cancels the run, mirroring an external shutdown signal.
func (sat *Satellite) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sat.uplink.Run(ctx)
	})

	g.Go(func() error {
		return sat.captureLoop(ctx)
	})

	g.Go(func() error {
		sat.watchButton(ctx, cancel)
		return nil
	})

	slog.Info("satellite running",
		"id", sat.cfg.Satellite.ID,
		"room", sat.cfg.Satellite.Room,
		"beamforming", sat.processor != nil,
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

// captureLoop owns the capture device. It runs the per-frame pipeline:
// capture, beamform, score, tick. On device loss it makes exactly one
// re-open attempt before declaring the device gone.
func (sat *Satellite) captureLoop(ctx context.Context) error {
	if err := sat.source.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	// Closing the source is what unblocks a pending Capture call, so the
	// shutdown path must reach through from the context.
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = sat.source.Close()
		case <-stopped:
		}
	}()

	recovered := false
	for {
		frame, err := sat.source.Capture()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, audio.ErrDeviceLost) {
				return fmt.Errorf("capture: %w", err)
			}
			if recovered {
				sat.deviceLost.Store(true)
				sat.machine.DeviceLost()
				return ErrDeviceGone
			}
			recovered = true
			slog.Warn("capture device lost, attempting re-open")
			_ = sat.source.Close()
			if err := sat.source.Start(); err != nil {
				sat.deviceLost.Store(true)
				sat.machine.DeviceLost()
				return fmt.Errorf("%w: %v", ErrDeviceGone, err)
			}
			if sat.processor != nil {
				sat.processor.Reset()
			}
			continue
		}

		sat.metrics.FramesCaptured.Add(ctx, 1)

		if sat.processor != nil {
			frame, err = sat.processor.Process(frame)
			if err != nil {
				slog.Warn("beamform failed, skipping frame", "seq", frame.Seq, "error", err)
				continue
			}
		}

		sat.machine.Tick(frame)
	}
}

// watchButton forwards short presses to the state machine and treats a long
// press as a shutdown request.
func (sat *Satellite) watchButton(ctx context.Context, cancel context.CancelFunc) {
	presses := sat.button.Presses()
	if presses == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-presses:
			if !ok {
				return
			}
			switch p.Kind {
			case hw.PressLong:
				slog.Info("long press, shutting down")
				cancel()
			default:
				sat.machine.Press(p)
			}
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (sat *Satellite) Shutdown(ctx context.Context) error {
	var shutdownErr error
	sat.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(sat.closers))

		if err := sat.source.Close(); err != nil {
			slog.Warn("capture close error", "error", err)
		}

		for i, closer := range sat.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(sat.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Connected reports whether the backend link is currently up, for the
// readiness probe.
func (sat *Satellite) Connected() bool {
	return sat.uplink.Connected()
}

// DeviceHealthy reports whether the capture device is alive, for the
// readiness probe.
func (sat *Satellite) DeviceHealthy() bool {
	return !sat.deviceLost.Load()
}

// Retune pushes the hot-reloadable detector tuning from cfg into the running
// state machine. Non-tunable changes (audio geometry, detector selection,
// server address) still require a restart.
func (sat *Satellite) Retune(cfg *config.Config) {
	sat.machine.Retune(sessionConfig(cfg))
}

// sessionConfig maps the file config onto the state machine's tuning knobs.
func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		WakeThreshold: cfg.Wakeword.Threshold,
		Refractory:    cfg.Wakeword.Refractory(),
		MinUtterance:  cfg.VAD.MinRecording(),
		Tracker: session.TrackerConfig{
			SilenceDuration: cfg.VAD.SilenceDuration(),
			MinRecording:    cfg.VAD.MinRecording(),
			MaxRecording:    cfg.VAD.MaxRecording(),
		},
		StopWords: cfg.Wakeword.StopWords,
	}
}
