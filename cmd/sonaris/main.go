// Command sonaris is the voice-satellite daemon: it captures microphone
// audio, detects the wake word, records utterances, and streams them to the
// Sonaris backend over a persistent WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/sonaris/internal/config"
	"github.com/MrWong99/sonaris/internal/health"
	"github.com/MrWong99/sonaris/internal/observe"
	"github.com/MrWong99/sonaris/internal/satellite"
	"github.com/MrWong99/sonaris/pkg/detect/vad"
	"github.com/MrWong99/sonaris/pkg/detect/vad/silero"
	"github.com/MrWong99/sonaris/pkg/detect/wake"
	"github.com/MrWong99/sonaris/pkg/detect/wake/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sonaris: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sonaris: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("sonaris starting",
		"config", *configPath,
		"satellite_id", cfg.Satellite.ID,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry provider ────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sonaris",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Detector registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinDetectors(reg)

	// ── Satellite ─────────────────────────────────────────────────────────────
	sat, err := satellite.New(cfg, reg)
	if err != nil {
		slog.Error("failed to initialise satellite", "err", err)
		return 1
	}

	// ── Telemetry HTTP server (optional) ──────────────────────────────────────
	var telemetrySrv *http.Server
	if cfg.Telemetry.ListenAddr != "" {
		telemetrySrv = newTelemetryServer(cfg.Telemetry.ListenAddr, cfg.Satellite.ID, sat)
		go func() {
			if err := telemetrySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("telemetry server error", "err", err)
			}
		}()
		slog.Info("telemetry server listening", "addr", cfg.Telemetry.ListenAddr)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(old, new, sat, logLevel)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	slog.Info("satellite ready, press Ctrl+C to shut down")

	runErr := sat.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if telemetrySrv != nil {
		if err := telemetrySrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry server shutdown error", "err", err)
		}
	}

	if err := sat.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		// Device loss exits non-zero so the supervisor restarts the process.
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped by the build; "dev" for local builds.
var version = "dev"

// ── Detector wiring ───────────────────────────────────────────────────────────

// registerBuiltinDetectors wires the detector factories that ship with
// Sonaris into reg. External builds may register additional detectors before
// constructing the satellite.
func registerBuiltinDetectors(reg *config.Registry) {
	reg.RegisterWake("energy", func(wc config.WakewordConfig, _ config.AudioConfig) (wake.Detector, error) {
		return energy.New(), nil
	})

	reg.RegisterVAD("rms", func(vc config.VADConfig, _ config.AudioConfig) (vad.Detector, error) {
		return vad.NewRMS(vc.SilenceThreshold), nil
	})

	reg.RegisterVAD("silero", func(vc config.VADConfig, ac config.AudioConfig) (vad.Detector, error) {
		return silero.NewDetector(silero.Config{
			ModelPath:  vc.Model,
			SampleRate: ac.SampleRate,
			ChunkSize:  ac.ChunkSize,
		})
	})

	for _, kind := range []string{"wakeword", "vad"} {
		for _, name := range config.ValidDetectorNames[kind] {
			slog.Debug("registered detector", "kind", kind, "name", name)
		}
	}
}

// ── Telemetry server ──────────────────────────────────────────────────────────

func newTelemetryServer(addr, satelliteID string, sat *satellite.Satellite) *http.Server {
	h := health.New(satelliteID,
		health.Checker{Name: "audio", Check: func(context.Context) error {
			if !sat.DeviceHealthy() {
				return errors.New("capture device lost")
			}
			return nil
		}},
		health.Checker{Name: "backend", Check: func(context.Context) error {
			if !sat.Connected() {
				return errors.New("backend not connected")
			}
			return nil
		}},
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	h.Register(mux)

	metrics := observe.DefaultMetrics()
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Config hot reload ─────────────────────────────────────────────────────────

// applyConfigChange reacts to a reloaded config file: the log level and
// detector tuning apply live, everything else logs a restart hint.
func applyConfigChange(old, new *config.Config, sat *satellite.Satellite, logLevel *slog.LevelVar) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.WakewordChanged || d.VADTimingChanged {
		sat.Retune(new)
	}
	if d.RestartRequired {
		slog.Warn("config change requires a restart to take effect")
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Sonaris — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Satellite", cfg.Satellite.ID)
	printRow("Room", cfg.Satellite.Room)
	if cfg.Server.AutoDiscover {
		printRow("Backend", "mDNS discovery")
	} else {
		printRow("Backend", cfg.Server.URL)
	}
	printRow("Audio", fmt.Sprintf("%d Hz / %d ch / %s", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.Codec))
	if cfg.Audio.Beamforming.Enabled {
		printRow("Beamforming", fmt.Sprintf("%.0f° @ %.0f mm", cfg.Audio.Beamforming.SteeringAngle, cfg.Audio.Beamforming.MicSpacing*1000))
	} else {
		printRow("Beamforming", "(disabled)")
	}
	printRow("Wakeword", cfg.Wakeword.Name)
	printRow("VAD", cfg.VAD.Name)
	if cfg.Telemetry.ListenAddr != "" {
		printRow("Telemetry", cfg.Telemetry.ListenAddr)
	} else {
		printRow("Telemetry", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-12s : %-22s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
