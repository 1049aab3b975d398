package config

import "slices"

// ConfigDiff describes what changed between two configs. Detector tuning and
// the log level can be hot-reloaded; everything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakewordChanged is true if threshold, refractory window, or stop
	// words changed.
	WakewordChanged bool

	// VADTimingChanged is true if any end-of-utterance timing changed.
	VADTimingChanged bool

	// RestartRequired is true when a non-hot-reloadable section changed
	// (satellite identity, server, audio, detector selection, telemetry).
	RestartRequired bool
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.WakewordChanged && !d.VADTimingChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if old.Wakeword.Threshold != new.Wakeword.Threshold ||
		old.Wakeword.RefractorySeconds != new.Wakeword.RefractorySeconds ||
		!slices.Equal(old.Wakeword.StopWords, new.Wakeword.StopWords) {
		d.WakewordChanged = true
	}

	if old.VAD.SilenceDurationMs != new.VAD.SilenceDurationMs ||
		old.VAD.MinRecordingMs != new.VAD.MinRecordingMs ||
		old.VAD.MaxRecordingSeconds != new.VAD.MaxRecordingSeconds {
		d.VADTimingChanged = true
	}

	if old.Satellite != new.Satellite ||
		old.Server != new.Server ||
		old.Audio != new.Audio ||
		old.Telemetry != new.Telemetry ||
		old.Wakeword.Name != new.Wakeword.Name ||
		old.Wakeword.Model != new.Wakeword.Model ||
		old.VAD.Name != new.VAD.Name ||
		old.VAD.Model != new.VAD.Model ||
		// The detector is built with its threshold; changing it means
		// rebuilding the detector, not retuning the machine.
		old.VAD.SilenceThreshold != new.VAD.SilenceThreshold {
		d.RestartRequired = true
	}

	return d
}
