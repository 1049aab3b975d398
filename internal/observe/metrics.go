// Package observe provides application-wide observability primitives for
// Sonaris: OpenTelemetry metrics, structured logging, and HTTP middleware
// for the telemetry endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Sonaris metrics.
const meterName = "github.com/MrWong99/sonaris"

// Metrics holds all OpenTelemetry metric instruments for the satellite.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Pipeline counters ---

	// FramesCaptured counts audio frames read from the capture device.
	FramesCaptured metric.Int64Counter

	// WakeDetections counts activations. Use with attribute:
	//   attribute.String("trigger", "wakeword"|"button")
	WakeDetections metric.Int64Counter

	// Utterances counts completed recordings. Use with attribute:
	//   attribute.String("outcome", "sent"|"discarded"|"dropped")
	Utterances metric.Int64Counter

	// ChunksSent counts audio chunks written to the backend stream.
	ChunksSent metric.Int64Counter

	// --- Latency histograms ---

	// UtteranceDuration tracks the length of recorded utterances.
	UtteranceDuration metric.Float64Histogram

	// DiscoveryDuration tracks how long mDNS backend resolution takes.
	DiscoveryDuration metric.Float64Histogram

	// --- Connection counters ---

	// Reconnects counts backend reconnect attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Reconnects metric.Int64Counter

	// WatchdogTimeouts counts reply watchdog expirations.
	WatchdogTimeouts metric.Int64Counter

	// ProtocolErrors counts malformed or error server messages. Use with
	// attribute: attribute.String("code", ...)
	ProtocolErrors metric.Int64Counter

	// --- Gauges ---

	// ConnectionUp is 1 while the backend stream is established, 0 otherwise.
	ConnectionUp metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks telemetry endpoint request time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// durationBuckets defines histogram bucket boundaries (in seconds) sized for
// utterance lengths and discovery round trips.
var durationBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Pipeline counters.
	if met.FramesCaptured, err = m.Int64Counter("sonaris.audio.frames_captured",
		metric.WithDescription("Total audio frames read from the capture device."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("sonaris.wake.detections",
		metric.WithDescription("Total activations by trigger."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("sonaris.utterances",
		metric.WithDescription("Total completed recordings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSent, err = m.Int64Counter("sonaris.uplink.chunks_sent",
		metric.WithDescription("Total audio chunks written to the backend stream."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.UtteranceDuration, err = m.Float64Histogram("sonaris.utterance.duration",
		metric.WithDescription("Length of recorded utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiscoveryDuration, err = m.Float64Histogram("sonaris.discovery.duration",
		metric.WithDescription("Time spent resolving the backend via mDNS."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	// Connection counters.
	if met.Reconnects, err = m.Int64Counter("sonaris.conn.reconnects",
		metric.WithDescription("Total backend reconnect attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.WatchdogTimeouts, err = m.Int64Counter("sonaris.conn.watchdog_timeouts",
		metric.WithDescription("Total reply watchdog expirations."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("sonaris.conn.protocol_errors",
		metric.WithDescription("Total malformed or error server messages by code."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ConnectionUp, err = m.Int64UpDownCounter("sonaris.conn.up",
		metric.WithDescription("Whether the backend stream is currently established."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sonaris.http.request.duration",
		metric.WithDescription("Telemetry endpoint request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordWakeDetection records an activation with its trigger.
func (m *Metrics) RecordWakeDetection(ctx context.Context, trigger string) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("trigger", trigger)),
	)
}

// RecordUtterance records a completed recording with its outcome and length.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string, d time.Duration) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.UtteranceDuration.Record(ctx, d.Seconds())
}

// RecordReconnect records a reconnect attempt outcome.
func (m *Metrics) RecordReconnect(ctx context.Context, status string) {
	m.Reconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordWatchdogTimeout records a reply watchdog expiration.
func (m *Metrics) RecordWatchdogTimeout(ctx context.Context) {
	m.WatchdogTimeouts.Add(ctx, 1)
}

// RecordProtocolError records a bad server message by error code.
func (m *Metrics) RecordProtocolError(ctx context.Context, code string) {
	m.ProtocolErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}

// SetConnected moves the connection gauge to 1 (up) or back to 0.
func (m *Metrics) SetConnected(ctx context.Context, up bool) {
	if up {
		m.ConnectionUp.Add(ctx, 1)
	} else {
		m.ConnectionUp.Add(ctx, -1)
	}
}
