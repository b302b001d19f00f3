// Package observe provides application-wide observability primitives for
// VoiceBridge: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VoiceBridge metrics.
const meterName = "github.com/voicebridge/voicebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranslateDuration tracks translation round-trip latency.
	TranslateDuration metric.Float64Histogram

	// TTSRenderDuration tracks server-side TTS rendering latency.
	TTSRenderDuration metric.Float64Histogram

	// SpeakDuration tracks end-to-end fallback-chain latency, from the first
	// attempt to the first audible outcome.
	SpeakDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// SpeakAttempts counts fallback-chain attempts. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("outcome", ...)
	SpeakAttempts metric.Int64Counter

	// SpeakRejected counts speak requests rejected because an identical
	// request was already in flight.
	SpeakRejected metric.Int64Counter

	// Translations counts completed translation requests. Use with attributes:
	//   attribute.String("source", ...), attribute.String("target", ...), attribute.String("status", ...)
	Translations metric.Int64Counter

	// ProviderErrors counts upstream provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// TTSRejected counts tts-audio requests rejected as duplicate concurrent
	// (text, lang) pairs.
	TTSRejected metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected client sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// translation and speech-output latencies, including the 15s worst-case
// Samsung attempt.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("voicebridge.translate.duration",
		metric.WithDescription("Latency of translation round trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSRenderDuration, err = m.Float64Histogram("voicebridge.tts.render.duration",
		metric.WithDescription("Latency of server-side TTS rendering."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("voicebridge.speak.duration",
		metric.WithDescription("End-to-end fallback-chain latency to first audible outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicebridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SpeakAttempts, err = m.Int64Counter("voicebridge.speak.attempts",
		metric.WithDescription("Fallback-chain attempts by strategy and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SpeakRejected, err = m.Int64Counter("voicebridge.speak.rejected",
		metric.WithDescription("Speak requests rejected as duplicates of an in-flight request."),
	); err != nil {
		return nil, err
	}
	if met.Translations, err = m.Int64Counter("voicebridge.translations",
		metric.WithDescription("Completed translation requests by language pair and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voicebridge.provider.errors",
		metric.WithDescription("Upstream provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TTSRejected, err = m.Int64Counter("voicebridge.tts.rejected",
		metric.WithDescription("tts-audio requests rejected as duplicate concurrent (text, lang) pairs."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicebridge.active_sessions",
		metric.WithDescription("Number of connected client sessions."),
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

// RecordSpeakAttempt records one fallback-chain attempt with the standard
// attribute set.
func (m *Metrics) RecordSpeakAttempt(ctx context.Context, strategy, outcome string) {
	m.SpeakAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSpeakRejected records a speak request rejected as an in-flight
// duplicate.
func (m *Metrics) RecordSpeakRejected(ctx context.Context) {
	m.SpeakRejected.Add(ctx, 1)
}

// RecordTranslation records a completed translation request with the
// standard attribute set.
func (m *Metrics) RecordTranslation(ctx context.Context, source, target, status string) {
	m.Translations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("target", target),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records an upstream provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTTSRejected records a duplicate concurrent tts-audio request.
func (m *Metrics) RecordTTSRejected(ctx context.Context) {
	m.TTSRejected.Add(ctx, 1)
}
