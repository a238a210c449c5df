// Package otel sets up the tracer provider used for per-decision spans.
//
// Tracing is opt-in: with no OTLP endpoint in the environment the provider is
// a no-op and nothing leaves the host.
package otel
