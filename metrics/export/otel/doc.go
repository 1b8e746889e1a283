// Package otel exposes authcore metrics through the OpenTelemetry metric
// API as observable instruments read on collection. The caller owns the
// meter provider; Close unregisters the callback.
package otel
