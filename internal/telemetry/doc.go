// Package telemetry wraps OpenTelemetry SDK initialization and
// provides the controller's TracerProvider and MeterProvider. When
// telemetry is disabled, noop implementations are used and no
// external service is contacted.
package telemetry
