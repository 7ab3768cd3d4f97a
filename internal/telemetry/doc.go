// Package telemetry wires Prometheus metrics and OpenTelemetry spans for the
// build and lifetime phases of the engine.
package telemetry
