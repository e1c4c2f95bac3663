// Package metrics exposes the pipeline's Prometheus instrumentation:
// row counters per store and phase, leak findings, validation findings,
// and phase durations. Collectors register through promauto at init;
// Serve exposes them for the lifetime of a run when --metrics-addr is
// set.
package metrics
