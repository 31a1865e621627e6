// Package metrics defines the sinks that observe scheduling runs. A sink
// records one RunEvent per run and may optionally implement
// MachineLoadRecorder or WaitRecorder. Sinks are built from configuration
// through a registry; NewMetricsSink returns a MultiSink automatically when
// several sinks are configured.
package metrics
