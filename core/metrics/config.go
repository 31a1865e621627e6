package metrics

import "github.com/kilianp07/scanplan/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr serves /metrics when set, e.g. ":9090".
	PrometheusAddr string `json:"prometheus_addr"`
}
