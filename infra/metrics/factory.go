package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/scanplan/core/factory"
	coremetrics "github.com/kilianp07/scanplan/core/metrics"
	"github.com/kilianp07/scanplan/infra/logger"
)

// init registers the built-in sinks: nop, log, prometheus and influx.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("log", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Component string `json:"component"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Component == "" {
			c.Component = "runs"
		}
		return NewLogSink(logger.New(c.Component)), nil
	})

	// The HTTP endpoint is configured by metrics.prometheus_addr, not here.
	// Labels are added to every series, e.g. to tell facilities apart when
	// several instances share a Prometheus.
	_ = coremetrics.RegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Labels map[string]string `json:"labels"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		if len(c.Labels) > 0 {
			reg = prometheus.WrapRegistererWith(c.Labels, reg)
		}
		return NewPromSinkWithRegistry(reg)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.URL == "" || c.Bucket == "" {
			return nil, fmt.Errorf("influx sink needs url and bucket")
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
