package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	metrics "github.com/kilianp07/scanplan/core/metrics"
)

func TestMetricsConfigDecodeYAML(t *testing.T) {
	data := `sinks:
  - type: prometheus
  - type: influx
    conf:
      url: http://influx:8086
      bucket: scans
`
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	require.Len(t, cfg.Sinks, 2)
	assert.Equal(t, "prometheus", cfg.Sinks[0].Type)
	assert.Equal(t, "influx", cfg.Sinks[1].Type)
	assert.Equal(t, "scans", cfg.Sinks[1].Conf["bucket"])
}

func TestMetricsConfigDecodeJSON(t *testing.T) {
	data := `{"sinks":[{"type":"log","conf":{"level":"debug"}}]}`
	var cfg metrics.Config
	require.NoError(t, json.Unmarshal([]byte(data), &cfg))
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, map[string]any{"level": "debug"}, cfg.Sinks[0].Conf)
}
