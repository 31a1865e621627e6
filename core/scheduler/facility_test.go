package scheduler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const facilityYAML = `name: north
timezone: Europe/Paris
machines:
  - scan_type: mri
    machines: [MRI1, MRI2, MRI3]
  - scan_type: ct
    machines: [CT1]
deadline_minutes:
  1: 120
`

func TestDecodeFacility(t *testing.T) {
	cfg, err := DecodeFacility(strings.NewReader(facilityYAML), "yaml")
	require.NoError(t, err)
	f, err := cfg.Facility()
	require.NoError(t, err)

	assert.Equal(t, "north", f.Name)
	assert.Equal(t, "Europe/Paris", f.Location.String())
	standby, ok := f.Topology.Standby("mri")
	require.True(t, ok)
	assert.Equal(t, "MRI3", standby)
	assert.Equal(t, []string{"MRI1", "MRI2"}, f.Topology.Eligible("mri", 2))
	assert.Equal(t, int64(120), f.Deadlines.For(1, 0))
	assert.Equal(t, int64(10080), f.Deadlines.For(2, 0))
}

func TestLoadFacility_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facility.json")
	data := `{"name":"south","machines":[{"scan_type":"xray","machines":["XR1"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFacility(path)
	require.NoError(t, err)
	f, err := cfg.Facility()
	require.NoError(t, err)
	assert.Equal(t, "UTC", f.Location.String())
	assert.True(t, f.Topology.Has("xray"))
}

func TestFacilityErrors(t *testing.T) {
	_, err := DecodeFacility(strings.NewReader("x"), "toml")
	assert.Error(t, err)

	cases := map[string]string{
		"no machines":  "name: a\n",
		"bad zone":     "name: a\ntimezone: Mars/Base\nmachines: [{scan_type: ct, machines: [CT1]}]\n",
		"bad priority": "name: a\nmachines: [{scan_type: ct, machines: [CT1]}]\ndeadline_minutes: {7: 10}\n",
		"bad deadline": "name: a\nmachines: [{scan_type: ct, machines: [CT1]}]\ndeadline_minutes: {2: 0}\n",
		"dup type":     "name: a\nmachines: [{scan_type: ct, machines: [CT1]}, {scan_type: ct, machines: [CT2]}]\n",
		"shared":       "name: a\nmachines: [{scan_type: ct, machines: [X]}, {scan_type: mri, machines: [X]}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := DecodeFacility(strings.NewReader(doc), "yml")
			require.NoError(t, err)
			_, err = cfg.Facility()
			assert.Error(t, err)
		})
	}
}
