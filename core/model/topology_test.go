package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologyStandbyReservation(t *testing.T) {
	topo := MustTopology(map[string][]string{
		"MRI": {"M1", "M2"},
		"CT":  {"CT1"},
	})

	standby, ok := topo.Standby("MRI")
	require.True(t, ok)
	assert.Equal(t, "M2", standby)

	_, ok = topo.Standby("CT")
	assert.False(t, ok, "single machine groups have no standby")

	assert.Equal(t, []string{"M1"}, topo.Eligible("MRI", 3))
	assert.Equal(t, []string{"M1"}, topo.Eligible("MRI", 0))
	assert.Equal(t, []string{"M1", "M2"}, topo.Eligible("MRI", 1))
	assert.Equal(t, []string{"CT1"}, topo.Eligible("CT", 4))
}

func TestTopologyErrors(t *testing.T) {
	_, err := NewTopology(map[string][]string{"MRI": {}})
	assert.Error(t, err)
	_, err = NewTopology(map[string][]string{"MRI": {"X"}, "CT": {"X"}})
	assert.Error(t, err)
	_, err = NewTopology(map[string][]string{MaintenanceType: {"X"}})
	assert.Error(t, err)
}

func TestTopologyLookups(t *testing.T) {
	topo := MustTopology(map[string][]string{"MRI": {"M1", "M2"}, "CT": {"C1"}})
	st, ok := topo.MachineType("M2")
	require.True(t, ok)
	assert.Equal(t, "MRI", st)
	assert.Equal(t, []string{"CT", "MRI"}, topo.ScanTypes())
	assert.Equal(t, []string{"C1", "M1", "M2"}, topo.AllMachines())
	assert.False(t, topo.Has("PET"))
}

func TestDeadlines(t *testing.T) {
	assert.Equal(t, int64(1440), DefaultDeadlines.For(1, 99))
	assert.Equal(t, int64(345600), DefaultDeadlines.For(5, 99))
	assert.Equal(t, int64(99), DefaultDeadlines.For(0, 99))
	assert.NoError(t, DefaultDeadlines.Validate())
	assert.Error(t, Deadlines{1, 0, 1, 1, 1}.Validate())
}
