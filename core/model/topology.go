package model

import (
	"errors"
	"fmt"
	"sort"
)

// MachineGroup is the ordered list of machines serving one scan type.
type MachineGroup struct {
	ScanType string   `json:"scan_type" yaml:"scan_type"`
	Machines []string `json:"machines" yaml:"machines"`
}

// Topology maps scan types to their machines. Order inside a group matters:
// when a group has more than one machine its last machine is on standby.
type Topology struct {
	groups  map[string][]string
	machine map[string]string
}

// NewTopology builds a topology from scan type groups.
func NewTopology(groups map[string][]string) (Topology, error) {
	t := Topology{groups: make(map[string][]string, len(groups)), machine: make(map[string]string)}
	for st, ms := range groups {
		if st == "" {
			return Topology{}, errors.New("scan type must not be empty")
		}
		if st == MaintenanceType {
			return Topology{}, fmt.Errorf("scan type %q is reserved", st)
		}
		if len(ms) == 0 {
			return Topology{}, fmt.Errorf("scan type %s has no machines", st)
		}
		for _, m := range ms {
			if m == "" {
				return Topology{}, fmt.Errorf("scan type %s: empty machine name", st)
			}
			if other, dup := t.machine[m]; dup {
				return Topology{}, fmt.Errorf("machine %s listed under %s and %s", m, other, st)
			}
			t.machine[m] = st
		}
		t.groups[st] = append([]string(nil), ms...)
	}
	return t, nil
}

// MustTopology is NewTopology for static fixtures; it panics on error.
func MustTopology(groups map[string][]string) Topology {
	t, err := NewTopology(groups)
	if err != nil {
		panic(err)
	}
	return t
}

// ScanTypes returns the configured scan types in sorted order.
func (t Topology) ScanTypes() []string {
	out := make([]string, 0, len(t.groups))
	for st := range t.groups {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}

// Machines returns the ordered machines of a scan type.
func (t Topology) Machines(scanType string) []string {
	return t.groups[scanType]
}

// AllMachines returns every machine, grouped by sorted scan type.
func (t Topology) AllMachines() []string {
	var out []string
	for _, st := range t.ScanTypes() {
		out = append(out, t.groups[st]...)
	}
	return out
}

// Has reports whether the scan type is served by the facility.
func (t Topology) Has(scanType string) bool {
	_, ok := t.groups[scanType]
	return ok
}

// MachineType returns the scan type served by machine.
func (t Topology) MachineType(machine string) (string, bool) {
	st, ok := t.machine[machine]
	return st, ok
}

// Standby returns the reserved machine of a scan type, if any.
func (t Topology) Standby(scanType string) (string, bool) {
	ms := t.groups[scanType]
	if len(ms) < 2 {
		return "", false
	}
	return ms[len(ms)-1], true
}

// Eligible lists the machines a request of the given priority may use.
// Standby machines only take priority 1 overflow.
func (t Topology) Eligible(scanType string, priority int) []string {
	ms := t.groups[scanType]
	standby, ok := t.Standby(scanType)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		if ok && m == standby && priority != PriorityUrgent {
			continue
		}
		out = append(out, m)
	}
	return out
}
