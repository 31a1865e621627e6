package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/scanplan/core/model"
)

func sample() []model.ScheduleEntry {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return []model.ScheduleEntry{
		{ScanID: "s2", PatientID: "p2", ScanType: "CT", Machine: "CT1", Start: start, End: start.Add(20 * time.Minute), Priority: 1, Duration: 20},
		{ScanID: "s1", PatientID: "p1", ScanType: "MRI", Machine: "MRI1", Start: start, End: start.Add(30 * time.Minute), Priority: 3, Duration: 30},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample(), nil))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Equal(t, "s2,p2,CT,CT1,2025-03-10 09:00,2025-03-10 09:20,1,20", lines[1])

	got, err := ReadCSV(&buf, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestReadCSV_Corrupt(t *testing.T) {
	cases := map[string]string{
		"bad time":      "scan_id,patient_id,scan_type,machine,start_time,end_time,priority,duration\ns,p,CT,CT1,yesterday,2025-03-10 09:20,1,20\n",
		"bad priority":  "scan_id,patient_id,scan_type,machine,start_time,end_time,priority,duration\ns,p,CT,CT1,2025-03-10 09:00,2025-03-10 09:20,high,20\n",
		"missing col":   "scan_id,patient_id\ns,p\n",
		"end precedes":  "scan_id,patient_id,scan_type,machine,start_time,end_time,priority,duration\ns,p,CT,CT1,2025-03-10 09:00,2025-03-10 08:20,1,20\n",
		"empty machine": "scan_id,patient_id,scan_type,machine,start_time,end_time,priority,duration\ns,p,CT,,2025-03-10 09:00,2025-03-10 09:20,1,20\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in), time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestWriteCSV_Location(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()[:1], time.FixedZone("CET", 3600)))
	assert.Contains(t, buf.String(), "2025-03-10 10:00,2025-03-10 10:20")
}

func TestWriteJSONAndYAML(t *testing.T) {
	var js bytes.Buffer
	require.NoError(t, WriteJSON(&js, sample(), nil))
	var recs []Record
	require.NoError(t, json.Unmarshal(js.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-03-10 09:30", recs[1].EndTime)

	var ys bytes.Buffer
	require.NoError(t, WriteYAML(&ys, sample(), nil))
	var yrecs []Record
	require.NoError(t, yaml.Unmarshal(ys.Bytes(), &yrecs))
	assert.Equal(t, recs, yrecs)
}

func TestByMachine(t *testing.T) {
	agendas := ByMachine(sample())
	require.Len(t, agendas, 2)
	assert.Equal(t, "CT1", agendas[0].Machine)
	assert.Equal(t, "MRI1", agendas[1].Machine)

	var buf bytes.Buffer
	require.NoError(t, WriteAgenda(&buf, sample(), nil))
	assert.Contains(t, buf.String(), "CT1\n  2025-03-10 09:00 - 09:20")
}
