package intake

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/scanplan/core/model"
)

const batchCSV = `scan_id,patient_id,scan_type,duration,priority,check_in_date,check_in_time
s1,p1,MRI,30,2,2025-03-10,9:05
s2,p2,CT,45.0,1,2025-03-10,14:30
s3,p3,CT,20,3,,10:00
s4,p4,CT,abc,3,2025-03-10,10:00
s5,p5,CT,20,7,2025-03-10,10:00
s1,p6,CT,20,3,2025-03-10,10:00
s7,p7,CT,0,3,2025-03-10,25:00
`

func TestParseCSV(t *testing.T) {
	res, err := ParseCSV(strings.NewReader(batchCSV), time.UTC)
	require.NoError(t, err)
	require.Len(t, res.Requests, 2)

	assert.Equal(t, model.ScanRequest{
		ScanID: "s1", PatientID: "p1", ScanType: "MRI", Duration: 30, Priority: 2,
		CheckIn: time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC),
	}, res.Requests[0])
	assert.Equal(t, 45, res.Requests[1].Duration)

	rows := map[int]string{}
	for _, e := range res.Rejected {
		rows[e.Row] = e.Field
	}
	assert.Equal(t, map[int]string{4: "check_in", 5: ColDuration, 6: "Priority", 7: ColScanID, 8: "check_in"}, rows)
	assert.Error(t, res.Err())
}

func TestParseCSV_ColumnOrderAndLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := "check_in_time,check_in_date,priority,duration,scan_type,patient_id,scan_id,notes\n" +
		"08:00,2025-03-11,4,60,CT,p1,a,first visit\n"
	res, err := ParseCSV(strings.NewReader(in), loc)
	require.NoError(t, err)
	require.Len(t, res.Requests, 1)
	assert.Equal(t, time.Date(2025, 3, 11, 7, 0, 0, 0, time.UTC), res.Requests[0].CheckIn.UTC())
	assert.NoError(t, res.Err())
}

func TestParseCSV_CheckInToTheMinute(t *testing.T) {
	in := "scan_id,patient_id,scan_type,duration,priority,check_in_date,check_in_time\n" +
		"a,p1,CT,20,3,2025-03-10,09:05\n" +
		"b,p2,CT,20,3,2025-03-10,09:05:30\n"
	res, err := ParseCSV(strings.NewReader(in), time.UTC)
	require.NoError(t, err)
	require.Len(t, res.Requests, 1)
	assert.Equal(t, "a", res.Requests[0].ScanID)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "b", res.Rejected[0].ScanID)
	assert.Equal(t, "check_in", res.Rejected[0].Field)
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("scan_id,patient_id\ns1,p1\n"), time.UTC)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestParseCSV_Empty(t *testing.T) {
	res, err := ParseCSV(strings.NewReader(""), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, res.Requests)
}

func TestParseJSON(t *testing.T) {
	in := `[
		{"scan_id":"j1","patient_id":"p1","scan_type":"CT","duration":30,"priority":"2","check_in_date":"2025-03-10","check_in_time":"07:00"},
		{"scan_id":"j2","patient_id":"p2","scan_type":"CT","duration":30,"check_in_date":"2025-03-10","check_in_time":"07:00"}
	]`
	res, err := ParseJSON(strings.NewReader(in), nil)
	require.NoError(t, err)
	require.Len(t, res.Requests, 1)
	assert.Equal(t, 2, res.Requests[0].Priority)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 2, res.Rejected[0].Row)
	assert.Equal(t, ColPriority, res.Rejected[0].Field)
}

func TestReadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/inbox/batch.csv", []byte(batchCSV), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/inbox/batch.txt", []byte("x"), 0o644))

	res, err := ReadFile(fs, "/inbox/batch.csv", time.UTC)
	require.NoError(t, err)
	assert.Len(t, res.Requests, 2)

	_, err = ReadFile(fs, "/inbox/batch.txt", time.UTC)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = ReadFile(fs, "/inbox/missing.csv", time.UTC)
	assert.Error(t, err)
}
