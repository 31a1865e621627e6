package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/scanplan/core/model"
)

// TimeLayout is the text form of schedule timestamps.
const TimeLayout = "2006-01-02 15:04"

// Header is the column order of schedule CSV files.
var Header = []string{"scan_id", "patient_id", "scan_type", "machine", "start_time", "end_time", "priority", "duration"}

// Record is the flat, text timestamped form of a schedule entry.
type Record struct {
	ScanID    string `json:"scan_id" yaml:"scan_id"`
	PatientID string `json:"patient_id" yaml:"patient_id"`
	ScanType  string `json:"scan_type" yaml:"scan_type"`
	Machine   string `json:"machine" yaml:"machine"`
	StartTime string `json:"start_time" yaml:"start_time"`
	EndTime   string `json:"end_time" yaml:"end_time"`
	Priority  int    `json:"priority" yaml:"priority"`
	Duration  int    `json:"duration" yaml:"duration"`
}

// Format renders t in loc. A nil loc keeps the zone of t.
func Format(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimeLayout)
}

// ToRecord converts an entry, rendering its times in loc.
func ToRecord(e model.ScheduleEntry, loc *time.Location) Record {
	return Record{
		ScanID:    e.ScanID,
		PatientID: e.PatientID,
		ScanType:  e.ScanType,
		Machine:   e.Machine,
		StartTime: Format(e.Start, loc),
		EndTime:   Format(e.End, loc),
		Priority:  e.Priority,
		Duration:  e.Duration,
	}
}

// Entry parses the record back, reading its times in loc (UTC when nil).
func (r Record) Entry(loc *time.Location) (model.ScheduleEntry, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(r.StartTime), loc)
	if err != nil {
		return model.ScheduleEntry{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(r.EndTime), loc)
	if err != nil {
		return model.ScheduleEntry{}, fmt.Errorf("end_time: %w", err)
	}
	if end.Before(start) {
		return model.ScheduleEntry{}, errors.New("end_time before start_time")
	}
	if r.ScanID == "" || r.Machine == "" {
		return model.ScheduleEntry{}, errors.New("scan_id and machine are required")
	}
	if r.Duration < 0 {
		return model.ScheduleEntry{}, fmt.Errorf("negative duration %d", r.Duration)
	}
	return model.ScheduleEntry{
		ScanID:    r.ScanID,
		PatientID: r.PatientID,
		ScanType:  r.ScanType,
		Machine:   r.Machine,
		Start:     start,
		End:       end,
		Priority:  r.Priority,
		Duration:  r.Duration,
	}, nil
}

func records(entries []model.ScheduleEntry, loc *time.Location) []Record {
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = ToRecord(e, loc)
	}
	return out
}

// WriteJSON writes the schedule to w as a JSON array.
func WriteJSON(w io.Writer, entries []model.ScheduleEntry, loc *time.Location) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records(entries, loc))
}

// WriteYAML writes the schedule to w as a YAML sequence.
func WriteYAML(w io.Writer, entries []model.ScheduleEntry, loc *time.Location) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records(entries, loc)); err != nil {
		return err
	}
	return enc.Close()
}

// WriteCSV writes the schedule to w in CSV format with a header row.
func WriteCSV(w io.Writer, entries []model.ScheduleEntry, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		r := ToRecord(e, loc)
		rec := []string{
			r.ScanID,
			r.PatientID,
			r.ScanType,
			r.Machine,
			r.StartTime,
			r.EndTime,
			strconv.Itoa(r.Priority),
			strconv.Itoa(r.Duration),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a schedule written by WriteCSV. Any malformed row fails
// the whole read.
func ReadCSV(r io.Reader, loc *time.Location) ([]model.ScheduleEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, c := range Header {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %s", c)
		}
	}
	var out []model.ScheduleEntry
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		get := func(col string) string {
			if i := idx[col]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		priority, err := atoi(get("priority"))
		if err != nil {
			return nil, fmt.Errorf("row %d: priority: %w", row, err)
		}
		duration, err := atoi(get("duration"))
		if err != nil {
			return nil, fmt.Errorf("row %d: duration: %w", row, err)
		}
		e, err := Record{
			ScanID:    get("scan_id"),
			PatientID: get("patient_id"),
			ScanType:  get("scan_type"),
			Machine:   get("machine"),
			StartTime: get("start_time"),
			EndTime:   get("end_time"),
			Priority:  priority,
			Duration:  duration,
		}.Entry(loc)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// atoi also accepts integral decimals, which spreadsheet tools tend to write.
func atoi(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// Agenda is the ordered bookings of one machine.
type Agenda struct {
	Machine string                `json:"machine" yaml:"machine"`
	Entries []model.ScheduleEntry `json:"entries" yaml:"entries"`
}

// ByMachine splits a schedule into per machine agendas sorted by name.
func ByMachine(entries []model.ScheduleEntry) []Agenda {
	groups, names := model.GroupByMachine(entries)
	out := make([]Agenda, 0, len(names))
	for _, n := range names {
		out = append(out, Agenda{Machine: n, Entries: groups[n]})
	}
	return out
}

// WriteAgenda prints one block per machine in a human readable layout.
func WriteAgenda(w io.Writer, entries []model.ScheduleEntry, loc *time.Location) error {
	for _, a := range ByMachine(entries) {
		if _, err := fmt.Fprintf(w, "%s\n", a.Machine); err != nil {
			return err
		}
		for _, e := range a.Entries {
			if _, err := fmt.Fprintf(w, "  %s - %s  %-24s %-12s p%d\n",
				Format(e.Start, loc), Format(e.End, loc)[11:], e.ScanID, e.PatientID, e.Priority); err != nil {
				return err
			}
		}
	}
	return nil
}
