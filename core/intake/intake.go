// Package intake reads batches of new scan requests. Rows that cannot be
// turned into a valid request are dropped and reported, the rest of the
// batch goes through.
package intake

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/kilianp07/scanplan/core/model"
)

// Column names of a request batch.
const (
	ColScanID      = "scan_id"
	ColPatientID   = "patient_id"
	ColScanType    = "scan_type"
	ColDuration    = "duration"
	ColPriority    = "priority"
	ColCheckInDate = "check_in_date"
	ColCheckInTime = "check_in_time"
)

// Columns lists the expected columns in file order.
var Columns = []string{ColScanID, ColPatientID, ColScanType, ColDuration, ColPriority, ColCheckInDate, ColCheckInTime}

// Check-ins are given to the minute and are not always zero padded.
var checkInLayouts = []string{"2006-1-2 15:4"}

// ErrFormat is returned for files that are not a request batch at all.
var ErrFormat = errors.New("unsupported batch format")

// Result is a parsed batch.
type Result struct {
	Requests []model.ScanRequest
	Rejected []*model.InputError
}

// Err joins the rejections, or returns nil when every row was accepted.
func (r Result) Err() error {
	if len(r.Rejected) == 0 {
		return nil
	}
	errs := make([]error, len(r.Rejected))
	for i, e := range r.Rejected {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// record is one raw row, before conversion.
type record struct {
	row                         int
	scanID, patientID, scanType string
	duration, priority          string
	checkInDate, checkInTime    string
}

func (r *Result) reject(rec record, field, reason string) {
	r.Rejected = append(r.Rejected, &model.InputError{Row: rec.row, ScanID: rec.scanID, Field: field, Reason: reason})
}

// accept converts rec and appends it to the result, or records why it
// was dropped.
func (r *Result) accept(rec record, loc *time.Location, seen map[string]bool) {
	if strings.TrimSpace(rec.checkInDate) == "" || strings.TrimSpace(rec.checkInTime) == "" {
		r.reject(rec, "check_in", "missing check-in date or time")
		return
	}
	checkIn, err := parseCheckIn(rec.checkInDate, rec.checkInTime, loc)
	if err != nil {
		r.reject(rec, "check_in", err.Error())
		return
	}
	duration, err := parseInt(rec.duration)
	if err != nil {
		r.reject(rec, ColDuration, err.Error())
		return
	}
	priority, err := parseInt(rec.priority)
	if err != nil {
		r.reject(rec, ColPriority, err.Error())
		return
	}
	req := model.ScanRequest{
		ScanID:    strings.TrimSpace(rec.scanID),
		PatientID: strings.TrimSpace(rec.patientID),
		ScanType:  strings.TrimSpace(rec.scanType),
		Duration:  duration,
		Priority:  priority,
		CheckIn:   checkIn,
	}
	if err := req.Validate(); err != nil {
		var ie *model.InputError
		for _, e := range unwrapAll(err) {
			if errors.As(e, &ie) {
				ie.Row = rec.row
				r.Rejected = append(r.Rejected, ie)
			}
		}
		return
	}
	if seen[req.ScanID] {
		r.reject(rec, ColScanID, "duplicate scan id in batch")
		return
	}
	seen[req.ScanID] = true
	r.Requests = append(r.Requests, req)
}

func unwrapAll(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func parseCheckIn(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	v := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	for _, layout := range checkInLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid check-in %q", v)
}

// parseInt accepts integers and integral decimals such as "30.0".
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// ReadFile parses the batch at path. The format follows the extension.
func ReadFile(fs afero.Fs, path string, loc *time.Location) (Result, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f, filepath.Ext(path), loc)
}

// Parse reads a batch in the format named by ext (".csv" or ".json").
func Parse(r io.Reader, ext string, loc *time.Location) (Result, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		return ParseCSV(r, loc)
	case ".json":
		return ParseJSON(r, loc)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrFormat, ext)
	}
}
