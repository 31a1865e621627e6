package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

type jsonRecord struct {
	ScanID      string      `json:"scan_id"`
	PatientID   string      `json:"patient_id"`
	ScanType    string      `json:"scan_type"`
	Duration    json.Number `json:"duration"`
	Priority    json.Number `json:"priority"`
	CheckInDate string      `json:"check_in_date"`
	CheckInTime string      `json:"check_in_time"`
}

// ParseJSON reads a batch encoded as an array of records. Numbers may be
// given as JSON numbers or numeric strings.
func ParseJSON(r io.Reader, loc *time.Location) (Result, error) {
	var recs []jsonRecord
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("decode batch: %w", err)
	}
	var res Result
	seen := make(map[string]bool)
	for i, jr := range recs {
		res.accept(record{
			row:         i + 1,
			scanID:      jr.ScanID,
			patientID:   jr.PatientID,
			scanType:    jr.ScanType,
			duration:    jr.Duration.String(),
			priority:    jr.Priority.String(),
			checkInDate: jr.CheckInDate,
			checkInTime: jr.CheckInTime,
		}, loc, seen)
	}
	return res, nil
}
