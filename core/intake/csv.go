package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ParseCSV reads a batch with a header row. Column order is free and extra
// columns are ignored. An error is returned only when the file itself is
// unusable; bad rows end up in Result.Rejected.
func ParseCSV(r io.Reader, loc *time.Location) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			return Result{}, fmt.Errorf("%w: missing column %s", ErrFormat, c)
		}
	}

	var res Result
	seen := make(map[string]bool)
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("row %d: %w", row, err)
		}
		get := func(col string) string {
			if i := idx[col]; i < len(rec) {
				return rec[i]
			}
			return ""
		}
		res.accept(record{
			row:         row,
			scanID:      get(ColScanID),
			patientID:   get(ColPatientID),
			scanType:    get(ColScanType),
			duration:    get(ColDuration),
			priority:    get(ColPriority),
			checkInDate: get(ColCheckInDate),
			checkInTime: get(ColCheckInTime),
		}, loc, seen)
	}
	return res, nil
}
