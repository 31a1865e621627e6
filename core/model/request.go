package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Priority levels. PriorityImmediate requests take effect as soon as a machine
// is free and bump later bookings; 1 is the most urgent timed level and 5 the
// least urgent.
const (
	PriorityImmediate = 0
	PriorityUrgent    = 1
	PriorityLowest    = 5
)

// ScanRequest is a pending imaging order awaiting machine assignment.
type ScanRequest struct {
	ScanID    string    `json:"scan_id" validate:"required"`
	PatientID string    `json:"patient_id" validate:"required"`
	ScanType  string    `json:"scan_type" validate:"required"`
	Duration  int       `json:"duration" validate:"gt=0"`
	Priority  int       `json:"priority" validate:"min=0,max=5"`
	CheckIn   time.Time `json:"check_in" validate:"required"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field ranges. Each failing field is reported as an InputError.
func (r ScanRequest) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, &InputError{
			ScanID: r.ScanID,
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed %q (value %v)", fe.Tag(), fe.Value()),
		})
	}
	return errors.Join(errs...)
}

// InputError describes a rejected input record.
type InputError struct {
	Row    int
	ScanID string
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	switch {
	case e.Row > 0 && e.ScanID != "":
		return fmt.Sprintf("row %d (scan %s): %s: %s", e.Row, e.ScanID, e.Field, e.Reason)
	case e.Row > 0:
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
	case e.ScanID != "":
		return fmt.Sprintf("scan %s: %s: %s", e.ScanID, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
