// Package store persists the canonical schedule. Every Save replaces the
// whole schedule; a Load of a store that was never written returns an empty
// schedule.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/kilianp07/scanplan/core/model"
)

// ErrCorrupt is returned when persisted data cannot be read back.
var ErrCorrupt = errors.New("persisted schedule is corrupt")

// ErrUnknownBackend is returned by New for unsupported backends.
var ErrUnknownBackend = errors.New("unknown store backend")

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}

// Backend is implemented by every schedule store.
type Backend interface {
	Load(ctx context.Context) ([]model.ScheduleEntry, error)
	Save(ctx context.Context, entries []model.ScheduleEntry) error
	Close() error
}

// Open returns the store selected by backend ("csv" or "sqlite").
func Open(backend, path string, fsys afero.Fs, loc *time.Location) (Backend, error) {
	switch backend {
	case "", "csv":
		return NewCSVStore(fsys, path, loc), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
