package store

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/kilianp07/scanplan/core/model"
	"github.com/kilianp07/scanplan/pkg/export"
)

// CSVStore keeps the schedule in a single CSV file. Saves go through a
// temporary file renamed over the target.
type CSVStore struct {
	fs   afero.Fs
	path string
	loc  *time.Location
	mu   sync.Mutex
}

// NewCSVStore returns a store for path on fs. Timestamps are written and
// read in loc.
func NewCSVStore(fsys afero.Fs, path string, loc *time.Location) *CSVStore {
	if loc == nil {
		loc = time.UTC
	}
	return &CSVStore{fs: fsys, path: path, loc: loc}
}

// Path returns the file backing the store.
func (s *CSVStore) Path() string { return s.path }

// Load reads the schedule.
func (s *CSVStore) Load(ctx context.Context) ([]model.ScheduleEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entries, err := export.ReadCSV(bytes.NewReader(data), s.loc)
	if err != nil {
		return nil, corrupt(err)
	}
	return entries, nil
}

// Save replaces the schedule.
func (s *CSVStore) Save(ctx context.Context, entries []model.ScheduleEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, entries, s.loc); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}

// Close is a no-op.
func (s *CSVStore) Close() error { return nil }
