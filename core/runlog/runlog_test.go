package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(id string, at time.Time, status string, scheduled ...string) Record {
	return Record{RunID: id, Timestamp: at, Status: status, Scheduled: scheduled, Requests: len(scheduled)}
}

func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, sample("r1", t0, "ok", "S1", "S2")))
	require.NoError(t, store.Append(ctx, sample("r2", t0.Add(time.Hour), "infeasible")))
	require.NoError(t, store.Append(ctx, sample("r3", t0.Add(2*time.Hour), "ok", "S3")))

	all, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].RunID)
	assert.Equal(t, []string{"S1", "S2"}, all[0].Scheduled)

	ok, err := store.Query(ctx, Query{Status: "ok"})
	require.NoError(t, err)
	assert.Len(t, ok, 2)

	byScan, err := store.Query(ctx, Query{ScanID: "S3"})
	require.NoError(t, err)
	require.Len(t, byScan, 1)
	assert.Equal(t, "r3", byScan[0].RunID)

	window, err := store.Query(ctx, Query{Start: t0.Add(30 * time.Minute), End: t0.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "r2", window[0].RunID)

	last, err := store.Query(ctx, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "r2", last[0].RunID)
	assert.Equal(t, "r3", last[1].RunID)
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestRotatingJSONLStore(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "runs.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 3, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	big := make([]string, 2000)
	for i := range big {
		big[i] = "scan-identifier-padding-0000000000"
	}
	rec := Record{RunID: "bulk", Timestamp: time.Now(), Status: "ok", Warnings: big}
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Append(context.Background(), rec))
	}
	files, err := filepath.Glob(filepath.Join(filepath.Dir(path), "runs*.jsonl"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "expected rotated backups")

	out, err := store.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		cfg  Config
		want any
	}{
		{Config{Path: filepath.Join(dir, "a.jsonl")}, &JSONLStore{}},
		{Config{Backend: "jsonl", Path: filepath.Join(dir, "b.jsonl"), MaxSizeMB: 5}, &RotatingJSONLStore{}},
		{Config{Backend: "sqlite", Path: filepath.Join(dir, "c.db")}, &SQLiteStore{}},
	}
	for _, tt := range tests {
		s, err := Open(tt.cfg)
		require.NoError(t, err)
		assert.IsType(t, tt.want, s)
		_ = s.Close()
	}
	_, err := Open(Config{Backend: "csv", Path: "x"})
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, "jsonl", c.Backend)
	assert.Equal(t, "runs.jsonl", c.Path)
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{Backend: "kafka", Path: "p"}.Validate())
	assert.Error(t, Config{Backend: "sqlite"}.Validate())
}
