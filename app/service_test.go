package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/scanplan/config"
	"github.com/kilianp07/scanplan/core/model"
	"github.com/kilianp07/scanplan/core/runlog"
	"github.com/kilianp07/scanplan/core/scheduler"
	"github.com/kilianp07/scanplan/infra/mqtt"
	"github.com/kilianp07/scanplan/infra/store"
)

var now = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

const batch = `scan_id,patient_id,scan_type,duration,priority,check_in_date,check_in_time
S1,P1,mri,30,2,2025-03-10,9:00
S2,P2,ct,20,3,2025-03-10,9:00
S3,P3,ct,x,3,2025-03-10,9:00
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Facility: scheduler.FacilityConfig{
			Name: "north",
			Machines: []model.MachineGroup{
				{ScanType: "mri", Machines: []string{"MRI1", "MRI2"}},
				{ScanType: "ct", Machines: []string{"CT1"}},
			},
		},
		Runlog: runlog.Config{Path: filepath.Join(t.TempDir(), "runs.jsonl")},
		Watch:  config.WatchConfig{Inbox: "/inbox"},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func newService(t *testing.T, fs afero.Fs, pub mqtt.Publisher) *Service {
	t.Helper()
	svc, err := New(testConfig(t), WithFs(fs), WithPublisher(pub), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	return ok
}

func TestProcessInbox(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/inbox/a.csv", []byte(batch), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/inbox/b.json", []byte("{not json"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/inbox/notes.txt", []byte("ignore me"), 0o644))
	pub := mqtt.NewMockPublisher()
	svc := newService(t, fs, pub)
	ctx := context.Background()
	require.NoError(t, svc.StartOutputs(ctx))

	n, err := svc.ProcessInbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, exists(t, fs, "/inbox/processed/a.csv"))
	assert.True(t, exists(t, fs, "/inbox/failed/b.json"))
	assert.True(t, exists(t, fs, "/inbox/notes.txt"))
	assert.False(t, exists(t, fs, "/inbox/a.csv"))

	entries, err := svc.Current(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	recs, err := svc.History(ctx, runlog.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/inbox/a.csv", recs[0].Source)
	assert.Len(t, recs[0].Rejected, 1)

	require.Eventually(t, func() bool {
		s, r := pub.Counts()
		return s == 1 && r == 1
	}, time.Second, 10*time.Millisecond)

	n, err = svc.ProcessInbox(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessInbox_SameNameKeepsBoth(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/inbox/processed/a.csv", []byte("old"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/inbox/a.csv", []byte(batch), 0o644))
	svc := newService(t, fs, nil)

	_, err := svc.ProcessInbox(context.Background())
	require.NoError(t, err)
	assert.True(t, exists(t, fs, "/inbox/processed/20250310T080000_a.csv"))
	old, err := afero.ReadFile(fs, "/inbox/processed/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestProcessInbox_CorruptStoreStops(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schedule.csv", []byte("scan_id\nS1,extra\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/inbox/a.csv", []byte(batch), 0o644))
	svc := newService(t, fs, nil)

	n, err := svc.ProcessInbox(context.Background())
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, store.ErrCorrupt))
	assert.True(t, exists(t, fs, "/inbox/a.csv"))
}

func TestRun_ProcessesAtStartAndStops(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/inbox/a.csv", []byte(batch), 0o644))
	svc := newService(t, fs, mqtt.NewMockPublisher())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		ok, _ := afero.Exists(fs, "/inbox/processed/a.csv")
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNew_InvalidFacility(t *testing.T) {
	cfg := testConfig(t)
	cfg.Facility.Machines = nil
	_, err := New(cfg, WithFs(afero.NewMemMapFs()))
	assert.Error(t, err)
}
