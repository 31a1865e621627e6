package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/spf13/afero"

	"github.com/kilianp07/scanplan/config"
	"github.com/kilianp07/scanplan/core/events"
	"github.com/kilianp07/scanplan/core/intake"
	coremetrics "github.com/kilianp07/scanplan/core/metrics"
	"github.com/kilianp07/scanplan/core/model"
	"github.com/kilianp07/scanplan/core/runlog"
	"github.com/kilianp07/scanplan/core/scheduler"
	"github.com/kilianp07/scanplan/infra/logger"
	"github.com/kilianp07/scanplan/infra/metrics"
	"github.com/kilianp07/scanplan/infra/mqtt"
	"github.com/kilianp07/scanplan/infra/store"
	"github.com/kilianp07/scanplan/internal/eventbus"
)

// Service wires the scheduler to its stores, metrics sinks, the MQTT
// publisher and the inbox watcher.
type Service struct {
	Scheduler *scheduler.Scheduler

	cfg      *config.Config
	facility scheduler.Facility
	fs       afero.Fs
	store    store.Backend
	history  runlog.Store
	sink     coremetrics.MetricsSink
	pub      mqtt.Publisher
	closePub func()
	bus      eventbus.EventBus
	fwd      *sync.WaitGroup
	log      logger.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithFs replaces the OS filesystem used for CSV stores and the inbox.
func WithFs(fs afero.Fs) Option { return func(s *Service) { s.fs = fs } }

// WithPublisher replaces the MQTT publisher built from the configuration.
func WithPublisher(p mqtt.Publisher) Option { return func(s *Service) { s.pub = p } }

// WithClock sets the clock of runs and of the watch cadence.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a Service from the configuration. The broker connection is
// only opened by StartOutputs.
func New(cfg *config.Config, opts ...Option) (svc *Service, err error) {
	cfg.Logging.Apply()
	s := &Service{cfg: cfg, log: logger.New("service"), now: time.Now, fs: afero.NewOsFs()}
	for _, o := range opts {
		o(s)
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.facility, err = cfg.Facility.Facility(); err != nil {
		return nil, err
	}
	if s.store, err = cfg.Store.Open(s.fs, s.facility.Location); err != nil {
		return nil, fmt.Errorf("schedule store: %w", err)
	}
	if s.history, err = runlog.Open(cfg.Runlog); err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.bus = eventbus.New()

	schedOpts := cfg.Scheduling.Options()
	schedOpts.Now = s.now
	s.Scheduler, err = scheduler.New(s.facility, schedOpts, s.store,
		cfg.Solver.Build(logger.New("solver")), s.sink, s.bus, logger.New("scheduler"))
	if err != nil {
		return nil, err
	}
	s.Scheduler.SetHistory(s.history)
	return s, nil
}

// StartOutputs starts the metrics collector and forwards run outcomes to
// the MQTT broker when one is configured. Call it once, before the first run.
func (s *Service) StartOutputs(ctx context.Context) error {
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	metrics.StartEventCollector(ctx, s.bus, s.sink)

	if s.pub == nil && s.cfg.MQTT.Enabled() {
		p, err := mqtt.NewPahoPublisher(s.cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt publisher: %w", err)
		}
		s.pub = p
		s.closePub = p.Disconnect
	}
	if s.pub != nil {
		s.fwd = mqtt.Forward(ctx, s.bus, s.pub, s.log)
	}
	return nil
}

// Facility returns the validated facility.
func (s *Service) Facility() scheduler.Facility { return s.facility }

// Current loads the persisted schedule.
func (s *Service) Current(ctx context.Context) ([]model.ScheduleEntry, error) {
	return s.store.Load(ctx)
}

// History queries the run log.
func (s *Service) History(ctx context.Context, q runlog.Query) ([]runlog.Record, error) {
	return s.history.Query(ctx, q)
}

// Schedule reads the batch at path and runs the scheduler on it.
func (s *Service) Schedule(ctx context.Context, path string) (*scheduler.Result, error) {
	parsed, err := intake.ReadFile(s.fs, path, s.facility.Location)
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", path, err)
	}
	for _, r := range parsed.Rejected {
		s.log.Warnf("%s: rejected %v", path, r)
	}
	return s.Scheduler.Run(ctx, scheduler.Batch{
		Requests: parsed.Requests,
		Rejected: parsed.Rejected,
		Source:   path,
	})
}

// ProcessInbox schedules every pending batch file of the inbox in name
// order. Each file is moved to the processed or failed folder once its run
// ends. A corrupt schedule store or a canceled context stops processing
// and leaves the current file in place. It returns the number of files moved.
func (s *Service) ProcessInbox(ctx context.Context) (int, error) {
	files, err := s.pending()
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		_, runErr := s.Schedule(ctx, path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return moved, ctxErr
		}
		if errors.Is(runErr, store.ErrCorrupt) {
			s.bus.Publish(events.BatchEvent{Path: path, Err: runErr})
			return moved, runErr
		}

		dir := s.cfg.Watch.Processed
		if runErr != nil {
			dir = s.cfg.Watch.Failed
			s.log.Errorf("batch %s failed: %v", path, runErr)
		}
		dest, err := s.move(path, dir)
		if err != nil {
			s.bus.Publish(events.BatchEvent{Path: path, Err: err})
			return moved, fmt.Errorf("move %s: %w", path, err)
		}
		s.bus.Publish(events.BatchEvent{Path: path, Dest: dest, Err: runErr})
		s.log.Infof("batch %s moved to %s", path, dest)
		moved++
	}
	return moved, nil
}

func (s *Service) pending() ([]string, error) {
	inbox := s.cfg.Watch.Inbox
	if err := s.fs.MkdirAll(inbox, 0o755); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, inbox)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(fi.Name())) {
		case ".csv", ".json":
			out = append(out, filepath.Join(inbox, fi.Name()))
		}
	}
	return out, nil
}

// move renames path into dir. An existing file of the same name is kept and
// the new one gets a timestamp prefix.
func (s *Service) move(path, dir string) (string, error) {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(path)
	dest := filepath.Join(dir, base)
	if _, err := s.fs.Stat(dest); err == nil {
		dest = filepath.Join(dir, s.now().Format("20060102T150405")+"_"+base)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	return dest, s.fs.Rename(path, dest)
}

// Run processes the inbox at start and then on every tick of the watch
// cron expression, until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.StartOutputs(ctx); err != nil {
		return err
	}
	s.log.Infof("watching %s (%s) for facility %s", s.cfg.Watch.Inbox, s.cfg.Watch.Cron, s.facility.Name)
	for {
		if n, err := s.ProcessInbox(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorf("inbox: %v", err)
		} else if n > 0 {
			s.log.Infof("processed %d batch files", n)
		}

		now := s.now()
		next, err := gronx.NextTickAfter(s.cfg.Watch.Cron, now, false)
		if err != nil {
			return fmt.Errorf("watch cron: %w", err)
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close releases resources held by the service. Pending MQTT messages are
// flushed before the broker connection is closed.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
		if n := s.bus.Dropped(); n > 0 {
			s.log.Warnf("event bus dropped %d events", n)
		}
	}
	if s.fwd != nil {
		s.fwd.Wait()
	}
	if s.closePub != nil {
		s.closePub()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
