package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/scanplan/core/metrics"
	"github.com/kilianp07/scanplan/infra/logger"
)

// InfluxSink writes run events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes one scheduling_run point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("scheduling_run").
		AddTag("run_id", ev.RunID).
		AddTag("status", ev.Status)
	if ev.Facility != "" {
		p = p.AddTag("facility", ev.Facility)
	}
	if ev.SolverStatus != "" {
		p = p.AddTag("solver_status", ev.SolverStatus)
	}
	p = p.AddField("requests", ev.Requests).
		AddField("scheduled", ev.Scheduled).
		AddField("deferred", ev.Deferred).
		AddField("rejected", ev.Rejected).
		AddField("skipped", ev.Skipped).
		AddField("entries", ev.Entries).
		AddField("maintenance", ev.Maintenance).
		AddField("warnings", ev.Warnings).
		AddField("objective", ev.Objective).
		AddField("nodes", ev.Nodes).
		AddField("solve_ms", ev.SolveTime.Milliseconds()).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMachineLoad writes one machine_load point per machine.
func (s *InfluxSink) RecordMachineLoad(loads []coremetrics.MachineLoad) error {
	if len(loads) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(loads))
	for _, l := range loads {
		points = append(points, write.NewPointWithMeasurement("machine_load").
			AddTag("machine", l.Machine).
			AddTag("scan_type", l.ScanType).
			AddField("entries", l.Entries).
			AddField("booked_minutes", l.BookedMinutes).
			SetTime(l.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordWait writes one scan_wait point per scheduled scan.
func (s *InfluxSink) RecordWait(waits []coremetrics.WaitEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	for _, w := range waits {
		p := write.NewPointWithMeasurement("scan_wait").
			AddTag("scan_type", w.ScanType).
			AddTag("priority", strconv.Itoa(w.Priority)).
			AddField("wait_minutes", w.Wait.Minutes()).
			SetTime(now)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
