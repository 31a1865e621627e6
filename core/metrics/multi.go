package metrics

// MultiSink fans out run metrics to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordMachineLoad forwards machine load when supported by the sink.
func (m *MultiSink) RecordMachineLoad(loads []MachineLoad) error {
	for _, s := range m.Sinks {
		if r, ok := s.(MachineLoadRecorder); ok {
			if err := r.RecordMachineLoad(loads); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordWait forwards waiting times when supported by the sink.
func (m *MultiSink) RecordWait(waits []WaitEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(WaitRecorder); ok {
			if err := r.RecordWait(waits); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
