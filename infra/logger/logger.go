package logger

import (
	"io"
	"os"
	"sync"

	corelogger "github.com/kilianp07/scanplan/core/logger"
)

type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

var (
	outMu sync.RWMutex
	out   io.Writer = os.Stderr
)

// SetOutput redirects loggers created afterwards. Logs default to stderr so
// that schedules printed on stdout stay machine readable.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

func output() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return out
}

// New returns a Logger for the given component. The output format is chosen
// from the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component, output())
}
