// Package analytics records usage events. Events never influence control flow.
package analytics

import (
	"log/slog"
	"sort"
	"sync/atomic"
)

// Tracker accepts named events with parameters.
type Tracker interface {
	LogEvent(name string, params map[string]any)
}

// Logger writes events to a structured logger while active.
type Logger struct {
	logger *slog.Logger
	active atomic.Bool
}

// NewLogger returns an active tracker.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{logger: logger.With(slog.String("component", "analytics"))}
	l.active.Store(true)
	return l
}

var _ Tracker = (*Logger)(nil)

func (l *Logger) Activate()      { l.active.Store(true) }
func (l *Logger) Deactivate()    { l.active.Store(false) }
func (l *Logger) IsActive() bool { return l.active.Load() }

// LogEvent emits one log record per event; parameters become attributes in key order.
func (l *Logger) LogEvent(name string, params map[string]any) {
	if !l.active.Load() {
		return
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(keys)+1)
	attrs = append(attrs, slog.String("event", name))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, params[k]))
	}
	l.logger.Info("analytics event", attrs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) LogEvent(string, map[string]any) {}
