package pipeline

import (
	"time"

	"github.com/Iron-Ham/cibox/internal/logging"
)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the debug logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSink sets where step progress is reported for humans.
func WithSink(s Sink) Option {
	return func(e *Executor) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithMetrics records step outcomes and durations into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}
