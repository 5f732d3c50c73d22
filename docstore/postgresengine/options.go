package postgresengine

import (
	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
)

// EventQueue receives the change events of every write. *messagehub.Hub satisfies it.
type EventQueue interface {
	QueueEvent(envelope messagehub.Envelope)
}

// Option configures a Repository.
type Option func(*Repository) error

// WithTableName sets the documents table.
func WithTableName(tableName string) Option {
	return func(r *Repository) error {
		if tableName == "" {
			return docstore.ErrEmptyTableName
		}

		r.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger.
//
// Debug level: rendered SQL with execution time
// Info level: operation results with document counts and durations
// Warn level: non-critical failures such as closing rows
// Error level: failures that abort an operation.
func WithLogger(logger docstore.Logger) Option {
	return func(r *Repository) error {
		r.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, used for trace-correlated logs.
func WithContextualLogger(logger docstore.ContextualLogger) Option {
	return func(r *Repository) error {
		r.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector docstore.MetricsCollector) Option {
	return func(r *Repository) error {
		r.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector.
func WithTracing(collector docstore.TracingCollector) Option {
	return func(r *Repository) error {
		r.tracingCollector = collector
		return nil
	}
}

// WithEventQueue sets where change events are queued. Without one, writes emit no events.
func WithEventQueue(queue EventQueue) Option {
	return func(r *Repository) error {
		r.eventQueue = queue
		return nil
	}
}
