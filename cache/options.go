package cache

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// Importer seeds static data after the startup load. It runs on the worker, so it may call
// Upsert and Save but must not wait for Sync.
type Importer func(ctx context.Context, service *Service) error

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger.
//
// Debug level: every processed work item
// Info level: pushed and pulled document counts per sync pass
// Warn level: duplicate-key rejections that leave a document dirty
// Error level: failed sync passes.
func WithLogger(logger docstore.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector docstore.MetricsCollector) Option {
	return func(s *Service) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithSyncInterval sets how often Run reconciles with the store. The default is 20 seconds.
func WithSyncInterval(interval time.Duration) Option {
	return func(s *Service) error {
		if interval <= 0 {
			return errors.New("sync interval must be positive")
		}

		s.syncInterval = interval

		return nil
	}
}

// WithImporter adds a static-data importer. Importers run in registration order.
func WithImporter(importer Importer) Option {
	return func(s *Service) error {
		if importer == nil {
			return errors.New("importer must not be nil")
		}

		s.importers = append(s.importers, importer)

		return nil
	}
}

// WithClock replaces time.Now, which stamps pushed documents and tombstones.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}

		s.now = now

		return nil
	}
}

func (s *Service) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Service) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
