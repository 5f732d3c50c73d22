package messagehub

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// Option configures a Hub.
type Option func(*Hub) error

// WithLogger sets the logger.
func WithLogger(logger docstore.Logger) Option {
	return func(h *Hub) error {
		h.logger = logger
		return nil
	}
}

// WithRegistry replaces the default registry.
func WithRegistry(registry *Registry) Option {
	return func(h *Hub) error {
		if registry == nil {
			return errors.New("registry must not be nil")
		}

		h.registry = registry

		return nil
	}
}

// WithDefaultSendDelay sets the delay used for values queued without one.
func WithDefaultSendDelay(delay time.Duration) Option {
	return func(h *Hub) error {
		if delay < 0 {
			return errors.New("send delay must not be negative")
		}

		h.defaultDelay = delay

		return nil
	}
}

// WithIdleInterval sets how long Run sleeps when nothing is queued.
func WithIdleInterval(interval time.Duration) Option {
	return func(h *Hub) error {
		if interval <= 0 {
			return errors.New("idle interval must be positive")
		}

		h.idleInterval = interval

		return nil
	}
}

func (h *Hub) logDebug(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}

func (h *Hub) logWarn(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}

func (h *Hub) logError(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Error(msg, args...)
	}
}
