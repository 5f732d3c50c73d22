package httpapi

import (
	"errors"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// ErrNilRepository is returned by NewHandler when no repository is given.
var ErrNilRepository = errors.New("repository must not be nil")

// Option configures a Handler.
type Option func(*Handler) error

// WithLogger sets the logger.
//
// Info level: one line per handled request with duration
// Warn level: client errors such as invalid filters
// Error level: repository failures.
func WithLogger(logger docstore.Logger) Option {
	return func(h *Handler) error {
		h.logger = logger
		return nil
	}
}

func (h *Handler) logInfo(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Info(msg, args...)
	}
}

func (h *Handler) logWarn(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}

func (h *Handler) logError(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Error(msg, args...)
	}
}
