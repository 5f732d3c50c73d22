package cache

import "errors"

var (
	ErrModelTypeNotRegistered = errors.New("model type is not registered with the cache")
	ErrServiceStopped         = errors.New("cache service is not running")
	ErrAlreadyRunning         = errors.New("cache service is already running")
	ErrNilRepository          = errors.New("source repository must not be nil")
	ErrMissingID              = errors.New("cached document has no id")
	ErrSyncFailed             = errors.New("synchronizing with the store failed")
)
