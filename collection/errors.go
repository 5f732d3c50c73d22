package collection

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedStatus    = errors.New("unexpected response status")
	ErrEmptyBaseURL        = errors.New("base url must not be empty")
	ErrEmptyDatabaseName   = errors.New("database name must not be empty")
	ErrEmptyEntityName     = errors.New("entity name must not be empty")
	ErrNilRepository       = errors.New("repository must not be nil")
	ErrNilCacheService     = errors.New("cache service must not be nil")
	ErrNilHTTPClient       = errors.New("http client must not be nil")
	ErrNoEventHub          = errors.New("collection has no event hub to subscribe to")
	ErrSubscriptionClosed  = errors.New("subscription is closed")
	ErrHandlerPanicked     = errors.New("change handler panicked")
	ErrRequestFailed       = errors.New("request to the document store failed")
	ErrDecodingBodyFailed  = errors.New("decoding response body failed")
	ErrEncodingModelFailed = errors.New("encoding model failed")
	ErrDecodingModelFailed = errors.New("decoding model failed")
)

// StatusError reports a response status the client cannot interpret. It matches ErrUnexpectedStatus.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.StatusCode)
	}

	return fmt.Sprintf("%s: %d: %s", ErrUnexpectedStatus, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
