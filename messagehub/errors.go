package messagehub

import "errors"

var (
	ErrUnknownEvent        = errors.New("no decoder registered for event")
	ErrNoHandlers          = errors.New("subscription needs at least one handler")
	ErrEncodingEventFailed = errors.New("encoding event failed")
	ErrDecodingEventFailed = errors.New("decoding event failed")
	ErrNilTransport        = errors.New("transport must not be nil")
	ErrFlushIncomplete     = errors.New("some event batches could not be flushed")
)
