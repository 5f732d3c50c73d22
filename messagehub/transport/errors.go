package transport

import (
	"errors"
	"fmt"
)

var (
	ErrEndpointNotConnected = errors.New("endpoint is not connected")
	ErrWaitTimeout          = errors.New("no endpoint connected in time")
	ErrUnsupportedScheme    = errors.New("unsupported endpoint url scheme")
	ErrMalformedFrame       = errors.New("malformed frame")
	ErrUnknownChannel       = errors.New("frame was sent on an unknown channel")
)

func notConnectedError(url string) error {
	return fmt.Errorf("%w: endpoint '%s'", ErrEndpointNotConnected, url)
}
