package transport

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultConnectionRetryDelay     = 5000 * time.Millisecond
	defaultConnectionRetryLoopDelay = 500 * time.Millisecond
)

// EndpointConfig describes one message hub endpoint.
type EndpointConfig struct {
	URL string

	// AllowOutgoing decides which event names are broadcast to this endpoint. Nil allows all.
	AllowOutgoing func(eventName string) bool

	// ConnectionRetryDelay is the back-off after a failed connection attempt.
	ConnectionRetryDelay time.Duration

	// ConnectionRetryLoopDelay is the polling interval of the reconnect loop.
	ConnectionRetryLoopDelay time.Duration
}

// connection is a live link to an endpoint.
type connection interface {
	send(ctx context.Context, payload []byte, options BroadcastOptions) error
	done() <-chan struct{}
	close()
}

// connector opens connections. onFrame receives every inbound payload.
type connector interface {
	connect(ctx context.Context, onFrame func(payload []byte)) (connection, error)
}

// Endpoint is a configured endpoint plus its current connection.
type Endpoint struct {
	url           string
	allowOutgoing func(eventName string) bool
	retryDelay    time.Duration
	loopDelay     time.Duration
	connector     connector

	mu   sync.RWMutex
	conn connection
}

func newEndpoint(cfg EndpointConfig, c connector) *Endpoint {
	e := &Endpoint{
		url:           cfg.URL,
		allowOutgoing: cfg.AllowOutgoing,
		retryDelay:    cfg.ConnectionRetryDelay,
		loopDelay:     cfg.ConnectionRetryLoopDelay,
		connector:     c,
	}

	if e.retryDelay <= 0 {
		e.retryDelay = defaultConnectionRetryDelay
	}

	if e.loopDelay <= 0 {
		e.loopDelay = defaultConnectionRetryLoopDelay
	}

	return e
}

// URL returns the configured endpoint URL.
func (e *Endpoint) URL() string {
	return e.url
}

// Allows reports whether frames for eventName may be sent to this endpoint.
func (e *Endpoint) Allows(eventName string) bool {
	if e.allowOutgoing == nil {
		return true
	}

	return e.allowOutgoing(eventName)
}

// IsConnected reports whether the endpoint currently holds a live connection.
func (e *Endpoint) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isConnectedLocked()
}

func (e *Endpoint) isConnectedLocked() bool {
	if e.conn == nil {
		return false
	}

	select {
	case <-e.conn.done():
		return false
	default:
		return true
	}
}

func (e *Endpoint) setConnection(conn connection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		e.conn.close()
	}

	e.conn = conn
}

func (e *Endpoint) currentConnection() connection {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.isConnectedLocked() {
		return nil
	}

	return e.conn
}

func (e *Endpoint) disconnect() {
	e.setConnection(nil)
}

func (e *Endpoint) send(ctx context.Context, payload []byte, options BroadcastOptions) error {
	conn := e.currentConnection()
	if conn == nil {
		return notConnectedError(e.url)
	}

	if err := conn.send(ctx, payload, options); err != nil {
		if ctx.Err() == nil {
			conn.close()
		}

		return err
	}

	return nil
}

// newConnector picks the connection kind from the URL scheme.
func newConnector(rawURL string, s *Service) (connector, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(parsed.Scheme) {
	case "ws", "wss":
		return newWebsocketConnector(parsed, s), nil

	case "http":
		parsed.Scheme = "ws"
		return newWebsocketConnector(parsed, s), nil

	case "https":
		parsed.Scheme = "wss"
		return newWebsocketConnector(parsed, s), nil

	case "nats", "tls":
		return newNATSConnector(rawURL, s), nil

	default:
		return nil, ErrUnsupportedScheme
	}
}
