package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// Logger is the docstore logger, satisfied by *slog.Logger.
type Logger = docstore.Logger

const (
	waitUntilConnectedPollInterval = 100 * time.Millisecond
	defaultConnectTimeout          = 5 * time.Second
)

const (
	logMsgConnecting       = "connecting to endpoint"
	logMsgConnected        = "connected to endpoint"
	logMsgConnectFailed    = "connecting to endpoint failed"
	logMsgConnectionLost   = "endpoint connection lost"
	logMsgWriteFailed      = "writing frame failed"
	logMsgFrameDropped     = "dropped malformed frame"
	logMsgEndpointSkipped  = "allowed endpoint is not connected, skipping"
	logMsgNoEndpointAllows = "no endpoint allows event, nothing sent"
	logMsgBroadcast        = "broadcast frame"
	logAttrEndpoint        = "endpoint"
	logAttrEventName       = "event_name"
	logAttrValueCount      = "value_count"
	logAttrError           = "error"
)

// Receiver consumes inbound frames whose event name starts with one of its prefixes.
type Receiver interface {
	EventNamePrefixes() []string
	Receive(ctx context.Context, frame Frame)
}

type ephemeralReceiver struct {
	id       uint64
	receiver Receiver
}

// Service owns the endpoints, their reconnect loops and the receiver registry.
type Service struct {
	endpoints  []*Endpoint
	logger     Logger
	header     http.Header
	instanceID string

	mu        sync.RWMutex
	durable   []Receiver
	ephemeral []ephemeralReceiver
	nextID    uint64
	runCtx    context.Context
}

// NewService creates a Service for the given endpoints. Call Run to start connecting.
func NewService(configs []EndpointConfig, options ...Option) (*Service, error) {
	s := &Service{
		header:     make(http.Header),
		instanceID: uuid.NewString(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	for _, cfg := range configs {
		c, err := newConnector(cfg.URL, s)
		if err != nil {
			return nil, errors.Join(err, errors.New("endpoint "+cfg.URL))
		}

		s.endpoints = append(s.endpoints, newEndpoint(cfg, c))
	}

	return s, nil
}

// InstanceID identifies this process towards brokers that need a sender identity.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// Endpoints returns the configured endpoints.
func (s *Service) Endpoints() []*Endpoint {
	return append([]*Endpoint(nil), s.endpoints...)
}

// Run starts one reconnect loop per endpoint and blocks until ctx is cancelled.
// Open connections are closed on return.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	var wg sync.WaitGroup

	for _, endpoint := range s.endpoints {
		wg.Add(1)

		go func(e *Endpoint) {
			defer wg.Done()
			s.reconnectLoop(ctx, e)
		}(endpoint)
	}

	wg.Wait()

	for _, endpoint := range s.endpoints {
		endpoint.disconnect()
	}

	return nil
}

// reconnectLoop connects while disconnected, backs off after failures and polls every loop delay.
func (s *Service) reconnectLoop(ctx context.Context, e *Endpoint) {
	for {
		if !e.IsConnected() {
			if err := s.connect(ctx, e); err != nil {
				if ctx.Err() != nil {
					return
				}

				s.logWarn(logMsgConnectFailed, logAttrEndpoint, e.URL(), logAttrError, err.Error())

				if !sleep(ctx, e.retryDelay) {
					return
				}
			}
		}

		if !sleep(ctx, e.loopDelay) {
			return
		}
	}
}

func (s *Service) connect(ctx context.Context, e *Endpoint) error {
	s.logDebug(logMsgConnecting, logAttrEndpoint, e.URL())

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	conn, err := e.connector.connect(connectCtx, func(payload []byte) {
		s.dispatch(payload)
	})
	if err != nil {
		return err
	}

	e.setConnection(conn)
	s.logInfo(logMsgConnected, logAttrEndpoint, e.URL())

	return nil
}

// WaitUntilConnected polls until an endpoint that allows eventName is connected.
// It fails with ErrWaitTimeout when timeout elapses or ctx is cancelled first. A zero timeout waits for ctx only.
func (s *Service) WaitUntilConnected(ctx context.Context, eventName string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(waitUntilConnectedPollInterval)
	defer ticker.Stop()

	for {
		for _, e := range s.endpoints {
			if e.Allows(eventName) && e.IsConnected() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errors.Join(ErrWaitTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Broadcast sends one frame to every connected endpoint that allows eventName, concurrently.
// It fails with ErrEndpointNotConnected, naming the endpoints, when none of the allowing endpoints is connected.
func (s *Service) Broadcast(ctx context.Context, eventName string, values []string, options BroadcastOptions) error {
	var allowed, connected []*Endpoint

	for _, e := range s.endpoints {
		if !e.Allows(eventName) {
			continue
		}

		allowed = append(allowed, e)

		if e.IsConnected() {
			connected = append(connected, e)
		} else {
			s.logWarn(logMsgEndpointSkipped, logAttrEndpoint, e.URL(), logAttrEventName, eventName)
		}
	}

	if len(allowed) == 0 {
		s.logDebug(logMsgNoEndpointAllows, logAttrEventName, eventName)
		return nil
	}

	if len(connected) == 0 {
		errs := make([]error, 0, len(allowed))
		for _, e := range allowed {
			errs = append(errs, notConnectedError(e.URL()))
		}

		return errors.Join(errs...)
	}

	payload, err := EncodeFrame(Frame{EventName: eventName, Options: options, Values: values})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for _, e := range connected {
		group.Go(func() error {
			return e.send(groupCtx, payload, options)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	s.logDebug(logMsgBroadcast, logAttrEventName, eventName, logAttrValueCount, len(values))

	return nil
}

// RegisterDurable adds a receiver that lives as long as the service.
func (s *Service) RegisterDurable(r Receiver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.durable = append(s.durable, r)
}

// AddEphemeral adds a receiver and returns the function that removes it again.
func (s *Service) AddEphemeral(r Receiver) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.ephemeral = append(s.ephemeral, ephemeralReceiver{id: id, receiver: r})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, er := range s.ephemeral {
			if er.id == id {
				s.ephemeral = append(s.ephemeral[:i:i], s.ephemeral[i+1:]...)
				return
			}
		}
	}
}

// dispatch decodes an inbound payload and hands it to matching receivers, durable ones first.
func (s *Service) dispatch(payload []byte) {
	frame, err := DecodeFrame(payload)
	if err != nil {
		s.logWarn(logMsgFrameDropped, logAttrError, err.Error())
		return
	}

	s.Deliver(frame)
}

// Deliver hands a decoded frame to every receiver whose prefixes match its event name.
func (s *Service) Deliver(frame Frame) {
	s.mu.RLock()
	ctx := s.runCtx
	receivers := make([]Receiver, 0, len(s.durable)+len(s.ephemeral))
	receivers = append(receivers, s.durable...)
	for _, er := range s.ephemeral {
		receivers = append(receivers, er.receiver)
	}
	s.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}

	for _, r := range receivers {
		if matchesPrefix(frame.EventName, r.EventNamePrefixes()) {
			r.Receive(ctx, frame)
		}
	}
}

func matchesPrefix(eventName string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(eventName, prefix) {
			return true
		}
	}

	return false
}

// sleep waits for d and reports false when ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func connectTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
	}

	return defaultConnectTimeout
}
