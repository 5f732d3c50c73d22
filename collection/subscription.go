package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
)

const logMsgHandlerFailed = "collection change handler failed"

// ChangeHandler receives change events of the subscribed collection.
type ChangeHandler func(ctx context.Context, event docstore.ChangeEvent) error

// ChangePredicate gates a ChangeHandler.
type ChangePredicate func(event docstore.ChangeEvent) bool

type registeredHandler struct {
	handler    ChangeHandler
	predicates []ChangePredicate
}

// Subscription attaches handlers to the change events of one collection. The bus subscription for
// an event kind is opened on the first On call for that kind.
type Subscription struct {
	hub          *messagehub.Hub
	databaseName string
	entityName   string
	logger       docstore.Logger

	mu       sync.Mutex
	closed   bool
	handlers map[docstore.ChangeEventKind][]registeredHandler
	bus      map[docstore.ChangeEventKind]*messagehub.Subscription
}

func newSubscription(hub *messagehub.Hub, databaseName, entityName string, logger docstore.Logger) *Subscription {
	return &Subscription{
		hub:          hub,
		databaseName: databaseName,
		entityName:   entityName,
		logger:       logger,
		handlers:     make(map[docstore.ChangeEventKind][]registeredHandler),
		bus:          make(map[docstore.ChangeEventKind]*messagehub.Subscription),
	}
}

// On calls handler for every event of kind on this collection that passes all predicates.
func (s *Subscription) On(kind docstore.ChangeEventKind, handler ChangeHandler, predicates ...ChangePredicate) error {
	if handler == nil {
		return messagehub.ErrNoHandlers
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriptionClosed
	}

	if _, open := s.bus[kind]; !open {
		sub, err := s.hub.Subscribe(
			kind.EventName(),
			messagehub.When(func(event docstore.ChangeEvent) bool {
				return event.Matches(s.databaseName, s.entityName)
			}),
			messagehub.Handle(func(ctx context.Context, event docstore.ChangeEvent) error {
				return s.dispatch(ctx, kind, event)
			}),
		)
		if err != nil {
			return err
		}

		s.bus[kind] = sub
	}

	s.handlers[kind] = append(s.handlers[kind], registeredHandler{handler: handler, predicates: predicates})

	return nil
}

func (s *Subscription) dispatch(ctx context.Context, kind docstore.ChangeEventKind, event docstore.ChangeEvent) error {
	s.mu.Lock()
	handlers := append([]registeredHandler(nil), s.handlers[kind]...)
	s.mu.Unlock()

	var errs []error

	for _, h := range handlers {
		if !h.passes(event) {
			continue
		}

		if err := invokeHandler(ctx, h.handler, event); err != nil {
			if s.logger != nil {
				s.logger.Warn(logMsgHandlerFailed,
					logAttrEventName, event.EventName(),
					logAttrDatabase, s.databaseName,
					logAttrEntity, s.entityName,
					logAttrError, err.Error(),
				)
			}

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// invokeHandler turns a panic of handler into an error so the remaining handlers still run.
func invokeHandler(ctx context.Context, handler ChangeHandler, event docstore.ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()

	return handler(ctx, event)
}

func (h registeredHandler) passes(event docstore.ChangeEvent) bool {
	for _, predicate := range h.predicates {
		if !predicate(event) {
			return false
		}
	}

	return true
}

// Close disposes every bus subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	for kind, sub := range s.bus {
		sub.Close()
		delete(s.bus, kind)
	}

	s.handlers = make(map[docstore.ChangeEventKind][]registeredHandler)
}
