package messagehub

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

// Predicate gates delivery. All predicates of a subscription must pass.
type Predicate func(Event) bool

// Handler consumes a delivered event. Errors are logged and do not stop other handlers.
type Handler func(ctx context.Context, event Event) error

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*Subscription)

// WithPredicate adds a predicate.
func WithPredicate(p Predicate) SubscriptionOption {
	return func(s *Subscription) {
		s.predicates = append(s.predicates, p)
	}
}

// WithHandler adds a handler.
func WithHandler(h Handler) SubscriptionOption {
	return func(s *Subscription) {
		s.handlers = append(s.handlers, h)
	}
}

// Durable registers the subscription for the lifetime of the transport. Close is then a no-op.
func Durable() SubscriptionOption {
	return func(s *Subscription) {
		s.durable = true
	}
}

// When adds a typed predicate. Events of another type never pass it.
func When[E Event](p func(E) bool) SubscriptionOption {
	return WithPredicate(func(event Event) bool {
		typed, ok := event.(E)
		return ok && p(typed)
	})
}

// Handle adds a typed handler. Events of another type are ignored.
func Handle[E Event](h func(ctx context.Context, event E) error) SubscriptionOption {
	return WithHandler(func(ctx context.Context, event Event) error {
		typed, ok := event.(E)
		if !ok {
			return nil
		}

		return h(ctx, typed)
	})
}

// Subscription receives batches for one event name.
type Subscription struct {
	id         string
	eventName  string
	hub        *Hub
	predicates []Predicate
	handlers   []Handler
	durable    bool

	closeOnce sync.Once
	remove    func()
}

// Subscribe registers a subscription for eventName with the transport.
func (h *Hub) Subscribe(eventName string, options ...SubscriptionOption) (*Subscription, error) {
	s := &Subscription{
		id:        uuid.NewString(),
		eventName: eventName,
		hub:       h,
	}

	for _, option := range options {
		option(s)
	}

	if len(s.handlers) == 0 {
		return nil, ErrNoHandlers
	}

	if !h.registry.Knows(eventName) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, eventName)
	}

	if s.durable {
		h.transport.RegisterDurable(s)
	} else {
		s.remove = h.transport.AddEphemeral(s)
	}

	return s, nil
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string {
	return s.id
}

// EventNamePrefixes implements transport.Receiver.
func (s *Subscription) EventNamePrefixes() []string {
	return []string{s.eventName}
}

// Receive implements transport.Receiver. Prefix routing is coarse, so the name is checked exactly here.
func (s *Subscription) Receive(ctx context.Context, frame transport.Frame) {
	if frame.EventName != s.eventName {
		return
	}

	for _, raw := range frame.Values {
		event, err := s.hub.registry.Decode(frame.EventName, []byte(raw))
		if err != nil {
			s.hub.logWarn(logMsgDecodeFailed, logAttrSubscriptionID, s.id, logAttrEventName, frame.EventName, logAttrError, err.Error())
			continue
		}

		if !s.passes(event) {
			continue
		}

		for _, handler := range s.handlers {
			s.invoke(ctx, handler, event)
		}
	}
}

func (s *Subscription) passes(event Event) bool {
	for _, predicate := range s.predicates {
		if !predicate(event) {
			return false
		}
	}

	return true
}

func (s *Subscription) invoke(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.hub.logError(logMsgHandlerFailed, logAttrSubscriptionID, s.id, logAttrEventName, s.eventName, logAttrError, fmt.Sprint(r))
		}
	}()

	if err := handler(ctx, event); err != nil {
		s.hub.logWarn(logMsgHandlerFailed, logAttrSubscriptionID, s.id, logAttrEventName, s.eventName, logAttrError, err.Error())
	}
}

// Close unsubscribes an ephemeral subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.remove != nil {
			s.remove()
		}
	})
}
