package messagehub

import (
	"errors"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decoder turns one serialized value into an Event.
type Decoder func(raw []byte) (Event, error)

// Registry maps event names to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry returns a registry that already decodes every docstore change event kind.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}

	for _, kind := range docstore.ChangeEventKinds() {
		name := kind.EventName()
		r.Register(name, func(raw []byte) (Event, error) {
			return docstore.DecodeChangeEvent(name, raw)
		})
	}

	return r
}

// Register sets the decoder for name, replacing any previous one.
func (r *Registry) Register(name string, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders[name] = decoder
}

// RegisterJSON registers a decoder that unmarshals values into E.
func RegisterJSON[E Event](r *Registry, name string) {
	r.Register(name, func(raw []byte) (Event, error) {
		var event E
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, err
		}

		return event, nil
	})
}

// Knows reports whether a decoder is registered for name.
func (r *Registry) Knows(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.decoders[name]

	return ok
}

// Decode decodes raw with the decoder registered for name.
func (r *Registry) Decode(name string, raw []byte) (Event, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	event, err := decoder(raw)
	if err != nil {
		return nil, errors.Join(ErrDecodingEventFailed, err)
	}

	return event, nil
}
