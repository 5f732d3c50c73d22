package messagehub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

const defaultIdleInterval = time.Second

const (
	logMsgQueued          = "queued event"
	logMsgFlushed         = "flushed event batch"
	logMsgFlushFailed     = "flushing event batch failed, keeping it queued"
	logMsgEncodeFailed    = "encoding event failed, dropping it"
	logMsgDecodeFailed    = "decoding received event failed"
	logMsgHandlerFailed   = "event handler failed"
	logAttrEventName      = "event_name"
	logAttrBatchSize      = "batch_size"
	logAttrError          = "error"
	logAttrSubscriptionID = "subscription_id"
)

// Transport is what the hub needs from the transport service. *transport.Service satisfies it.
type Transport interface {
	Broadcast(ctx context.Context, eventName string, values []string, options transport.BroadcastOptions) error
	RegisterDurable(r transport.Receiver)
	AddEphemeral(r transport.Receiver) (remove func())
	WaitUntilConnected(ctx context.Context, eventName string, timeout time.Duration) error
}

type queueKey struct {
	eventName string
	options   string
}

type queuedValue struct {
	value    string
	queuedAt time.Time
}

type queueEntry struct {
	seq       uint64
	eventName string
	options   Options
	values    []queuedValue
	notBefore time.Time
}

// deadline is when the oldest value's delay elapses. Retries after a failed flush wait for notBefore.
func (e *queueEntry) deadline() time.Time {
	due := e.values[0].queuedAt.Add(e.options.SendDelay)
	if due.Before(e.notBefore) {
		return e.notBefore
	}

	return due
}

type flushBatch struct {
	key       queueKey
	seq       uint64
	eventName string
	options   Options
	values    []string
}

// Hub is the event bus.
type Hub struct {
	transport    Transport
	registry     *Registry
	logger       docstore.Logger
	defaultDelay time.Duration
	idleInterval time.Duration
	now          func() time.Time

	flushMu sync.Mutex

	mu      sync.Mutex
	queue   map[queueKey]*queueEntry
	nextSeq uint64
	wake    chan struct{}
}

// NewHub creates a hub on top of t.
func NewHub(t Transport, options ...Option) (*Hub, error) {
	if t == nil {
		return nil, ErrNilTransport
	}

	h := &Hub{
		transport:    t,
		registry:     NewRegistry(),
		defaultDelay: DefaultSendDelay,
		idleInterval: defaultIdleInterval,
		now:          time.Now,
		queue:        make(map[queueKey]*queueEntry),
		wake:         make(chan struct{}, 1),
	}

	for _, option := range options {
		if err := option(h); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Registry returns the decoder registry used for incoming values.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// QueueEvent queues every value of the envelope individually, keyed by the value's event name.
// Values that cannot be encoded are logged and dropped.
func (h *Hub) QueueEvent(envelope Envelope) {
	options := Options{Recipients: envelope.Recipients, SendDelay: envelope.SendDelay}

	for _, value := range envelope.Values {
		if err := h.Queue(value, options); err != nil {
			h.logError(logMsgEncodeFailed, logAttrEventName, value.EventName(), logAttrError, err.Error())
		}
	}
}

// Queue serializes event and adds it to the batch for its (event name, options) key.
func (h *Hub) Queue(event Event, options Options) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return errors.Join(ErrEncodingEventFailed, err)
	}

	if options.SendDelay <= 0 {
		options.SendDelay = h.defaultDelay
	}

	name := event.EventName()
	key := queueKey{eventName: name, options: options.key()}

	h.mu.Lock()
	entry, ok := h.queue[key]
	if !ok {
		h.nextSeq++
		entry = &queueEntry{seq: h.nextSeq, eventName: name, options: options}
		h.queue[key] = entry
	}
	entry.values = append(entry.values, queuedValue{value: string(raw), queuedAt: h.now()})
	h.mu.Unlock()

	h.logDebug(logMsgQueued, logAttrEventName, name)

	select {
	case h.wake <- struct{}{}:
	default:
	}

	return nil
}

// WaitUntilConnected blocks until the transport can deliver eventName, or fails once timeout elapses.
func (h *Hub) WaitUntilConnected(ctx context.Context, eventName string, timeout time.Duration) error {
	return h.transport.WaitUntilConnected(ctx, eventName, timeout)
}

// Pending returns the number of queued values across all keys.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, entry := range h.queue {
		n += len(entry.values)
	}

	return n
}

// Run flushes matured batches until ctx is cancelled. It sleeps for the idle interval when
// nothing is queued, otherwise until the nearest deadline, and wakes early on every Queue.
func (h *Hub) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.wake:
		case <-timer.C:
		}

		next := h.flushDue(ctx, false)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)
	}
}

// Flush broadcasts every queued batch now, regardless of its delay. It returns the first error
// and leaves failed batches queued.
func (h *Hub) Flush(ctx context.Context) error {
	h.flushDue(ctx, true)

	var err error
	h.mu.Lock()
	if len(h.queue) > 0 {
		err = ErrFlushIncomplete
	}
	h.mu.Unlock()

	return err
}

// flushDue broadcasts all batches whose deadline has passed and returns the wait until the next one.
// The queue lock is not held while broadcasting.
func (h *Hub) flushDue(ctx context.Context, all bool) time.Duration {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	now := h.now()

	h.mu.Lock()
	batches := make([]flushBatch, 0, len(h.queue))
	for key, entry := range h.queue {
		if !all && entry.deadline().After(now) {
			continue
		}

		values := make([]string, len(entry.values))
		for i, v := range entry.values {
			values[i] = v.value
		}

		batches = append(batches, flushBatch{key: key, seq: entry.seq, eventName: entry.eventName, options: entry.options, values: values})
	}
	h.mu.Unlock()

	sort.Slice(batches, func(i, j int) bool { return batches[i].seq < batches[j].seq })

	for _, batch := range batches {
		err := h.transport.Broadcast(ctx, batch.eventName, batch.values, batch.options.broadcastOptions())
		h.settle(batch, err)
	}

	return h.nextWait()
}

// settle removes the flushed values from their entry. Values queued during the broadcast stay and start a new window.
func (h *Hub) settle(batch flushBatch, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.queue[batch.key]
	if !ok {
		return
	}

	if err != nil {
		entry.notBefore = h.now().Add(h.idleInterval)
		h.logWarn(logMsgFlushFailed, logAttrEventName, batch.eventName, logAttrBatchSize, len(batch.values), logAttrError, err.Error())

		return
	}

	entry.values = entry.values[len(batch.values):]
	entry.notBefore = time.Time{}

	if len(entry.values) == 0 {
		delete(h.queue, batch.key)
	}

	h.logDebug(logMsgFlushed, logAttrEventName, batch.eventName, logAttrBatchSize, len(batch.values))
}

func (h *Hub) nextWait() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.queue) == 0 {
		return h.idleInterval
	}

	now := h.now()
	wait := h.idleInterval

	for _, entry := range h.queue {
		if d := entry.deadline().Sub(now); d < wait {
			wait = d
		}
	}

	if wait < 0 {
		wait = 0
	}

	return wait
}
