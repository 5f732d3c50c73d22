package messagehub_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/relay"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

type numberEvent struct {
	Field int `json:"field"`
}

func (numberEvent) EventName() string { return "NumberEvent" }

type broadcastCall struct {
	eventName string
	values    []string
	options   transport.BroadcastOptions
}

// loopbackTransport records broadcasts and delivers them back to its receivers, like a relay echo.
type loopbackTransport struct {
	mu       sync.Mutex
	calls    []broadcastCall
	fail     error
	delivery *transport.Service
}

func newLoopbackTransport(t *testing.T) *loopbackTransport {
	t.Helper()

	svc, err := transport.NewService(nil)
	require.NoError(t, err)

	return &loopbackTransport{delivery: svc}
}

func (l *loopbackTransport) Broadcast(_ context.Context, eventName string, values []string, options transport.BroadcastOptions) error {
	l.mu.Lock()
	if l.fail != nil {
		err := l.fail
		l.mu.Unlock()
		return err
	}
	l.calls = append(l.calls, broadcastCall{eventName: eventName, values: values, options: options})
	l.mu.Unlock()

	l.delivery.Deliver(transport.Frame{EventName: eventName, Options: options, Values: values})

	return nil
}

func (l *loopbackTransport) RegisterDurable(r transport.Receiver) {
	l.delivery.RegisterDurable(r)
}

func (l *loopbackTransport) AddEphemeral(r transport.Receiver) func() {
	return l.delivery.AddEphemeral(r)
}

func (l *loopbackTransport) WaitUntilConnected(ctx context.Context, eventName string, timeout time.Duration) error {
	return l.delivery.WaitUntilConnected(ctx, eventName, timeout)
}

func (l *loopbackTransport) setFailure(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fail = err
}

func (l *loopbackTransport) recorded() []broadcastCall {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]broadcastCall(nil), l.calls...)
}

func newHub(t *testing.T, tr messagehub.Transport, options ...messagehub.Option) *messagehub.Hub {
	t.Helper()

	hub, err := messagehub.NewHub(tr, options...)
	require.NoError(t, err)
	messagehub.RegisterJSON[numberEvent](hub.Registry(), numberEvent{}.EventName())

	return hub
}

func runHub(t *testing.T, hub *messagehub.Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func Test_Hub_CoalescesValuesOfOneKeyIntoOneBatch(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)
	runHub(t, hub)

	// act
	for i := 1; i <= 5; i++ {
		require.NoError(t, hub.Queue(numberEvent{Field: i}, messagehub.Options{SendDelay: 100 * time.Millisecond}))
	}

	// assert
	require.Eventually(t, func() bool { return len(tr.recorded()) == 1 }, 2*time.Second, 10*time.Millisecond)
	call := tr.recorded()[0]
	assert.Equal(t, "NumberEvent", call.eventName)
	assert.Equal(t, []string{`{"field":1}`, `{"field":2}`, `{"field":3}`, `{"field":4}`, `{"field":5}`}, call.values)
	assert.Zero(t, hub.Pending())

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, tr.recorded(), 1, "nothing is sent twice")
}

func Test_Hub_KeepsDifferentOptionsInSeparateBatches(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)

	// act
	require.NoError(t, hub.Queue(numberEvent{Field: 1}, messagehub.Options{}))
	require.NoError(t, hub.Queue(numberEvent{Field: 2}, messagehub.Options{ExceptSender: true}))
	require.NoError(t, hub.Queue(numberEvent{Field: 3}, messagehub.Options{Recipients: []string{"b", "a"}}))
	require.NoError(t, hub.Queue(numberEvent{Field: 4}, messagehub.Options{Recipients: []string{"a", "b"}}))
	require.NoError(t, hub.Flush(context.Background()))

	// assert
	calls := tr.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{`{"field":1}`}, calls[0].values)
	assert.True(t, calls[1].options.ExceptSender)
	assert.Equal(t, []string{`{"field":3}`, `{"field":4}`}, calls[2].values, "recipient order does not split a batch")
}

func Test_Hub_When_TheBroadcastFails(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	tr.setFailure(transport.ErrEndpointNotConnected)
	hub := newHub(t, tr)
	require.NoError(t, hub.Queue(numberEvent{Field: 1}, messagehub.Options{}))

	// act
	err := hub.Flush(context.Background())

	// assert
	assert.ErrorIs(t, err, messagehub.ErrFlushIncomplete)
	assert.Equal(t, 1, hub.Pending())

	tr.setFailure(nil)
	require.NoError(t, hub.Flush(context.Background()))
	assert.Zero(t, hub.Pending())
	assert.Len(t, tr.recorded(), 1)
}

func Test_Hub_QueueEvent_QueuesEveryValueUnderItsOwnName(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)
	events := docstore.NewChangeEvents(docstore.KindModelsInserted, docstore.KindModelInserted, "db", "Invoice", "1")

	// act
	hub.QueueEvent(messagehub.Envelope{Values: []messagehub.Event{events[0], events[1], events[2]}})
	require.NoError(t, hub.Flush(context.Background()))

	// assert
	calls := tr.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "CollectionModelsInsertedEvent", calls[0].eventName)
	assert.Equal(t, "CollectionModelInsertedEvent", calls[1].eventName)
	assert.Equal(t, "CollectionChangedEvent", calls[2].eventName)
}

func Test_Subscription_PredicatesGateDelivery(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)

	var mu sync.Mutex
	received := map[string][]int{}
	record := func(name string) messagehub.SubscriptionOption {
		return messagehub.Handle(func(_ context.Context, e numberEvent) error {
			mu.Lock()
			defer mu.Unlock()
			received[name] = append(received[name], e.Field)
			return nil
		})
	}

	for _, sub := range []struct {
		name  string
		extra []messagehub.SubscriptionOption
	}{
		{name: "three", extra: []messagehub.SubscriptionOption{messagehub.When(func(e numberEvent) bool { return e.Field == 3 })}},
		{name: "five", extra: []messagehub.SubscriptionOption{messagehub.When(func(e numberEvent) bool { return e.Field == 5 })}},
		{name: "all"},
	} {
		s, err := hub.Subscribe("NumberEvent", append(sub.extra, record(sub.name))...)
		require.NoError(t, err)
		t.Cleanup(s.Close)
	}

	// act
	for _, n := range []int{3, 5, 8, 9} {
		require.NoError(t, hub.Queue(numberEvent{Field: n}, messagehub.Options{}))
	}
	require.NoError(t, hub.Flush(context.Background()))

	// assert
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3}, received["three"])
	assert.Equal(t, []int{5}, received["five"])
	assert.Equal(t, []int{3, 5, 8, 9}, received["all"])
}

func Test_Subscription_When_AHandlerFails(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)

	var calls []string
	sub, err := hub.Subscribe("NumberEvent",
		messagehub.WithHandler(func(context.Context, messagehub.Event) error {
			calls = append(calls, "failing")
			return errors.New("boom")
		}),
		messagehub.WithHandler(func(context.Context, messagehub.Event) error {
			panic("worse")
		}),
		messagehub.WithHandler(func(context.Context, messagehub.Event) error {
			calls = append(calls, "healthy")
			return nil
		}),
	)
	require.NoError(t, err)
	defer sub.Close()

	// act
	require.NoError(t, hub.Queue(numberEvent{Field: 1}, messagehub.Options{}))
	require.NoError(t, hub.Queue(numberEvent{Field: 2}, messagehub.Options{}))
	require.NoError(t, hub.Flush(context.Background()))

	// assert
	assert.Equal(t, []string{"failing", "healthy", "failing", "healthy"}, calls)
}

func Test_Subscription_Close_StopsDelivery(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)

	count := 0
	sub, err := hub.Subscribe("NumberEvent", messagehub.WithHandler(func(context.Context, messagehub.Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, hub.Queue(numberEvent{Field: 1}, messagehub.Options{}))
	require.NoError(t, hub.Flush(context.Background()))

	// act
	sub.Close()
	sub.Close()
	require.NoError(t, hub.Queue(numberEvent{Field: 2}, messagehub.Options{}))
	require.NoError(t, hub.Flush(context.Background()))

	// assert
	assert.Equal(t, 1, count)
}

func Test_Subscribe_Rejects(t *testing.T) {
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)

	tests := []struct {
		name      string
		eventName string
		options   []messagehub.SubscriptionOption
		wantErr   error
	}{
		{
			name:      "no handlers",
			eventName: "NumberEvent",
			wantErr:   messagehub.ErrNoHandlers,
		},
		{
			name:      "unknown event",
			eventName: "NobodyKnowsMe",
			options:   []messagehub.SubscriptionOption{messagehub.WithHandler(func(context.Context, messagehub.Event) error { return nil })},
			wantErr:   messagehub.ErrUnknownEvent,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := hub.Subscribe(tc.eventName, tc.options...)

			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func Test_Subscription_DecodesChangeEvents(t *testing.T) {
	// arrange
	tr := newLoopbackTransport(t)
	hub := newHub(t, tr)

	var got []docstore.ChangeEvent
	sub, err := hub.Subscribe(docstore.KindModelDeleted.EventName(),
		messagehub.When(func(e docstore.ChangeEvent) bool { return e.Matches("db", "Invoice") }),
		messagehub.Handle(func(_ context.Context, e docstore.ChangeEvent) error {
			got = append(got, e)
			return nil
		}),
	)
	require.NoError(t, err)
	defer sub.Close()

	// act
	hub.QueueEvent(messagehub.NewEnvelope(
		docstore.ChangeEvent{Kind: docstore.KindModelDeleted, DatabaseName: "db", EntityName: "Invoice", ID: "1"},
		docstore.ChangeEvent{Kind: docstore.KindModelDeleted, DatabaseName: "db", EntityName: "Order", ID: "2"},
	))
	require.NoError(t, hub.Flush(context.Background()))

	// assert
	require.Len(t, got, 1)
	assert.Equal(t, docstore.ChangeEvent{Kind: docstore.KindModelDeleted, DatabaseName: "db", EntityName: "Invoice", ID: "1"}, got[0])
}

func Test_Hub_WaitUntilConnected_When_TheTransportHasNoEndpoint(t *testing.T) {
	// arrange
	hub := newHub(t, newLoopbackTransport(t))

	// act
	err := hub.WaitUntilConnected(context.Background(), numberEvent{}.EventName(), 100*time.Millisecond)

	// assert
	assert.ErrorIs(t, err, transport.ErrWaitTimeout)
}

func Test_Hub_WaitUntilConnected_When_ARelayIsReachable(t *testing.T) {
	// setup
	srv := relay.NewServer()
	httpServer := httptest.NewServer(srv)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()

	// arrange
	svc, err := transport.NewService([]transport.EndpointConfig{{
		URL:                      httpServer.URL,
		ConnectionRetryDelay:     50 * time.Millisecond,
		ConnectionRetryLoopDelay: 10 * time.Millisecond,
	}})
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		httpServer.Close()
	})

	hub := newHub(t, svc)

	// act
	err = hub.WaitUntilConnected(ctx, numberEvent{}.EventName(), 2*time.Second)

	// assert
	assert.NoError(t, err)
}
