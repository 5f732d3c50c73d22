package transport_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/relay"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

type recordingReceiver struct {
	prefixes []string

	mu     sync.Mutex
	frames []transport.Frame
}

func (r *recordingReceiver) EventNamePrefixes() []string {
	return r.prefixes
}

func (r *recordingReceiver) Receive(_ context.Context, frame transport.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames = append(r.frames, frame)
}

func (r *recordingReceiver) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		names = append(names, f.EventName)
	}

	return names
}

func startRelay(t *testing.T) string {
	t.Helper()

	srv := relay.NewServer()
	httpServer := httptest.NewServer(srv)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		httpServer.Close()
	})

	// http scheme is mapped to ws by the transport
	return httpServer.URL
}

func runService(t *testing.T, configs []transport.EndpointConfig) *transport.Service {
	t.Helper()

	svc, err := transport.NewService(configs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return svc
}

func fastEndpoint(url string) transport.EndpointConfig {
	return transport.EndpointConfig{
		URL:                      url,
		ConnectionRetryDelay:     50 * time.Millisecond,
		ConnectionRetryLoopDelay: 10 * time.Millisecond,
	}
}

func Test_Service_BroadcastsBetweenInstances(t *testing.T) {
	// arrange
	url := startRelay(t)
	sender := runService(t, []transport.EndpointConfig{fastEndpoint(url)})
	listener := runService(t, []transport.EndpointConfig{fastEndpoint(url)})

	received := &recordingReceiver{prefixes: []string{"Collection"}}
	listener.RegisterDurable(received)

	ctx := context.Background()
	require.NoError(t, sender.WaitUntilConnected(ctx, "CollectionChangedEvent", 2*time.Second))
	require.NoError(t, listener.WaitUntilConnected(ctx, "CollectionChangedEvent", 2*time.Second))

	// act
	require.NoError(t, sender.Broadcast(ctx, "OtherEvent", []string{"{}"}, transport.BroadcastOptions{}))
	require.NoError(t, sender.Broadcast(ctx, "CollectionChangedEvent", []string{"{}"}, transport.BroadcastOptions{}))

	// assert
	assert.Eventually(t, func() bool {
		names := received.names()
		return len(names) == 1 && names[0] == "CollectionChangedEvent"
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_Service_When_ExceptSenderIsSet(t *testing.T) {
	// arrange
	url := startRelay(t)
	svc := runService(t, []transport.EndpointConfig{fastEndpoint(url)})

	own := &recordingReceiver{prefixes: []string{""}}
	svc.RegisterDurable(own)

	ctx := context.Background()
	require.NoError(t, svc.WaitUntilConnected(ctx, "E", 2*time.Second))

	// act
	require.NoError(t, svc.Broadcast(ctx, "Hidden", nil, transport.BroadcastOptions{ExceptSender: true}))
	require.NoError(t, svc.Broadcast(ctx, "Echoed", nil, transport.BroadcastOptions{}))

	// assert
	assert.Eventually(t, func() bool {
		names := own.names()
		return len(names) == 1 && names[0] == "Echoed"
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_Service_Broadcast_When_NoAllowedEndpointIsConnected(t *testing.T) {
	// arrange
	svc, err := transport.NewService([]transport.EndpointConfig{{URL: "ws://127.0.0.1:1/hub"}})
	require.NoError(t, err)

	// act
	err = svc.Broadcast(context.Background(), "E", []string{"{}"}, transport.BroadcastOptions{})

	// assert
	assert.ErrorIs(t, err, transport.ErrEndpointNotConnected)
	assert.Contains(t, err.Error(), "ws://127.0.0.1:1/hub")
}

func Test_Service_Broadcast_When_NoEndpointAllowsTheEvent(t *testing.T) {
	svc, err := transport.NewService([]transport.EndpointConfig{{
		URL:           "ws://127.0.0.1:1/hub",
		AllowOutgoing: func(name string) bool { return strings.HasPrefix(name, "Collection") },
	}})
	require.NoError(t, err)

	assert.NoError(t, svc.Broadcast(context.Background(), "PrivateEvent", nil, transport.BroadcastOptions{}))
}

func Test_Service_WaitUntilConnected_When_NothingConnects(t *testing.T) {
	svc, err := transport.NewService([]transport.EndpointConfig{{URL: "ws://127.0.0.1:1/hub"}})
	require.NoError(t, err)

	err = svc.WaitUntilConnected(context.Background(), "E", 150*time.Millisecond)

	assert.ErrorIs(t, err, transport.ErrWaitTimeout)
}

func Test_NewService_When_TheSchemeIsUnsupported(t *testing.T) {
	_, err := transport.NewService([]transport.EndpointConfig{{URL: "ftp://example.org"}})

	assert.ErrorIs(t, err, transport.ErrUnsupportedScheme)
}

func Test_Service_Deliver_RoutesByPrefixAndRemovesEphemeralReceivers(t *testing.T) {
	// arrange
	svc, err := transport.NewService(nil)
	require.NoError(t, err)

	durable := &recordingReceiver{prefixes: []string{"Collection"}}
	ephemeral := &recordingReceiver{prefixes: []string{"CollectionModel", "Ping"}}
	svc.RegisterDurable(durable)
	remove := svc.AddEphemeral(ephemeral)

	// act
	svc.Deliver(transport.Frame{EventName: "CollectionChangedEvent"})
	svc.Deliver(transport.Frame{EventName: "PingEvent"})
	remove()
	svc.Deliver(transport.Frame{EventName: "CollectionModelInsertedEvent"})

	// assert
	assert.Equal(t, []string{"CollectionChangedEvent", "CollectionModelInsertedEvent"}, durable.names())
	assert.Equal(t, []string{"PingEvent"}, ephemeral.names())
}
