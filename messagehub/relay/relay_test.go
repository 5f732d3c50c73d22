package relay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/relay"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

func startRelay(t *testing.T, options ...relay.Option) (*relay.Server, string) {
	t.Helper()

	srv := relay.NewServer(options...)
	httpServer := httptest.NewServer(srv)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		httpServer.Close()
	})

	return srv, "ws" + strings.TrimPrefix(httpServer.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func waitForClients(t *testing.T, srv *relay.Server, n int) {
	t.Helper()

	require.Eventually(t, func() bool { return srv.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func send(t *testing.T, conn *websocket.Conn, frame transport.Frame) {
	t.Helper()

	payload, err := transport.EncodeFrame(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func receive(t *testing.T, conn *websocket.Conn) transport.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	frame, err := transport.DecodeFrame(payload)
	require.NoError(t, err)

	return frame
}

func Test_Relay_ForwardsFramesToAllClients(t *testing.T) {
	// arrange
	srv, url := startRelay(t)
	sender := dial(t, url, nil)
	other := dial(t, url, nil)
	waitForClients(t, srv, 2)

	// act
	send(t, sender, transport.Frame{EventName: "PingEvent", Values: []string{`{"n":1}`}})

	// assert
	assert.Equal(t, []string{`{"n":1}`}, receive(t, other).Values)
	assert.Equal(t, "PingEvent", receive(t, sender).EventName)
}

func Test_Relay_When_ExceptSenderIsSet(t *testing.T) {
	// arrange
	srv, url := startRelay(t)
	sender := dial(t, url, nil)
	other := dial(t, url, nil)
	waitForClients(t, srv, 2)

	// act
	send(t, sender, transport.Frame{EventName: "First", Options: transport.BroadcastOptions{ExceptSender: true}})
	send(t, sender, transport.Frame{EventName: "Second"})

	// assert
	assert.Equal(t, "First", receive(t, other).EventName)
	assert.Equal(t, "Second", receive(t, other).EventName)
	assert.Equal(t, "Second", receive(t, sender).EventName, "the sender only sees the frame without except_sender")
}

func Test_Relay_DropsMalformedFrames(t *testing.T) {
	// arrange
	srv, url := startRelay(t)
	sender := dial(t, url, nil)
	other := dial(t, url, nil)
	waitForClients(t, srv, 2)

	// act
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`["v1:broadcast_message","X",{},2,"only-one"]`)))
	send(t, sender, transport.Frame{EventName: "Valid"})

	// assert
	assert.Equal(t, "Valid", receive(t, other).EventName)
}

func Test_Relay_When_TheBearerTokenIsMissing(t *testing.T) {
	_, url := startRelay(t, relay.WithBearerToken("secret"))

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	dial(t, url, header)
}

func Test_Relay_TracksConnectedClients(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	srv, url := startRelay(t, relay.WithRegisterer(registry))

	// act
	first := dial(t, url, nil)
	dial(t, url, nil)
	waitForClients(t, srv, 2)

	// assert
	assert.Equal(t, 1, testutil.CollectAndCount(registry, "docsync_relay_clients_connected"))

	require.NoError(t, first.Close())
	waitForClients(t, srv, 1)
}
