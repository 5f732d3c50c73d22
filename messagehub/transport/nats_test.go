package transport

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewNATSMessage_StampsTheSender(t *testing.T) {
	tests := []struct {
		name         string
		options      BroadcastOptions
		exceptSender string
	}{
		{name: "plain broadcast", options: BroadcastOptions{}, exceptSender: ""},
		{name: "except sender", options: BroadcastOptions{ExceptSender: true}, exceptSender: "true"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			msg := newNATSMessage([]byte("frame"), "instance-1", tc.options)

			// assert
			assert.Equal(t, natsSubject, msg.Subject)
			assert.Equal(t, []byte("frame"), msg.Data)
			assert.Equal(t, "instance-1", msg.Header.Get(natsHeaderSender))
			assert.Equal(t, tc.exceptSender, msg.Header.Get(natsHeaderExceptSender))
		})
	}
}

func Test_IsOwnExcludedEcho(t *testing.T) {
	tests := []struct {
		name     string
		msg      *nats.Msg
		receiver string
		dropped  bool
	}{
		{
			name:     "own message with except sender is dropped",
			msg:      newNATSMessage(nil, "instance-1", BroadcastOptions{ExceptSender: true}),
			receiver: "instance-1",
			dropped:  true,
		},
		{
			name:     "own message without except sender is echoed",
			msg:      newNATSMessage(nil, "instance-1", BroadcastOptions{}),
			receiver: "instance-1",
		},
		{
			name:     "foreign message with except sender is delivered",
			msg:      newNATSMessage(nil, "instance-2", BroadcastOptions{ExceptSender: true}),
			receiver: "instance-1",
		},
		{
			name:     "message without headers is delivered",
			msg:      &nats.Msg{Subject: natsSubject, Data: []byte("frame")},
			receiver: "instance-1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.dropped, isOwnExcludedEcho(tc.msg, tc.receiver))
		})
	}
}

func Test_NewConnector_When_TheSchemeIsNATS(t *testing.T) {
	// setup
	svc, err := NewService(nil)
	require.NoError(t, err)

	for _, rawURL := range []string{"nats://127.0.0.1:4222", "tls://127.0.0.1:4222"} {
		// act
		c, err := newConnector(rawURL, svc)

		// assert
		require.NoError(t, err)
		assert.IsType(t, &natsConnector{}, c)
	}
}

func Test_NATSConnector_When_NoServerListens_Then_ConnectFails(t *testing.T) {
	// setup
	svc, err := NewService(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// act
	conn, err := newNATSConnector("nats://127.0.0.1:1", svc).connect(ctx, func([]byte) {})

	// assert
	assert.Error(t, err)
	assert.Nil(t, conn)
}
