package transport

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
)

const (
	natsSubject            = "v1.broadcast_message"
	natsHeaderSender       = "Docsync-Sender"
	natsHeaderExceptSender = "Docsync-Except-Sender"
)

type natsConnector struct {
	url     string
	service *Service
}

func newNATSConnector(rawURL string, s *Service) *natsConnector {
	return &natsConnector{url: rawURL, service: s}
}

func (c *natsConnector) connect(ctx context.Context, onFrame func(payload []byte)) (connection, error) {
	conn := &natsConn{closed: make(chan struct{}), senderID: c.service.instanceID}

	nc, err := nats.Connect(
		c.url,
		nats.Name(c.service.instanceID),
		nats.NoReconnect(),
		nats.Timeout(connectTimeout(ctx)),
		nats.ClosedHandler(func(*nats.Conn) { conn.markClosed() }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.service.logInfo(logMsgConnectionLost, logAttrEndpoint, c.url, logAttrError, err.Error())
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	conn.nc = nc

	_, err = nc.Subscribe(natsSubject, func(msg *nats.Msg) {
		if isOwnExcludedEcho(msg, conn.senderID) {
			return
		}

		onFrame(msg.Data)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	if err := nc.FlushWithContext(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	return conn, nil
}

type natsConn struct {
	nc        *nats.Conn
	senderID  string
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *natsConn) send(_ context.Context, payload []byte, options BroadcastOptions) error {
	return c.nc.PublishMsg(newNATSMessage(payload, c.senderID, options))
}

// newNATSMessage stamps payload with the sender id, and with the except-sender flag when set.
func newNATSMessage(payload []byte, senderID string, options BroadcastOptions) *nats.Msg {
	msg := nats.NewMsg(natsSubject)
	msg.Data = payload
	msg.Header.Set(natsHeaderSender, senderID)

	if options.ExceptSender {
		msg.Header.Set(natsHeaderExceptSender, "true")
	}

	return msg
}

// isOwnExcludedEcho reports a message that senderID published with the except-sender flag.
// The subject fans out to every subscriber, the publisher included, so the receiver drops these.
func isOwnExcludedEcho(msg *nats.Msg, senderID string) bool {
	return msg.Header.Get(natsHeaderExceptSender) == "true" && msg.Header.Get(natsHeaderSender) == senderID
}

func (c *natsConn) done() <-chan struct{} {
	return c.closed
}

func (c *natsConn) close() {
	c.nc.Close()
	c.markClosed()
}

func (c *natsConn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}
