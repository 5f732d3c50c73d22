package transport

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	websocketSendBufferSize = 64
	websocketWriteTimeout   = 10 * time.Second
	websocketPingInterval   = 15 * time.Second
	websocketPongTimeout    = 45 * time.Second
)

type websocketConnector struct {
	url     string
	dialer  *websocket.Dialer
	header  http.Header
	service *Service
}

func newWebsocketConnector(u *url.URL, s *Service) *websocketConnector {
	return &websocketConnector{
		url:     u.String(),
		dialer:  websocket.DefaultDialer,
		header:  s.header.Clone(),
		service: s,
	}
}

func (c *websocketConnector) connect(ctx context.Context, onFrame func(payload []byte)) (connection, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, err
	}

	handleCtx, handleCancel := context.WithCancel(context.Background())

	conn := &websocketConn{
		ws:           ws,
		sendQueue:    make(chan []byte, websocketSendBufferSize),
		handleCtx:    handleCtx,
		handleCancel: handleCancel,
	}

	ws.SetReadDeadline(time.Now().Add(websocketPongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(websocketPongTimeout))
	})

	go conn.writeLoop(c.service)
	go conn.readLoop(c.service, onFrame)

	return conn, nil
}

// websocketConn owns one gorilla connection. Writes go through a single writer goroutine.
type websocketConn struct {
	ws           *websocket.Conn
	sendQueue    chan []byte
	handleCtx    context.Context
	handleCancel context.CancelFunc
}

func (c *websocketConn) send(ctx context.Context, payload []byte, _ BroadcastOptions) error {
	select {
	case <-c.handleCtx.Done():
		return ErrEndpointNotConnected
	default:
	}

	select {
	case c.sendQueue <- payload:
		return nil
	case <-c.handleCtx.Done():
		return ErrEndpointNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *websocketConn) done() <-chan struct{} {
	return c.handleCtx.Done()
}

func (c *websocketConn) close() {
	c.handleCancel()
}

func (c *websocketConn) writeLoop(s *Service) {
	defer c.ws.Close()
	defer c.handleCancel()

	ping := time.NewTicker(websocketPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.handleCtx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-c.sendQueue:
			c.ws.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logWarn(logMsgWriteFailed, logAttrError, err.Error())
				return
			}

		case <-ping.C:
			c.ws.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *websocketConn) readLoop(s *Service, onFrame func(payload []byte)) {
	defer c.handleCancel()

	for {
		messageType, payload, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.handleCtx.Done():
			default:
				s.logInfo(logMsgConnectionLost, logAttrError, err.Error())
			}

			return
		}

		if messageType == websocket.TextMessage {
			onFrame(payload)
		}
	}
}
