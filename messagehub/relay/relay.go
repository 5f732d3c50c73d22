package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

const (
	clientSendBufferSize = 256
	writeTimeout         = 10 * time.Second
	pingInterval         = 15 * time.Second
	pongTimeout          = 45 * time.Second
)

const (
	logMsgClientConnected    = "relay client connected"
	logMsgClientDisconnected = "relay client disconnected"
	logMsgUpgradeFailed      = "websocket upgrade failed"
	logMsgUnauthorized       = "rejected relay client without valid token"
	logMsgFrameRejected      = "rejected malformed frame"
	logMsgClientTooSlow      = "dropping relay client that cannot keep up"
	logAttrClientID          = "client_id"
	logAttrClientCount       = "client_count"
	logAttrEventName         = "event_name"
	logAttrError             = "error"
)

var ErrServerClosed = errors.New("relay server is closed")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger docstore.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBearerToken makes the server reject handshakes that do not carry "Authorization: Bearer <token>".
func WithBearerToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithRegisterer registers the relay gauges and counters with the given registerer.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(s *Server) {
		s.registerer = registerer
	}
}

// Server fans frames out between websocket clients.
type Server struct {
	upgrader   websocket.Upgrader
	logger     docstore.Logger
	token      string
	registerer prometheus.Registerer

	clientsMu sync.RWMutex
	clients   map[string]*client
	closed    bool

	clientsConnected prometheus.Gauge
	framesRelayed    prometheus.Counter
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewServer creates a relay. Collectors are registered when WithRegisterer is given.
func NewServer(options ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docsync",
			Subsystem: "relay",
			Name:      "clients_connected",
			Help:      "Number of currently connected relay clients",
		}),
		framesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "relay",
			Name:      "frames_relayed_total",
			Help:      "Total frames accepted for fan-out",
		}),
	}

	for _, option := range options {
		option(s)
	}

	if s.registerer != nil {
		s.registerer.MustRegister(s.clientsConnected, s.framesRelayed)
	}

	return s
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	return len(s.clients)
}

// Run blocks until ctx is cancelled, then disconnects every client and refuses new ones.
func (s *Server) Run(ctx context.Context) error {
	<-ctx.Done()

	s.clientsMu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*client)
	s.clientsMu.Unlock()

	for _, c := range clients {
		c.close()
	}

	s.clientsConnected.Set(0)

	return nil
}

// ServeHTTP upgrades the request and serves the client until either side disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && !s.authorized(r) {
		s.logWarn(logMsgUnauthorized)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logWarn(logMsgUpgradeFailed, logAttrError, err.Error())
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBufferSize),
		done: make(chan struct{}),
	}

	if err := s.addClient(c); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		_ = conn.Close()
		return
	}

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")

	return ok && token == s.token
}

func (s *Server) addClient(c *client) error {
	s.clientsMu.Lock()
	if s.closed {
		s.clientsMu.Unlock()
		return ErrServerClosed
	}

	s.clients[c.id] = c
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.clientsConnected.Set(float64(count))
	s.logInfo(logMsgClientConnected, logAttrClientID, c.id, logAttrClientCount, count)

	return nil
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	_, present := s.clients[c.id]
	delete(s.clients, c.id)
	count := len(s.clients)
	s.clientsMu.Unlock()

	c.close()

	if present {
		s.clientsConnected.Set(float64(count))
		s.logInfo(logMsgClientDisconnected, logAttrClientID, c.id, logAttrClientCount, count)
	}
}

func (s *Server) readLoop(c *client) {
	defer s.removeClient(c)

	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// Any inbound traffic proves the client is alive.
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := transport.DecodeFrame(payload)
		if err != nil {
			s.logWarn(logMsgFrameRejected, logAttrClientID, c.id, logAttrError, err.Error())
			continue
		}

		s.framesRelayed.Inc()
		s.fanOut(c, frame, payload)
	}
}

// fanOut queues payload for every client except the sender when the frame asks for except_sender.
// Clients whose queue is full are disconnected rather than blocking everyone else.
func (s *Server) fanOut(sender *client, frame transport.Frame, payload []byte) {
	s.clientsMu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c == sender && frame.Options.ExceptSender {
			continue
		}

		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		case <-c.done:
		default:
			s.logWarn(logMsgClientTooSlow, logAttrClientID, c.id, logAttrEventName, frame.EventName)
			go s.removeClient(c)
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
