package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// connState tracks a connection through its lifecycle.
type connState int32

const (
	stateConnecting connState = iota
	stateAuthenticating
	stateSubscribed
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateSubscribed:
		return "subscribed"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one live duplex session. It is owned exclusively by the gateway:
// created during the handshake, destroyed on disconnect. Outbound frames go
// through a bounded send buffer drained by a dedicated writer goroutine, so
// delivery to this connection never blocks a broadcast to others.
type Conn struct {
	id       string
	ws       *websocket.Conn
	send     chan []byte
	identity models.Identity
	logger   *zap.Logger

	writeTimeout time.Duration

	mu    sync.Mutex
	state connState

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, bufferSize int, writeTimeout time.Duration, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:           id,
		ws:           ws,
		send:         make(chan []byte, bufferSize),
		identity:     models.Anonymous(),
		logger:       logger.With(zap.String("conn_id", id)),
		writeTimeout: writeTimeout,
		state:        stateConnecting,
		done:         make(chan struct{}),
	}
}

// SubscriberID implements registry.Subscriber.
func (c *Conn) SubscriberID() string {
	return c.id
}

// Identity returns the identity resolved during the handshake.
func (c *Conn) Identity() models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Conn) setIdentity(id models.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

func (c *Conn) setState(s connState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("Connection state changed",
		zap.String("from", prev.String()),
		zap.String("to", s.String()))
}

// Deliver implements registry.Subscriber. It queues the frame without
// blocking and reports false when the connection is closed or its buffer is
// full.
func (c *Conn) Deliver(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// deliverJSON marshals v and queues it on the connection.
func (c *Conn) deliverJSON(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal outbound frame", zap.Error(err))
		return false
	}
	return c.Deliver(data)
}

// CloseSlow implements registry.Subscriber: teardown after a failed delivery.
func (c *Conn) CloseSlow() {
	c.close()
}

// close makes teardown idempotent across the reader, writer and registry
// paths.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.setState(stateClosed)
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send buffer onto the socket and keeps the connection
// alive with periodic pings. It runs in its own goroutine and exits when the
// connection closes.
func (c *Conn) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
