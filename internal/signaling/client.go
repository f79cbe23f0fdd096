package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wireLimits bounds a single client connection.
type wireLimits struct {
	// idleTimeout closes the connection when no message or pong arrives
	// within it.
	idleTimeout time.Duration

	// pingInterval is the server ping cadence; must be below idleTimeout.
	pingInterval time.Duration

	// writeTimeout bounds a single websocket write.
	writeTimeout time.Duration

	// maxMessageBytes caps inbound message size. SDP payloads are the
	// largest messages this protocol carries.
	maxMessageBytes int64

	// sendQueue is the outbound buffer size; deliveries beyond it are
	// dropped (fire-and-forget relay, no backpressure onto other peers).
	sendQueue int
}

// client wraps one websocket connection. The read pump feeds the router and
// the write pump owns all writes to the socket.
type client struct {
	id     string
	conn   *websocket.Conn
	router *Router
	log    *slog.Logger
	limits wireLimits

	send chan Envelope
	done chan struct{}
	once sync.Once
}

func newClient(id string, conn *websocket.Conn, router *Router, log *slog.Logger, limits wireLimits) *client {
	return &client{
		id:     id,
		conn:   conn,
		router: router,
		log:    log.With("conn", id),
		limits: limits,
		send:   make(chan Envelope, limits.sendQueue),
		done:   make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

// Enqueue hands an envelope to the write pump. It never blocks: a closed or
// saturated connection reports false and the message is dropped.
func (c *client) Enqueue(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump reads messages from the websocket and hands them to the router.
// It is the only reader of the connection and runs in the HTTP handler's
// goroutine; when it returns the connection is disconnected and cleaned up.
func (c *client) readPump() {
	defer func() {
		c.close()
		c.router.Disconnect(c)
	}()

	c.conn.SetReadLimit(c.limits.maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.limits.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.limits.idleTimeout))
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.limits.idleTimeout))

		c.router.Handle(c, raw)
	}
}

// writePump is the only writer of the connection. It serializes envelopes
// from the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.limits.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.limits.writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.limits.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.limits.writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
