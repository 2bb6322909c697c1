package wspool

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer establishes the underlying WebSocket connection. It exists as a
// seam for tests; production tasks use the gorilla dialer.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)
}

// netDialer is the production Dialer backed by gorilla/websocket.
type netDialer struct {
	handshakeTimeout time.Duration
}

func (d netDialer) Dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	return conn, err
}

// client owns one WebSocket connection: dial, read pump, serialized writes,
// graceful close.
type client struct {
	url          string
	header       http.Header
	writeTimeout time.Duration
	dialer       Dialer
	logger       *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan Message
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closed    bool
}

func newClient(spec Spec, dialer Dialer, logger *slog.Logger) *client {
	if logger == nil {
		logger = slog.Default()
	}
	return &client{
		url:          spec.URL,
		header:       spec.Header,
		writeTimeout: spec.WriteTimeout,
		dialer:       dialer,
		logger:       logger,
		messages:     make(chan Message, spec.BufferSize),
		errors:       make(chan error, 1),
		done:         make(chan struct{}),
	}
}

// connect dials the endpoint and starts the read pump.
func (c *client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.url, c.header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Server pings get a pong back within the write deadline.
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(c.writeTimeout),
		)
	})

	go c.readLoop()

	c.logger.Debug("websocket connected")

	return nil
}

// close sends a close frame and tears down the connection. Safe to call
// more than once.
func (c *client) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout),
		)
		return c.conn.Close()
	}

	return nil
}

// terminate drops the connection without a close handshake.
func (c *client) terminate() {
	c.mu.Lock()
	conn := c.conn
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// isConnected returns the current connection state.
func (c *client) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads messages from the WebSocket into the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after close() was called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		msg := Message{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping message")
		}
	}
}
