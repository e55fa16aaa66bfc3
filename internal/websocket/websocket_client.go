// Package websocket provides a long-lived WebSocket client for push-channel connections.
//
// The client owns a single connection for its whole lifetime: it dials in the
// background, hands every inbound frame to a caller supplied Handler on one read
// goroutine, keeps the connection alive with periodic pings and releases all
// resources on Close. Frames are processed strictly in arrival order and the
// Handler is never invoked concurrently with itself.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// defaultPingPeriod defines the default interval for sending keepalive pings.
	defaultPingPeriod = 25 * time.Second

	// defaultSendTimeout defines the default timeout for WebSocket write operations.
	defaultSendTimeout = 5 * time.Second

	// defaultReadLimit defines the maximum size of incoming WebSocket messages.
	defaultReadLimit = 1 << 20 // 1MB

	// defaultHandshakeTimeout defines the maximum time allowed for WebSocket handshake.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultBufferSize is the capacity of the delivery channel.
	defaultBufferSize = 1000

	// closeWaitTimeout bounds how long Close waits for goroutines to finish.
	closeWaitTimeout = 5 * time.Second
)

// Common errors returned by the WebSocket client
var (
	// ErrClientShuttingDown indicates that the client is in the process of shutting down.
	ErrClientShuttingDown = errors.New("client is shutting down")

	// ErrInvalidEndpoint indicates the endpoint cannot be dialled.
	ErrInvalidEndpoint = errors.New("invalid websocket endpoint")

	// ErrNotConnected is returned by Send before the connection is established.
	ErrNotConnected = errors.New("websocket not connected")
)

// Config defines settings for the WebSocket client.
type Config[T any] struct {
	// Endpoint is the ws:// or wss:// URL to connect to.
	// Required: This field must be provided and non-empty.
	Endpoint string

	// Handler is called for each incoming text or binary frame on the read
	// goroutine. Values pushed to out are delivered through Messages. The
	// handler must stop sending once ctx is done.
	// Required: This field must be provided and non-nil.
	Handler func(ctx context.Context, data []byte, out chan<- T) error

	// Replier, when set, sees each incoming frame before Handler. A non-nil
	// return is written back to the server as a text frame.
	Replier func(data []byte) []byte

	// TLSInsecureSkip disables TLS certificate verification.
	TLSInsecureSkip bool

	// PingPeriod is the interval between keepalive pings.
	PingPeriod time.Duration

	// PingMessage, when set, is sent as a text frame instead of a WebSocket
	// ping control frame. Protocols layered on top (Engine.IO) ping this way.
	PingMessage []byte

	// ReadTimeout fails the connection when no frame arrives within the
	// duration. Zero disables the deadline.
	ReadTimeout time.Duration

	// SendTimeout is the maximum time allowed for WebSocket write operations.
	SendTimeout time.Duration

	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration

	// BufferSize is the capacity of the delivery channel.
	BufferSize int

	// Header carries extra request headers for the opening handshake.
	Header http.Header

	// SubscriptionMessages contains messages to send immediately after connection.
	SubscriptionMessages [][]byte
}

// Client wraps a websocket.Conn with lifecycle and message handling logic.
type Client[T any] struct {
	// connMu guards conn and connClosed.
	connMu     sync.Mutex
	conn       *websocket.Conn
	connClosed bool

	// writeMu serialises writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// out delivers processed values to consumers.
	out chan T

	// connected is closed once the connection is established.
	connected chan struct{}

	// disconnect signals when the WebSocket connection is lost.
	disconnect chan struct{}

	// errChan reports fatal errors that cause connection termination.
	errChan chan error

	cfg    *Config[T]
	ctx    context.Context
	cancel context.CancelFunc

	// once ensures Close() is only executed once.
	once      sync.Once
	closeOnce sync.Once

	// wg coordinates goroutine shutdown.
	wg sync.WaitGroup
}

// NewWebsocketClient validates cfg and starts connecting in the background.
//
// Configuration problems, including an endpoint that is not an absolute ws or
// wss URL, are reported synchronously. The dial itself happens asynchronously:
// the function returns as soon as the connection attempt has been issued. A
// failed dial is reported on ErrChan and closes Messages.
func NewWebsocketClient[T any](ctx context.Context, cfg Config[T]) (*Client[T], error) {
	// Validate required configuration fields
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint URL is required", ErrInvalidEndpoint)
	}
	if err := ValidateEndpoint(cfg.Endpoint); err != nil {
		return nil, err
	}
	if cfg.Handler == nil {
		return nil, errors.New("message handler is required")
	}

	// Apply defaults for optional fields
	if cfg.SubscriptionMessages == nil {
		cfg.SubscriptionMessages = [][]byte{}
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	// Create cancellable context for client lifecycle
	ctx, cancel := context.WithCancel(ctx)

	client := &Client[T]{
		cfg:        &cfg,
		ctx:        ctx,
		cancel:     cancel,
		connected:  make(chan struct{}),
		disconnect: make(chan struct{}),
		errChan:    make(chan error, 1),
		out:        make(chan T, cfg.BufferSize),
	}

	client.wg.Add(2)
	go func() {
		defer client.wg.Done()
		client.run()
	}()
	go func() {
		defer client.wg.Done()
		client.shutdownListener()
	}()

	return client, nil
}

// ValidateEndpoint checks that endpoint is an absolute ws or wss URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

// run dials, sends subscription messages and then becomes the read loop.
func (c *Client[T]) run() {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "run").
		Logger()

	logger.Debug().Msg("starting WebSocket client")

	conn, err := c.dial(c.ctx)
	if err != nil {
		c.finish(fmt.Errorf("dial failed: %w", err))
		return
	}

	c.connMu.Lock()
	if c.connClosed {
		c.connMu.Unlock()
		conn.Close()
		c.finish(ErrClientShuttingDown)
		return
	}
	c.conn = conn
	c.connMu.Unlock()

	// Configure connection parameters
	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(appData string) error {
		if c.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				logger.Warn().Err(err).Msg("failed to set read deadline in pong handler")
			}
		}
		return nil
	})

	// Send initial subscription messages
	for _, msg := range c.cfg.SubscriptionMessages {
		if err := c.Send(msg); err != nil {
			logger.Error().Err(err).Msg("subscription error")
			c.finish(err)
			return
		}
	}

	close(c.connected)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pingLoop()
	}()

	c.readLoop(conn)
}

// readLoop continuously reads messages from the WebSocket connection.
//
// This method runs on the run goroutine and is the only caller of Handler,
// which keeps delivery serialized and in arrival order.
func (c *Client[T]) readLoop(conn *websocket.Conn) {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "readLoop").
		Logger()

	logger.Debug().Msg("starting read loop")

	var exitErr error
	defer func() {
		logger.Debug().Msg("read loop exiting")
		c.finish(exitErr)
	}()

	for {
		if c.ctx.Err() != nil {
			logger.Debug().Msg("context cancelled, exiting read loop")
			return
		}

		if c.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				logger.Warn().Err(err).Msg("failed to set read deadline")
			}
		}

		// Read message from WebSocket
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				// Closed by us; not a failure.
				return
			}

			// Categorize and log different error types
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info().Err(err).Msg("websocket closed normally")
			} else if websocket.IsUnexpectedCloseError(err) {
				logger.Warn().Err(err).Msg("unexpected websocket closure")
			} else {
				logger.Error().Err(err).Msg("read error")
			}
			exitErr = err
			return
		}

		logger.Debug().
			Int("messageType", messageType).
			Int("bytes", len(data)).
			Msg("received message")

		c.reply(data)
		c.handle(data)
	}
}

// reply answers frames the Replier claims. A failed write is left to the
// read loop, which sees the broken connection on its next read.
func (c *Client[T]) reply(data []byte) {
	if c.cfg.Replier == nil {
		return
	}
	msg := c.cfg.Replier(data)
	if msg == nil {
		return
	}
	if err := c.Send(msg); err != nil {
		log.Warn().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("failed to send reply")
	}
}

// handle runs Handler on one frame, recovering from panics so a single bad
// frame cannot take the connection down.
func (c *Client[T]) handle(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("recover", r).Str("endpoint", c.cfg.Endpoint).Msg("panic in message handler")
		}
	}()

	if err := c.cfg.Handler(c.ctx, data, c.out); err != nil {
		log.Debug().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("error handling message")
	}
}

// finish reports err, closes the delivery and disconnect channels and cancels
// the client context. It runs exactly once, from the run goroutine.
func (c *Client[T]) finish(err error) {
	if err == nil {
		err = ErrClientShuttingDown
	}

	// Try to send error if channel not full
	select {
	case c.errChan <- err:
	default:
		log.Debug().Err(err).Msg("error channel full, dropping error")
	}

	close(c.out)
	close(c.disconnect)

	// Release the ping loop and shutdown listener.
	c.cancel()
}

// pingLoop sends periodic pings to keep the connection alive.
func (c *Client[T]) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "pingLoop").
		Logger()

	logger.Debug().Dur("period", c.cfg.PingPeriod).Msg("starting ping loop")
	defer logger.Debug().Msg("ping loop exiting")

	for {
		select {
		case <-ticker.C:
			var err error
			if c.cfg.PingMessage != nil {
				err = c.Send(c.cfg.PingMessage)
			} else {
				err = c.write(websocket.PingMessage, nil)
			}
			if err != nil {
				logger.Warn().Err(err).Msg("ping error")
			} else {
				logger.Debug().Msg("ping sent")
			}
		case <-c.disconnect:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// Send writes a text frame.
func (c *Client[T]) Send(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *Client[T]) write(messageType int, data []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

// shutdownListener waits for context cancellation and closes the connection,
// which unblocks the read loop.
func (c *Client[T]) shutdownListener() {
	<-c.ctx.Done()
	log.Debug().Str("endpoint", c.cfg.Endpoint).Msg("context cancelled, shutting down WebSocket client")
	c.closeConn()
}

// closeConn sends a close frame and closes the underlying connection once.
func (c *Client[T]) closeConn() {
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		c.connClosed = true
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		logger := log.With().
			Str("endpoint", c.cfg.Endpoint).
			Str("component", "close").
			Logger()

		// Send close frame with normal closure code
		if err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); err != nil {
			logger.Debug().Err(err).Msg("failed to send close frame")
		}

		// Close underlying connection
		if err := conn.Close(); err != nil {
			logger.Debug().Err(err).Msg("error closing websocket connection")
		}
	})
}

// Close gracefully shuts down the client.
//
// It cancels the client context, closes the connection and waits for every
// goroutine to finish. It can be called multiple times safely.
func (c *Client[T]) Close() {
	c.once.Do(func() {
		logger := log.With().
			Str("endpoint", c.cfg.Endpoint).
			Str("component", "close").
			Logger()

		logger.Debug().Msg("initiating graceful shutdown")

		c.cancel()
		c.closeConn()

		// Wait for all goroutines to complete
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			logger.Debug().Msg("all goroutines completed")
		case <-time.After(closeWaitTimeout):
			logger.Warn().Msg("timeout waiting for goroutines to complete")
		}

		logger.Debug().Msg("shutdown complete")
	})
}

// dial establishes a WebSocket connection.
func (c *Client[T]) dial(ctx context.Context) (*websocket.Conn, error) {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Bool("tlsInsecureSkip", c.cfg.TLSInsecureSkip).
		Dur("handshakeTimeout", c.cfg.HandshakeTimeout).
		Logger()

	logger.Debug().Msg("attempting websocket connection")

	// Configure WebSocket dialer
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.TLSInsecureSkip},
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	header := c.cfg.Header
	if header == nil {
		header = make(http.Header)
	}

	// Establish connection
	conn, resp, err := dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		// Log detailed error information
		if resp != nil {
			logger.Error().
				Err(err).
				Int("statusCode", resp.StatusCode).
				Str("status", resp.Status).
				Msg("connection failed")
		} else {
			logger.Error().Err(err).Msg("connection failed")
		}
		return nil, err
	}

	logger.Info().Msg("websocket connection established")
	return conn, nil
}

// Messages returns the channel on which handler output is delivered. It is
// closed when the connection ends for any reason.
func (c *Client[T]) Messages() <-chan T {
	return c.out
}

// Connected returns a channel that is closed once the connection is open.
func (c *Client[T]) Connected() <-chan struct{} {
	return c.connected
}

// DisconnectChan returns a channel that is closed when the client disconnects.
func (c *Client[T]) DisconnectChan() <-chan struct{} {
	return c.disconnect
}

// ErrChan returns a channel that emits the terminal error of the connection.
func (c *Client[T]) ErrChan() <-chan error {
	return c.errChan
}
