package coincap

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"coincap/internal/socketio"
	"coincap/internal/websocket"
	"coincap/model"
	"coincap/result"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// TradesEvent is the socket.io event carrying market trades.
const TradesEvent = "trades"

// Stream is a live subscription to the push channel.
//
// Values arrive on C in the order the server sent them, from a single
// delivery goroutine. C is closed when the connection ends for any reason;
// Errors then yields the terminal error. There is no automatic reconnect.
type Stream[T any] struct {
	ws *websocket.Client[T]
}

// C returns the delivery channel.
func (s *Stream[T]) C() <-chan T {
	return s.ws.Messages()
}

// Errors returns a channel carrying the error that ended the stream.
func (s *Stream[T]) Errors() <-chan error {
	return s.ws.ErrChan()
}

// Connected is closed once the connection is open.
func (s *Stream[T]) Connected() <-chan struct{} {
	return s.ws.Connected()
}

// Done is closed when the stream has ended.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.ws.DisconnectChan()
}

// Close terminates the connection and releases its goroutines. It is safe to
// call more than once.
func (s *Stream[T]) Close() {
	s.ws.Close()
}

// Each calls fn for every value until the stream ends. fn runs on the calling
// goroutine, one value at a time.
func (s *Stream[T]) Each(fn func(T)) {
	for v := range s.C() {
		fn(v)
	}
}

// Trades subscribes to the trades event and delivers each payload untouched.
//
// An unusable stream URL is reported immediately. Otherwise the call returns
// as soon as the connection attempt has been issued; it does not wait for the
// connection to open.
func (c *Client) Trades(ctx context.Context) (*Stream[json.RawMessage], error) {
	return openStream(ctx, c, TradesEvent, func(payload json.RawMessage) json.RawMessage {
		return payload
	})
}

// TradeEvents subscribes to the trades event and decodes each payload into a
// model.TradeEvent. A payload that cannot be decoded is delivered as a failure
// wrapping ErrDecode and the stream carries on.
func (c *Client) TradeEvents(ctx context.Context) (*Stream[result.Result[model.TradeEvent]], error) {
	return openStream(ctx, c, TradesEvent, decodeTrade)
}

// StreamURL returns the socket.io websocket endpoint used by streams.
func (c *Client) StreamURL() (string, error) {
	if c.config.StreamURL != "" {
		if err := websocket.ValidateEndpoint(c.config.StreamURL); err != nil {
			return "", err
		}
		return c.config.StreamURL, nil
	}
	return deriveStreamURL(c.rest.BaseURL())
}

// deriveStreamURL maps http(s)://host/base/ to ws(s)://host/base/socket.io/ with
// the Engine.IO v3 websocket transport query.
func deriveStreamURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStreamURL, err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: cannot derive from scheme %q", ErrInvalidStreamURL, u.Scheme)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path += "socket.io/"
	u.RawPath = ""
	u.RawQuery = url.Values{"EIO": {"3"}, "transport": {"websocket"}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}

func openStream[T any](ctx context.Context, c *Client, event string, convert func(json.RawMessage) T) (*Stream[T], error) {
	endpoint, err := c.StreamURL()
	if err != nil {
		return nil, err
	}

	cfg := websocket.Config[T]{
		Endpoint:        endpoint,
		Handler:         eventHandler(event, convert),
		Replier:         pongReply,
		TLSInsecureSkip: c.config.TLSInsecureSkip,
		PingPeriod:      c.config.PingPeriod,
		PingMessage:     socketio.EncodePing(),
		ReadTimeout:     c.config.StreamIdleTimeout,
		BufferSize:      c.config.StreamBuffer,
	}
	if c.config.UserAgent != "" {
		cfg.Header = http.Header{"User-Agent": {c.config.UserAgent}}
	}
	if ns := c.config.StreamNamespace; ns != "" && ns != "/" {
		cfg.SubscriptionMessages = [][]byte{socketio.EncodeConnect(ns)}
	}

	ws, err := websocket.NewWebsocketClient(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to create stream")
		return nil, err
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("event", event).
		Str("namespace", c.config.StreamNamespace).
		Msg("stream requested")
	return &Stream[T]{ws: ws}, nil
}

// pongReply answers Engine.IO pings sent by the server.
func pongReply(data []byte) []byte {
	if len(data) == 0 || socketio.EnginePacketType(data[0]) != socketio.EnginePing {
		return nil
	}
	return socketio.EncodePong(data[1:])
}

// eventHandler decodes socket.io frames and forwards the first argument of
// every event named event through convert. Other frames are logged and skipped.
func eventHandler[T any](event string, convert func(json.RawMessage) T) func(context.Context, []byte, chan<- T) error {
	logger := log.With().Str("component", "stream").Str("event", event).Logger()

	return func(ctx context.Context, data []byte, out chan<- T) error {
		p, err := socketio.Decode(data)
		if err != nil {
			return fmt.Errorf("undecodable frame: %w", err)
		}

		switch p.Engine {
		case socketio.EngineOpen:
			h, err := socketio.DecodeHandshake(p)
			if err != nil {
				return err
			}
			logger.Debug().Str("sid", h.SID).Dur("pingInterval", h.Interval()).Msg("handshake received")
			return nil
		case socketio.EngineClose:
			logger.Info().Msg("server closed the session")
			return nil
		case socketio.EngineMessage:
		default:
			return nil
		}

		switch p.Type {
		case socketio.Event:
		case socketio.Error:
			return fmt.Errorf("%w: %s", ErrStreamRejected, p.Data)
		default:
			logger.Debug().Str("namespace", p.Namespace).Msgf("socket packet %c", p.Type)
			return nil
		}

		if p.Event != event {
			return nil
		}

		var payload json.RawMessage
		if len(p.Args) > 0 {
			payload = p.Args[0]
		}

		select {
		case out <- convert(payload):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeTrade converts one trades payload into a result.
func decodeTrade(payload json.RawMessage) result.Result[model.TradeEvent] {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return result.Err[model.TradeEvent](fmt.Errorf("%w: trade event without payload", ErrDecode))
	}

	var t model.TradeEvent
	if err := json.Unmarshal(trimmed, &t); err != nil {
		return result.Err[model.TradeEvent](fmt.Errorf("%w: trade event: %v", ErrDecode, err))
	}
	return result.Ok(t)
}
