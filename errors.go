package coincap

import (
	"errors"

	"coincap/internal/rest"
	"coincap/internal/utils"
	"coincap/internal/websocket"
)

var (
	// ErrInvalidConfig indicates that the provided Config contains invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidQuery indicates a history query that cannot be sent.
	ErrInvalidQuery = errors.New("invalid history query")

	// ErrTransport wraps network failures and timeouts.
	ErrTransport = rest.ErrTransport

	// ErrStatus is matched by every *StatusError.
	ErrStatus = rest.ErrStatus

	// ErrDecode wraps response bodies and stream payloads that could not be decoded.
	ErrDecode = rest.ErrDecode

	// ErrInvalidSymbol is returned for coin symbols that cannot be requested.
	ErrInvalidSymbol = utils.ErrInvalidSymbol

	// ErrInvalidStreamURL is returned synchronously when the push channel URL is unusable.
	ErrInvalidStreamURL = websocket.ErrInvalidEndpoint

	// ErrStreamRejected is reported when the server refuses the socket.io connection.
	ErrStreamRejected = errors.New("stream rejected by server")
)

// StatusError reports a non-2xx HTTP response.
type StatusError = rest.StatusError
