// Package coincap is a client for the CoinCap market data API.
//
// A Client wraps the REST endpoints and the socket.io push channel behind typed
// methods. Every fallible REST call returns a result.Result instead of a bare
// error, so callers always inspect the outcome explicitly:
//
//	client, err := coincap.New(nil)
//	if err != nil {
//		return err
//	}
//	global, err := client.GlobalData(ctx).Unwrap()
//
// Calls block until the HTTP round trip completes or fails. A Client holds no
// mutable state after construction and is safe for concurrent use.
package coincap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"coincap/internal/rest"
	"coincap/internal/utils"
	"coincap/model"
	"coincap/result"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public CoinCap endpoint.
	DefaultBaseURL = "https://coincap.io/"

	// DefaultTimeout bounds one REST round trip.
	DefaultTimeout = rest.DefaultTimeout

	// DefaultMaxConcurrency bounds the parallel requests issued by Coins.
	DefaultMaxConcurrency = 4

	// DefaultPingPeriod is the Engine.IO v3 default ping interval.
	DefaultPingPeriod = 25 * time.Second

	// DefaultStreamIdleTimeout drops a push connection that stays silent this long.
	DefaultStreamIdleTimeout = 90 * time.Second

	// DefaultStreamBuffer is the capacity of a stream's delivery channel.
	DefaultStreamBuffer = 1000
)

// HTTPDoer executes HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes a Client. Zero values select defaults.
type Config struct {
	// BaseURL is the REST endpoint. Defaults to DefaultBaseURL.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// StreamURL is the socket.io websocket endpoint. When empty it is derived
	// from BaseURL. It is only checked when a stream is opened.
	StreamURL string `yaml:"stream_url"`

	// StreamNamespace is the socket.io namespace joined after the handshake.
	// Empty or "/" stays on the default namespace, which needs no join.
	StreamNamespace string `yaml:"stream_namespace" validate:"omitempty,startswith=/"`

	// Timeout bounds each REST request.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// MaxConcurrency bounds the parallel requests issued by Coins.
	MaxConcurrency int `yaml:"max_concurrency" validate:"gte=1,lte=64"`

	// UserAgent is sent with every REST request and stream handshake when
	// non-empty.
	UserAgent string `yaml:"user_agent"`

	// HTTPClient executes REST requests. Defaults to an *http.Client.
	HTTPClient HTTPDoer `yaml:"-"`

	// PingPeriod is the interval between Engine.IO pings on a stream.
	PingPeriod time.Duration `yaml:"ping_period" validate:"gt=0"`

	// StreamIdleTimeout closes a stream that receives nothing for this long.
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout" validate:"gt=0"`

	// StreamBuffer is the capacity of a stream's delivery channel.
	StreamBuffer int `yaml:"stream_buffer" validate:"gte=1"`

	// TLSInsecureSkip disables certificate verification on streams.
	TLSInsecureSkip bool `yaml:"tls_insecure_skip"`
}

// defaultConfig provides sensible default configuration values.
var defaultConfig = Config{
	BaseURL:           DefaultBaseURL,
	Timeout:           DefaultTimeout,
	MaxConcurrency:    DefaultMaxConcurrency,
	PingPeriod:        DefaultPingPeriod,
	StreamIdleTimeout: DefaultStreamIdleTimeout,
	StreamBuffer:      DefaultStreamBuffer,
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() Config {
	return defaultConfig
}

// Client is the entry point to every CoinCap operation.
type Client struct {
	config   Config
	rest     *rest.Client
	validate *validator.Validate
}

// New creates a Client. A nil cfg selects the defaults; zero fields of a
// non-nil cfg are filled from the defaults before validation.
func New(cfg *Config) (*Client, error) {
	c := defaultConfig
	if cfg != nil {
		c = *cfg
	}

	validate := validator.New()
	if err := validateConfig(validate, &c, &defaultConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var doer rest.Doer
	if c.HTTPClient != nil {
		doer = c.HTTPClient
	}

	transport, err := rest.NewClient(c.BaseURL, rest.Options{
		Timeout:    c.Timeout,
		HTTPClient: doer,
		UserAgent:  c.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	log.Debug().
		Str("component", "coincap").
		Str("baseURL", transport.BaseURL()).
		Dur("timeout", c.Timeout).
		Msg("client created")

	return &Client{
		config:   c,
		rest:     transport,
		validate: validate,
	}, nil
}

// validateConfig applies defaults for unset fields, then validates the result.
func validateConfig(validate *validator.Validate, cfg *Config, defaultCfg *Config) error {
	// Apply defaults for optional fields
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCfg.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCfg.Timeout
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultCfg.MaxConcurrency
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultCfg.PingPeriod
	}
	if cfg.StreamIdleTimeout == 0 {
		cfg.StreamIdleTimeout = defaultCfg.StreamIdleTimeout
	}
	if cfg.StreamBuffer == 0 {
		cfg.StreamBuffer = defaultCfg.StreamBuffer
	}

	return validate.Struct(cfg)
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// GlobalData fetches the current aggregate market figures.
func (c *Client) GlobalData(ctx context.Context) result.Result[model.GlobalData] {
	var out model.GlobalData
	err := c.get(ctx, &out, "global")
	return result.From(out, err)
}

// CoinsShort fetches the symbols of every tracked coin.
func (c *Client) CoinsShort(ctx context.Context) result.Result[[]string] {
	var out []string
	err := c.get(ctx, &out, "coins")
	return result.From(out, err)
}

// CoinMaps fetches the name, symbol and aliases of every tracked coin.
func (c *Client) CoinMaps(ctx context.Context) result.Result[[]model.CoinMap] {
	var out []model.CoinMap
	if err := c.get(ctx, &out, "map"); err != nil {
		return result.Err[[]model.CoinMap](err)
	}

	for i := range out {
		if out[i].Aliases == nil {
			out[i].Aliases = []string{}
		}
	}
	return result.Ok(out)
}

// Front fetches the summary of every tracked coin in listing order. When the
// response carries no ranks at all, each coin is ranked by its position.
// Ranks the server does send are kept as they are.
func (c *Client) Front(ctx context.Context) result.Result[[]model.CoinSummary] {
	var out []model.CoinSummary
	if err := c.get(ctx, &out, "front"); err != nil {
		return result.Err[[]model.CoinSummary](err)
	}

	if !hasRanks(out) {
		for i := range out {
			out[i].Rank = i + 1
		}
	}
	return result.Ok(out)
}

func hasRanks(coins []model.CoinSummary) bool {
	for _, c := range coins {
		if c.Rank != 0 {
			return true
		}
	}
	return false
}

// Coin fetches the details of one coin. The symbol is case-insensitive:
// it is trimmed and rewritten to upper case before the request, so "btc"
// asks for "BTC".
func (c *Client) Coin(ctx context.Context, symbol string) result.Result[model.Coin] {
	sym, err := utils.NormalizeSymbol(symbol)
	if err != nil {
		return result.Err[model.Coin](err)
	}

	var out model.Coin
	err = c.get(ctx, &out, "coins", sym)
	return result.From(out, err)
}

// Coins fetches the details of several coins. Each symbol is normalized as
// in Coin.
//
// The returned slice has one entry per input symbol, in input order. Each
// fetch is independent: a failure for one symbol never affects the others.
// Requests run in parallel, at most Config.MaxConcurrency at a time.
func (c *Client) Coins(ctx context.Context, symbols []string) []result.Result[model.Coin] {
	results := make([]result.Result[model.Coin], len(symbols))
	if len(symbols) == 0 {
		return results
	}

	sem := make(chan struct{}, c.config.MaxConcurrency)
	var wg sync.WaitGroup
	wg.Add(len(symbols))

	for i, symbol := range symbols {
		go func(i int, symbol string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = result.Err[model.Coin](fmt.Errorf("%w: %w", ErrTransport, ctx.Err()))
				return
			}
			defer func() { <-sem }()

			results[i] = c.Coin(ctx, symbol)
		}(i, symbol)
	}

	wg.Wait()
	return results
}

// get issues one GET for the path segments and decodes into out.
func (c *Client) get(ctx context.Context, out any, segments ...string) error {
	return c.getQuery(ctx, out, nil, segments...)
}

func (c *Client) getQuery(ctx context.Context, out any, query url.Values, segments ...string) error {
	err := c.rest.Get(ctx, segments, query, out)
	if err != nil {
		log.Debug().
			Err(err).
			Str("component", "coincap").
			Str("path", strings.Join(segments, "/")).
			Msg("request failed")
	}
	return err
}
