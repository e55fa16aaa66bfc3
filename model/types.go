// Package model defines the market data types returned by the CoinCap client.
//
// Every type is a plain value decoded fresh from a response; nothing here keeps a
// reference to the client or stream that produced it. All monetary and volume
// figures use decimal.Decimal.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GlobalData is a snapshot of aggregate market figures.
type GlobalData struct {
	AltCap        decimal.Decimal `json:"altCap"`        // Market cap of everything except BTC (USD)
	BitnodesCount int64           `json:"bitnodesCount"` // Number of reachable Bitcoin nodes
	BtcCap        decimal.Decimal `json:"btcCap"`        // Bitcoin market cap (USD)
	BtcPrice      decimal.Decimal `json:"btcPrice"`      // Bitcoin price (USD)
	Dominance     decimal.Decimal `json:"dom"`           // Bitcoin dominance in percent
	TotalCap      decimal.Decimal `json:"totalCap"`      // Total market cap (USD)
	VolumeAlt     decimal.Decimal `json:"volumeAlt"`     // 24h volume of alt coins (USD)
	VolumeBtc     decimal.Decimal `json:"volumeBtc"`     // 24h volume of BTC (USD)
	VolumeTotal   decimal.Decimal `json:"volumeTotal"`   // Total 24h volume (USD)
}

// CoinSummary is one row of the front page listing.
type CoinSummary struct {
	Symbol        string          `json:"short"`
	Name          string          `json:"long"`
	Price         decimal.Decimal `json:"price"`
	USDVolume     decimal.Decimal `json:"usdVolume"`
	Volume        decimal.Decimal `json:"volume"`
	MarketCap     decimal.Decimal `json:"mktcap"`
	Supply        decimal.Decimal `json:"supply"`
	ChangePercent decimal.Decimal `json:"perc"`
	Cap24hChange  decimal.Decimal `json:"cap24hrChange"`
	VWAP          decimal.Decimal `json:"vwapData"`
	Shapeshift    bool            `json:"shapeshift"`

	// Rank is the 1-based position in the listing. When no entry of a listing
	// carries one, the client fills every rank from the response order.
	Rank int `json:"rank,omitempty"`
}

// Coin holds the extended per-coin fields returned by the detail endpoint.
//
// The detail endpoint repeats the global figures alongside the coin specific
// ones, so GlobalData is embedded and flattened in JSON.
type Coin struct {
	GlobalData

	ID           string          `json:"id"`
	DisplayName  string          `json:"display_name"`
	Status       string          `json:"status"`
	Type         string          `json:"type"`
	Rank         int             `json:"rank"`
	Price        decimal.Decimal `json:"price"`
	PriceBTC     decimal.Decimal `json:"price_btc"`
	PriceETH     decimal.Decimal `json:"price_eth"`
	PriceEUR     decimal.Decimal `json:"price_eur"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	MarketCap    decimal.Decimal `json:"market_cap"`
	Supply       decimal.Decimal `json:"supply"`
	Volume       decimal.Decimal `json:"volume"`
	Cap24hChange decimal.Decimal `json:"cap24hrChange"`
	VWAP24h      decimal.Decimal `json:"vwap_h24"`
}

// CoinMap maps a canonical coin name to its symbol and known aliases.
type CoinMap struct {
	Name    string   `json:"name"`
	Symbol  string   `json:"symbol"`
	Aliases []string `json:"aliases"`
}

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeEvent is a single market trade pushed over the streaming channel.
type TradeEvent struct {
	Coin       string          `json:"coin"`        // Coin symbol (e.g., "BTC")
	ExchangeID string          `json:"exchange_id"` // Venue the trade happened on
	MarketID   string          `json:"market_id"`   // Venue market (e.g., "BTC_USD")
	Price      decimal.Decimal `json:"price"`       // Execution price (USD)
	Volume     decimal.Decimal `json:"volume"`      // Trade size in the base asset
	Side       Side            `json:"side"`        // Aggressor side, may be empty
	Timestamp  Timestamp       `json:"timestamp"`   // Exchange time of the trade
}

// HistoryPoint is one sample of a coin's price history.
type HistoryPoint struct {
	Time      Timestamp       `json:"time"`
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Volume    decimal.Decimal `json:"volume"`
}

// OHLCCandle aggregates streamed trades of one coin over a time window.
type OHLCCandle struct {
	Coin      string          // Coin symbol (e.g., "BTC")
	Open      decimal.Decimal // Price of the earliest trade in the window
	High      decimal.Decimal // Highest traded price
	Low       decimal.Decimal // Lowest traded price
	Close     decimal.Decimal // Price of the latest trade in the window
	Volume    decimal.Decimal // Sum of trade sizes
	Trades    int             // Number of trades folded in
	StartTime time.Time       // Time of the earliest trade (inclusive)
	EndTime   time.Time       // Time of the latest trade (inclusive)
}
