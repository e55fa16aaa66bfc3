package candles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coincap"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTradesServer pushes frames over a minimal socket.io session, then idles
// until the client disconnects.
func newTradesServer(t *testing.T, frames ...string) *coincap.Client {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	client, err := coincap.New(&coincap.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return client
}

func Test_StreamSource(t *testing.T) {
	client := newTradesServer(t,
		`0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":60000}`,
		`40`,
		`42["trades",{"coin":"BTC","exchange_id":"bitstamp","price":50000,"volume":0.1,"timestamp":1700000000000}]`,
		`42["trades",{"coin":"BTC","price":"bad"}]`,
		`42["trades",{"coin":"ETH","exchange_id":"gdax","price":3000,"volume":2,"timestamp":1700000001000}]`,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trades, err := StreamSource{Streamer: client}.SubscribeToTrades(ctx)
	require.NoError(t, err)

	var coins []string
	timeout := time.After(3 * time.Second)
	for len(coins) < 2 {
		select {
		case trade, ok := <-trades:
			require.True(t, ok, "Should keep the channel open while the stream is alive")
			coins = append(coins, trade.Coin)
		case <-timeout:
			t.Fatal("Should forward decoded trades")
		}
	}
	assert.Equal(t, []string{"BTC", "ETH"}, coins, "Should drop undecodable payloads")

	cancel()
	select {
	case _, ok := <-trades:
		assert.False(t, ok, "Should close the channel after cancellation")
	case <-time.After(3 * time.Second):
		t.Fatal("Should close the channel after cancellation")
	}
}

func Test_StreamSource_InvalidURL(t *testing.T) {
	client, err := coincap.New(&coincap.Config{StreamURL: "http://not-a-websocket"})
	require.NoError(t, err)

	_, err = StreamSource{Streamer: client}.SubscribeToTrades(context.Background())
	assert.ErrorIs(t, err, coincap.ErrInvalidStreamURL)
}

func Test_StreamSource_Aggregates(t *testing.T) {
	client := newTradesServer(t,
		`42["trades",{"coin":"BTC","price":50000,"volume":0.1,"timestamp":1700000000000}]`,
		`42["trades",{"coin":"BTC","price":50100,"volume":0.2,"timestamp":1700000001000}]`,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := NewAggregator([]TradeSource{StreamSource{Streamer: client}}, 500*time.Millisecond)
	candleStream, err := agg.StartCandleStream(ctx, []string{"BTC"})
	require.NoError(t, err)

	select {
	case candle := <-candleStream:
		assert.Equal(t, "BTC", candle.Coin)
		assert.Equal(t, "50000", candle.Open.String())
		assert.Equal(t, "50100", candle.Close.String())
		assert.Equal(t, "0.3", candle.Volume.String())
	case <-time.After(3 * time.Second):
		t.Fatal("Should aggregate streamed trades")
	}
}
