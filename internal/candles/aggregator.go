// Package candles provides real-time OHLC (Open, High, Low, Close) candlestick aggregation
// of streamed CoinCap trade events.
//
// Thread Safety:
//   - Map access is serialized through the single processing goroutine
//   - Channel operations provide memory barrier synchronization
//   - WaitGroup ensures proper cleanup of the fan-in goroutines on shutdown
package candles

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"coincap/internal/utils"
	"coincap/model"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TradeSource delivers decoded trade events until its context ends.
//
// The returned channel must be closed by the source once ctx is done or the
// underlying subscription ends.
type TradeSource interface {
	SubscribeToTrades(ctx context.Context) (<-chan model.TradeEvent, error)
}

// Aggregator folds trade events from one or more sources into per-coin OHLC
// candles and publishes them once per interval.
type Aggregator struct {
	// sources provide the trade events to aggregate.
	sources []TradeSource

	// interval defines the time duration for each candlestick period.
	interval time.Duration

	// coins restricts aggregation to these symbols. Empty means every coin.
	coins map[string]struct{}

	// candles maintains the current OHLC state per coin symbol. Candle
	// objects are reused between intervals and reset in place.
	candles map[string]*model.OHLCCandle
}

// NewAggregator creates a new candlestick aggregator with the specified configuration.
func NewAggregator(sources []TradeSource, interval time.Duration) *Aggregator {
	return &Aggregator{
		sources:  sources,
		interval: interval,
		coins:    make(map[string]struct{}),
		candles:  make(map[string]*model.OHLCCandle),
	}
}

// StartCandleStream subscribes to every source and returns a channel of
// completed candles, restricted to coins when it is non-empty.
//
// Any subscription failure cancels the subscriptions already made. The
// returned channel is closed once ctx is done or every source has ended.
func (agg *Aggregator) StartCandleStream(ctx context.Context, coins []string) (<-chan model.OHLCCandle, error) {
	if agg.interval <= 0 {
		return nil, fmt.Errorf("invalid candle interval %s", agg.interval)
	}

	for _, coin := range coins {
		sym, err := utils.NormalizeSymbol(coin)
		if err != nil {
			return nil, err
		}
		agg.coins[sym] = struct{}{}
	}

	ctx, cancel := context.WithCancel(ctx)

	tradeChannels := make([]<-chan model.TradeEvent, 0, len(agg.sources))
	for _, source := range agg.sources {
		tradeCh, err := source.SubscribeToTrades(ctx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to subscribe to trades: %w", err)
		}
		tradeChannels = append(tradeChannels, tradeCh)
	}

	fanInCh := agg.fanIn(ctx, tradeChannels)
	return agg.processTrades(ctx, cancel, fanInCh), nil
}

// processTrades runs the aggregation loop: trades update the current candles,
// each tick publishes and resets them.
func (agg *Aggregator) processTrades(ctx context.Context, cancel context.CancelFunc, input <-chan model.TradeEvent) <-chan model.OHLCCandle {
	output := make(chan model.OHLCCandle, 1000)
	ticker := time.NewTicker(agg.interval)

	go func() {
		defer close(output)
		defer cancel()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Str("component", "candles").Msg("Aggregator stopped")
				return
			case <-ticker.C:
				agg.publish(ctx, output)
				agg.clearCandles()
			case trade, ok := <-input:
				if !ok {
					agg.publish(ctx, output)
					log.Info().Str("component", "candles").Msg("Trade sources closed")
					return
				}
				if !agg.accepts(trade) {
					continue
				}
				agg.updateCandle(trade)
			}
		}
	}()

	return output
}

// fanIn merges multiple trade event channels into a single output channel.
func (agg *Aggregator) fanIn(ctx context.Context, inputChannels []<-chan model.TradeEvent) <-chan model.TradeEvent {
	dest := make(chan model.TradeEvent, 1000)
	var wg sync.WaitGroup
	wg.Add(len(inputChannels))

	for _, ch := range inputChannels {
		go func(c <-chan model.TradeEvent) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-c:
					if !ok {
						return
					}
					select {
					case dest <- n:
					case <-ctx.Done():
						return
					}
				}
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(dest)
	}()

	return dest
}

func (agg *Aggregator) accepts(trade model.TradeEvent) bool {
	if trade.Coin == "" || trade.Price.IsZero() {
		return false
	}
	if len(agg.coins) == 0 {
		return true
	}
	_, ok := agg.coins[trade.Coin]
	return ok
}

// publish emits every non-empty candle, ordered by coin symbol.
func (agg *Aggregator) publish(ctx context.Context, out chan<- model.OHLCCandle) {
	coins := make([]string, 0, len(agg.candles))
	for coin, candle := range agg.candles {
		if candle.Trades == 0 {
			continue // Skip empty candles
		}
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	for _, coin := range coins {
		select {
		case out <- *agg.candles[coin]:
		case <-ctx.Done():
			return
		}
	}
}

// clearCandles resets all candlestick data for the next interval period.
func (agg *Aggregator) clearCandles() {
	for _, candle := range agg.candles {
		candle.StartTime = time.Time{}
		candle.EndTime = time.Time{}

		candle.Open = decimal.Zero
		candle.High = decimal.Zero
		candle.Low = decimal.Zero
		candle.Close = decimal.Zero
		candle.Volume = decimal.Zero
		candle.Trades = 0
	}
}

// updateCandle folds a single trade into the candle of its coin. Open and
// Close follow the trade timestamps, not arrival order.
func (agg *Aggregator) updateCandle(trade model.TradeEvent) {
	coin := trade.Coin
	ts := trade.Timestamp.Time

	current, found := agg.candles[coin]
	if !found {
		current = &model.OHLCCandle{Coin: coin}
		agg.candles[coin] = current
	}

	first := current.Trades == 0
	earlier := first || ts.Before(current.StartTime)
	later := first || !ts.Before(current.EndTime)

	if earlier {
		current.StartTime = ts
		current.Open = trade.Price
	}
	if later {
		current.EndTime = ts
		current.Close = trade.Price
	}

	if first || trade.Price.GreaterThan(current.High) {
		current.High = trade.Price
	}
	if first || trade.Price.LessThan(current.Low) {
		current.Low = trade.Price
	}

	current.Volume = current.Volume.Add(trade.Volume)
	current.Trades++
}
