package candles

import (
	"context"

	"coincap"
	"coincap/model"
	"coincap/result"

	"github.com/rs/zerolog/log"
)

// TradeStreamer opens a typed trades subscription. *coincap.Client satisfies it.
type TradeStreamer interface {
	TradeEvents(ctx context.Context) (*coincap.Stream[result.Result[model.TradeEvent]], error)
}

// StreamSource adapts a CoinCap trades stream to TradeSource. Payloads that
// failed to decode are logged and dropped.
type StreamSource struct {
	Streamer TradeStreamer
}

// SubscribeToTrades opens the stream and forwards every decoded trade.
func (s StreamSource) SubscribeToTrades(ctx context.Context) (<-chan model.TradeEvent, error) {
	stream, err := s.Streamer.TradeEvents(ctx)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "candles-source").Logger()
	out := make(chan model.TradeEvent, 1000)

	go func() {
		defer close(out)
		defer stream.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-stream.C():
				if !ok {
					select {
					case err := <-stream.Errors():
						logger.Warn().Err(err).Msg("trade stream ended")
					default:
					}
					return
				}

				trade, err := r.Unwrap()
				if err != nil {
					logger.Debug().Err(err).Msg("dropping undecodable trade")
					continue
				}

				select {
				case out <- trade:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
