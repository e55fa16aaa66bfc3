package coincap

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"coincap/internal/utils"
	"coincap/model"
	"coincap/result"
)

// HistoryQuery holds the optional parameters of a history request. Unset
// fields are omitted from the request.
type HistoryQuery struct {
	Start    *time.Time     // Earliest sample, inclusive
	End      *time.Time     // Latest sample, inclusive
	Interval model.Interval `validate:"omitempty,oneof=m1 m5 m15 m30 h1 h2 h6 h12 d1"`
}

// values encodes the set parameters; start and end travel as unix milliseconds.
func (q HistoryQuery) values() url.Values {
	v := url.Values{}
	if q.Start != nil {
		v.Set("start", strconv.FormatInt(q.Start.UnixMilli(), 10))
	}
	if q.End != nil {
		v.Set("end", strconv.FormatInt(q.End.UnixMilli(), 10))
	}
	if q.Interval != "" {
		v.Set("interval", q.Interval.String())
	}
	return v
}

// HistoryBuilder accumulates optional history parameters for one coin.
//
// Setters return an updated copy, so a builder can be configured in any order
// and reused freely; Execute issues exactly one request.
type HistoryBuilder struct {
	client *Client
	symbol string
	query  HistoryQuery
}

// History starts a history query for symbol. The symbol is normalized as in
// Coin when the query runs, so "btc" requests the history of "BTC".
func (c *Client) History(symbol string) HistoryBuilder {
	return HistoryBuilder{client: c, symbol: symbol}
}

// Start sets the earliest sample time.
func (b HistoryBuilder) Start(t time.Time) HistoryBuilder {
	b.query.Start = &t
	return b
}

// End sets the latest sample time.
func (b HistoryBuilder) End(t time.Time) HistoryBuilder {
	b.query.End = &t
	return b
}

// Interval sets the sampling interval.
func (b HistoryBuilder) Interval(i model.Interval) HistoryBuilder {
	b.query.Interval = i
	return b
}

// Query returns the accumulated parameters.
func (b HistoryBuilder) Query() HistoryQuery {
	return b.query
}

// Execute validates the parameters and issues the request.
func (b HistoryBuilder) Execute(ctx context.Context) result.Result[[]model.HistoryPoint] {
	return b.client.FetchHistory(ctx, b.symbol, b.query)
}

// FetchHistory issues GET /history/{symbol} with whichever parameters of q are
// set. The symbol is trimmed and rewritten to upper case first. The points keep
// the order the server returned them in.
func (c *Client) FetchHistory(ctx context.Context, symbol string, q HistoryQuery) result.Result[[]model.HistoryPoint] {
	sym, err := utils.NormalizeSymbol(symbol)
	if err != nil {
		return result.Err[[]model.HistoryPoint](err)
	}

	if err := c.validateQuery(q); err != nil {
		return result.Err[[]model.HistoryPoint](err)
	}

	var out []model.HistoryPoint
	err = c.getQuery(ctx, &out, q.values(), "history", sym)
	return result.From(out, err)
}

func (c *Client) validateQuery(q HistoryQuery) error {
	if err := c.validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidQuery, q.Start.UTC().Format(time.RFC3339), q.End.UTC().Format(time.RFC3339))
	}
	return nil
}
