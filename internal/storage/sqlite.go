// Package storage persists streamed trade events to a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coincap/model"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("trade store is closed")

// TradeStore is a SQLite backed tape of trade events.
type TradeStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists. ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*TradeStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store := &TradeStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *TradeStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			coin TEXT NOT NULL,
			exchange_id TEXT NOT NULL,
			market_id TEXT NOT NULL,
			price TEXT NOT NULL,
			volume TEXT NOT NULL,
			side TEXT NOT NULL,
			traded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_coin_time ON trades(coin, traded_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// Save appends one trade. Prices and volumes are stored as decimal strings so
// no precision is lost.
func (s *TradeStore) Save(ctx context.Context, trade model.TradeEvent) error {
	if s.db == nil {
		return ErrClosed
	}

	query := `INSERT INTO trades (coin, exchange_id, market_id, price, volume, side, traded_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.Coin, trade.ExchangeID, trade.MarketID,
		trade.Price.String(), trade.Volume.String(), string(trade.Side),
		trade.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// Recent returns up to limit trades of coin, newest first.
func (s *TradeStore) Recent(ctx context.Context, coin string, limit int) ([]model.TradeEvent, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []model.TradeEvent{}, nil
	}

	query := `SELECT coin, exchange_id, market_id, price, volume, side, traded_at
			  FROM trades WHERE coin = ? ORDER BY traded_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, coin, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []model.TradeEvent{}
	for rows.Next() {
		var (
			t             model.TradeEvent
			price, volume string
			side          string
			tradedAt      int64
		)
		if err := rows.Scan(&t.Coin, &t.ExchangeID, &t.MarketID, &price, &volume, &side, &tradedAt); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("corrupt price %q: %w", price, err)
		}
		if t.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("corrupt volume %q: %w", volume, err)
		}
		t.Side = model.Side(side)
		t.Timestamp = model.NewTimestamp(tradedAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Count returns the number of stored trades of coin, or of every coin when
// coin is empty.
func (s *TradeStore) Count(ctx context.Context, coin string) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}

	var (
		n   int
		row *sql.Row
	)
	if coin == "" {
		row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE coin = ?`, coin)
	}
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Record saves every trade received on trades until the channel closes or ctx
// is done, and returns how many were stored.
func (s *TradeStore) Record(ctx context.Context, trades <-chan model.TradeEvent) (int, error) {
	saved := 0
	for {
		select {
		case <-ctx.Done():
			return saved, nil
		case trade, ok := <-trades:
			if !ok {
				return saved, nil
			}
			if err := s.Save(ctx, trade); err != nil {
				if ctx.Err() != nil {
					return saved, nil
				}
				return saved, err
			}
			saved++
		}
	}
}

// Close releases the database.
func (s *TradeStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
