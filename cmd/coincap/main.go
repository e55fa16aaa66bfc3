/*
Command coincap queries the CoinCap market data API from the command line.

REST subcommands print JSON to stdout. Streaming subcommands run until
interrupted.

Usage:

	coincap [-config coincap.yaml] [-env .env] <command> [flags] [args]

Commands:

	global                          aggregate market figures
	coins                           symbols of every tracked coin
	map                             names, symbols and aliases
	front                           front page listing
	coin SYMBOL...                  details of one or more coins
	history [-start -end -interval] SYMBOL
	                                price history of a coin
	trades [-typed]                 live trades, raw or decoded
	record [-db FILE]               persist live trades to SQLite
	recent [-db FILE] [-n N] SYMBOL most recent recorded trades
	candles [-interval 5s] [SYMBOL...]
	                                live OHLC candles per coin
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coincap"
	"coincap/internal/candles"
	"coincap/internal/config"
	"coincap/internal/storage"
	"coincap/internal/utils"
	"coincap/model"
	"coincap/result"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global flags shared by every subcommand.
var (
	// configPath points at an optional YAML configuration file
	configPath = flag.String("config", "", "Path to a YAML configuration file")
	// envPath points at an optional .env file
	envPath = flag.String("env", ".env", "Path to a .env file")
	// baseURL overrides the REST endpoint
	baseURL = flag.String("base-url", "", "CoinCap REST endpoint")
	// logLevel overrides the log level
	logLevel = flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
)

// maxCoinSymbols caps the symbols one coin command may request.
const maxCoinSymbols = 100

// app bundles what every subcommand needs.
type app struct {
	cfg    *config.Config
	client *coincap.Client
	out    io.Writer
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [args]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	client, err := coincap.New(&cfg.Client)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create client")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{cfg: cfg, client: client, out: os.Stdout}
	if err := a.run(ctx, flag.Args()); err != nil {
		log.Error().Err(err).Msg("command failed")
		cancel()
		os.Exit(1)
	}
}

// loadConfig layers the YAML file, .env file, environment and flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnv(cfg, *envPath); err != nil {
		return nil, err
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg, cfg.Validate()
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "global":
		return printResult(a.out, a.client.GlobalData(ctx))
	case "coins":
		return printResult(a.out, a.client.CoinsShort(ctx))
	case "map":
		return printResult(a.out, a.client.CoinMaps(ctx))
	case "front":
		return printResult(a.out, a.client.Front(ctx))
	case "coin":
		return a.coin(ctx, args)
	case "history":
		return a.history(ctx, args)
	case "trades":
		return a.trades(ctx, args)
	case "record":
		return a.record(ctx, args)
	case "recent":
		return a.recent(ctx, args)
	case "candles":
		return a.candles(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) coin(ctx context.Context, args []string) error {
	symbols, err := symbolArgs(args)
	if err != nil {
		return err
	}
	if err := utils.ValidateSymbols(symbols, maxCoinSymbols); err != nil {
		return err
	}
	if len(symbols) == 1 {
		return printResult(a.out, a.client.Coin(ctx, symbols[0]))
	}

	failed := 0
	for i, res := range a.client.Coins(ctx, symbols) {
		res.Match(func(coin model.Coin) {
			if err := printJSON(a.out, coin); err != nil {
				failed++
				log.Error().Err(err).Str("symbol", symbols[i]).Msg("print failed")
			}
		}, func(err error) {
			failed++
			log.Error().Err(err).Str("symbol", symbols[i]).Msg("fetch failed")
		})
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d coins failed", failed, len(symbols))
	}
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	start := fs.String("start", "", "Earliest sample (RFC3339)")
	end := fs.String("end", "", "Latest sample (RFC3339)")
	interval := fs.String("interval", "", "Sampling interval (m1, m5, m15, m30, h1, h2, h6, h12, d1)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("history needs exactly one symbol")
	}

	builder := a.client.History(fs.Arg(0))
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		builder = builder.Start(t)
	}
	if *end != "" {
		t, err := time.Parse(time.RFC3339, *end)
		if err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
		builder = builder.End(t)
	}
	if *interval != "" {
		builder = builder.Interval(model.Interval(*interval))
	}

	return printResult(a.out, builder.Execute(ctx))
}

func (a *app) trades(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trades", flag.ContinueOnError)
	typed := fs.Bool("typed", false, "Decode trades instead of printing raw payloads")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*typed {
		stream, err := a.client.Trades(ctx)
		if err != nil {
			return err
		}
		defer stream.Close()

		stream.Each(func(payload json.RawMessage) {
			fmt.Fprintln(a.out, string(payload))
		})
		return streamErr(ctx, stream.Errors())
	}

	stream, err := a.client.TradeEvents(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	stream.Each(func(r result.Result[model.TradeEvent]) {
		r.Match(func(trade model.TradeEvent) {
			printJSON(a.out, trade)
		}, func(err error) {
			log.Warn().Err(err).Msg("skipping trade")
		})
	})
	return streamErr(ctx, stream.Errors())
}

func (a *app) record(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	db := fs.String("db", a.cfg.Database, "SQLite database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	trades, err := candles.StreamSource{Streamer: a.client}.SubscribeToTrades(ctx)
	if err != nil {
		return err
	}

	log.Info().Str("db", *db).Msg("recording trades")
	saved, err := store.Record(ctx, trades)
	log.Info().Int("saved", saved).Msg("recording stopped")
	return err
}

func (a *app) recent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recent", flag.ContinueOnError)
	db := fs.String("db", a.cfg.Database, "SQLite database file")
	limit := fs.Int("n", 20, "Number of trades")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("recent needs exactly one symbol")
	}

	symbol, err := utils.NormalizeSymbol(fs.Arg(0))
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	trades, err := store.Recent(ctx, symbol, *limit)
	if err != nil {
		return err
	}
	return printJSON(a.out, trades)
}

func (a *app) candles(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("candles", flag.ContinueOnError)
	interval := fs.Duration("interval", a.cfg.CandleInterval, "Candle interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	coins := a.cfg.Symbols
	if fs.NArg() > 0 {
		var err error
		if coins, err = symbolArgs(fs.Args()); err != nil {
			return err
		}
	}

	agg := candles.NewAggregator([]candles.TradeSource{candles.StreamSource{Streamer: a.client}}, *interval)
	candleStream, err := agg.StartCandleStream(ctx, coins)
	if err != nil {
		return err
	}

	log.Info().Dur("interval", *interval).Strs("coins", coins).Msg("aggregating trades")
	for candle := range candleStream {
		log.Info().
			Str("coin", candle.Coin).
			Str("open", candle.Open.String()).
			Str("high", candle.High.String()).
			Str("low", candle.Low.String()).
			Str("close", candle.Close.String()).
			Str("volume", candle.Volume.String()).
			Int("trades", candle.Trades).
			Time("start", candle.StartTime).
			Time("end", candle.EndTime).
			Msg("candle")
	}
	return nil
}

// symbolArgs accepts symbols as separate arguments, comma lists or both.
func symbolArgs(args []string) ([]string, error) {
	return utils.SplitSymbols(strings.Join(args, ","))
}

// streamErr reports why a stream ended, ignoring interruption by the user.
func streamErr(ctx context.Context, errs <-chan error) error {
	if ctx.Err() != nil {
		return nil
	}
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func printResult[T any](w io.Writer, r result.Result[T]) error {
	v, err := r.Unwrap()
	if err != nil {
		return err
	}
	return printJSON(w, v)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
