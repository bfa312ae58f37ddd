// cmd/backfill pulls historical candles from the exchange into SQLite so the
// bot can train and score immediately on its first cycle.
//
// Usage:
//
//	go run ./cmd/backfill --symbols=BTCUSDT,ETHUSDT --limit=1000
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"trading-botv1/internal/exchange"
	sqlitestore "trading-botv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	symbolsStr := flag.String("symbols", "BTCUSDT,ETHUSDT,SOLUSDT,DOGEUSDT", "Comma-separated trading pairs")
	timeframe := flag.String("timeframe", "1hour", "Kline interval")
	limit := flag.Int("limit", 1000, "Candles to fetch per symbol")
	dbPath := flag.String("db", "data/trading_bot.db", "Path to SQLite database")
	baseURL := flag.String("base-url", "", "Exchange API base URL (default: production)")
	flag.Parse()

	symbols := parseSymbols(*symbolsStr)
	if len(symbols) == 0 {
		log.Fatal("[backfill] no valid symbols specified")
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Fatalf("[backfill] create data dir for %s: %v", *dbPath, err)
	}
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[backfill] sqlite open failed: %v", err)
	}
	defer store.Close()

	client := exchange.New(exchange.Config{
		BaseURL: *baseURL,
		Timeout: 30 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	total := 0
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		bars, err := client.GetKlineData(ctx, symbol, *timeframe, *limit)
		if err != nil {
			log.Printf("[backfill] %s fetch failed: %v", symbol, err)
			continue
		}
		if err := store.UpsertCandles(bars); err != nil {
			log.Printf("[backfill] %s persist failed: %v", symbol, err)
			continue
		}
		count, _ := store.CountCandles(symbol)
		log.Printf("[backfill] %s: fetched %d candles (%d stored total)", symbol, len(bars), count)
		total += len(bars)
	}

	log.Printf("[backfill] done: %d candles across %d symbols", total, len(symbols))
}

func parseSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
