// Package redis is the live-state cache and fan-out layer. The orchestrator
// mirrors per-symbol status and emitted signals here so dashboards can read
// hot state without touching SQLite; durable history stays in SQLite.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trading-botv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Keep roughly a week of hourly signals per symbol in the stream.
	signalStreamMaxLen = 200
	statusTTL          = 30 * time.Minute
)

// SymbolStatus is the per-symbol snapshot refreshed on every polling cycle.
type SymbolStatus struct {
	Symbol     string    `json:"symbol"`
	LastPrice  float64   `json:"last_price"`
	Signal     string    `json:"signal"`
	Confidence float64   `json:"confidence"`
	BarCount   int       `json:"bar_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Config configures the Redis writer.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer mirrors bot state into Redis keys, streams, and pubsub channels.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg Config) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// SetSymbolStatus caches the latest per-symbol cycle snapshot with a TTL, so
// stale entries expire on their own if the bot stops polling a symbol.
func (w *Writer) SetSymbolStatus(ctx context.Context, st SymbolStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status %s: %w", st.Symbol, err)
	}
	key := "bot:status:" + st.Symbol
	if err := w.client.Set(ctx, key, data, statusTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// PublishSignal fans an emitted signal out in one pipeline: SET latest,
// XADD to the per-symbol stream with trimming, and PUBLISH for subscribers.
func (w *Writer) PublishSignal(ctx context.Context, rec model.SignalRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal signal %s: %w", rec.Symbol, err)
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, "signal:latest:"+rec.Symbol, jsonData, statusTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "signals:" + rec.Symbol,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:signal:"+rec.Symbol, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signal pipeline %s: %w", rec.Symbol, err)
	}
	return nil
}

// PublishPosition pushes a position lifecycle event (open, update, close) to
// pubsub subscribers. Positions are not streamed; SQLite is their record.
func (w *Writer) PublishPosition(ctx context.Context, p *model.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position %s: %w", p.Symbol, err)
	}
	return w.client.Publish(ctx, "pub:position:"+p.Symbol, string(data)).Err()
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
