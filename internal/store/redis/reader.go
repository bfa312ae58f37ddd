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

// Reader reads cached bot state and subscribes to signal fan-out channels.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg Config) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// GetSymbolStatus returns the cached cycle snapshot for a symbol, or nil if
// none is cached (expired TTL or symbol never polled).
func (r *Reader) GetSymbolStatus(ctx context.Context, symbol string) (*SymbolStatus, error) {
	data, err := r.client.Get(ctx, "bot:status:"+symbol).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get status %s: %w", symbol, err)
	}

	var st SymbolStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("unmarshal status %s: %w", symbol, err)
	}
	return &st, nil
}

// GetLatestSignal returns the most recent cached signal for a symbol, or nil.
func (r *Reader) GetLatestSignal(ctx context.Context, symbol string) (*model.SignalRecord, error) {
	data, err := r.client.Get(ctx, "signal:latest:"+symbol).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get signal %s: %w", symbol, err)
	}

	var rec model.SignalRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal signal %s: %w", symbol, err)
	}
	return &rec, nil
}

// SignalHistory reads recent signals for a symbol from its Redis stream,
// oldest first. Returns at most count entries.
func (r *Reader) SignalHistory(ctx context.Context, symbol string, count int64) ([]model.SignalRecord, error) {
	msgs, err := r.client.XRangeN(ctx, "signals:"+symbol, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange signals:%s: %w", symbol, err)
	}

	var recs []model.SignalRecord
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var rec model.SignalRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SubscribeSignals subscribes to pub:signal:* and forwards parsed signals to
// out until ctx is cancelled. Slow consumers drop rather than block the loop.
func (r *Reader) SubscribeSignals(ctx context.Context, out chan<- model.SignalRecord) error {
	pubsub := r.client.PSubscribe(ctx, "pub:signal:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec model.SignalRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				log.Printf("[redis-reader] unmarshal signal error: %v", err)
				continue
			}
			select {
			case out <- rec:
			default:
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
