package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bar for a trading pair.
// Immutable once stored; upserted by (symbol, timestamp).
type Candle struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"` // bar open time, unix seconds UTC
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the bar open time as a time.Time in UTC.
func (c *Candle) Time() time.Time {
	return time.Unix(c.Timestamp, 0).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
