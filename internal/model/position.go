package model

import "time"

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position status values.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Position represents a tracked trading position with its TP/SL levels.
// At most one OPEN position exists per symbol at any time. Once CLOSED,
// a position is immutable.
type Position struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	Confidence   float64   `json:"confidence"`
	InitialSL    float64   `json:"initial_sl"`
	CurrentSL    float64   `json:"current_sl"`
	TP1Price     float64   `json:"tp1_price"`
	TP2Price     float64   `json:"tp2_price"`
	TP3Price     float64   `json:"tp3_price"`
	TP1Hit       bool      `json:"tp1_hit"`
	TP2Hit       bool      `json:"tp2_hit"`
	TP3Hit       bool      `json:"tp3_hit"`
	Status       string    `json:"status"`
	PnL          float64   `json:"pnl"`
	OpenedAt     time.Time `json:"opened_at"`
	ClosedAt     time.Time `json:"closed_at,omitempty"`
	CloseReason  string    `json:"close_reason,omitempty"`
}

// UnrealizedPnL computes the mark-to-market P&L against the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == SideLong {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}
