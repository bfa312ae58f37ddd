// Package ledger tracks open positions and their TP/SL levels.
//
// The ledger is a pure state container: the orchestrator is its sole writer
// and is responsible for persisting every transition. The core invariant is
// at most one OPEN position per symbol at any time.
package ledger

import (
	"errors"
	"sync"
	"time"

	"trading-botv1/internal/model"
)

var (
	// ErrDuplicatePosition is returned by Open when the symbol already has an
	// open position. This is an orchestrator bug, not a routine condition.
	ErrDuplicatePosition = errors.New("ledger: open position already exists for symbol")

	// ErrNoOpenPosition is returned by Close and MarkPrice when the symbol
	// has no open position.
	ErrNoOpenPosition = errors.New("ledger: no open position for symbol")
)

// TP/SL percentage table, keyed by side.
const (
	longSL  = 0.98
	longTP1 = 1.03
	longTP2 = 1.05
	longTP3 = 1.08

	shortSL  = 1.02
	shortTP1 = 0.97
	shortTP2 = 0.95
	shortTP3 = 0.92
)

// Ledger holds the set of open positions.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*model.Position // symbol → open position
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[string]*model.Position)}
}

// Open creates a new position with TP/SL levels from the fixed percentage
// table. Fails with ErrDuplicatePosition if the symbol already has one.
func (l *Ledger) Open(symbol string, side model.Side, quantity, entryPrice, confidence float64) (model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[symbol]; exists {
		return model.Position{}, ErrDuplicatePosition
	}

	pos := &model.Position{
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		Confidence:   confidence,
		Status:       model.StatusOpen,
		OpenedAt:     time.Now().UTC(),
	}
	if side == model.SideLong {
		pos.InitialSL = entryPrice * longSL
		pos.TP1Price = entryPrice * longTP1
		pos.TP2Price = entryPrice * longTP2
		pos.TP3Price = entryPrice * longTP3
	} else {
		pos.InitialSL = entryPrice * shortSL
		pos.TP1Price = entryPrice * shortTP1
		pos.TP2Price = entryPrice * shortTP2
		pos.TP3Price = entryPrice * shortTP3
	}
	pos.CurrentSL = pos.InitialSL

	l.positions[symbol] = pos
	return *pos, nil
}

// Restore seeds the ledger with a persisted open position, keeping its
// ratcheted stop and TP flags intact. Used at startup to rebuild state.
func (l *Ledger) Restore(pos model.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[pos.Symbol]; exists {
		return ErrDuplicatePosition
	}
	p := pos
	l.positions[pos.Symbol] = &p
	return nil
}

// Close removes the symbol's open position and returns the terminal record
// with realized PnL. The caller persists it.
func (l *Ledger) Close(symbol string, exitPrice float64, reason string) (model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, exists := l.positions[symbol]
	if !exists {
		return model.Position{}, ErrNoOpenPosition
	}

	pos.CurrentPrice = exitPrice
	pos.PnL = pos.UnrealizedPnL(exitPrice)
	pos.Status = model.StatusClosed
	pos.ClosedAt = time.Now().UTC()
	pos.CloseReason = reason

	delete(l.positions, symbol)
	return *pos, nil
}

// MarkPrice updates the symbol's open position against the latest price:
// records the price and unrealized PnL, marks crossed TP levels, and
// ratchets the stop to the last hit TP level. Returns the updated snapshot.
func (l *Ledger) MarkPrice(symbol string, price float64) (model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, exists := l.positions[symbol]
	if !exists {
		return model.Position{}, ErrNoOpenPosition
	}

	pos.CurrentPrice = price
	pos.PnL = pos.UnrealizedPnL(price)

	crossed := func(level float64) bool {
		if pos.Side == model.SideLong {
			return price >= level
		}
		return price <= level
	}
	if !pos.TP1Hit && crossed(pos.TP1Price) {
		pos.TP1Hit = true
		pos.CurrentSL = pos.EntryPrice // breakeven after TP1
	}
	if !pos.TP2Hit && crossed(pos.TP2Price) {
		pos.TP2Hit = true
		pos.CurrentSL = pos.TP1Price
	}
	if !pos.TP3Hit && crossed(pos.TP3Price) {
		pos.TP3Hit = true
	}

	return *pos, nil
}

// StopHit reports whether the price has breached the position's current stop.
func StopHit(pos model.Position, price float64) bool {
	if pos.Side == model.SideLong {
		return price <= pos.CurrentSL
	}
	return price >= pos.CurrentSL
}

// Get returns the open position for a symbol, if any.
func (l *Ledger) Get(symbol string) (model.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, exists := l.positions[symbol]
	if !exists {
		return model.Position{}, false
	}
	return *pos, true
}

// SetID attaches the storage row id to an open position so later updates can
// reference it.
func (l *Ledger) SetID(symbol string, id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, exists := l.positions[symbol]; exists {
		pos.ID = id
	}
}

// Open positions snapshot, for the dashboard and the TP/SL monitor.
func (l *Ledger) OpenPositions() []model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// TotalUnrealizedPnL sums unrealized PnL across all open positions at their
// last marked prices.
func (l *Ledger) TotalUnrealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, pos := range l.positions {
		total += pos.PnL
	}
	return total
}
