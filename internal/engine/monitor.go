package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trading-botv1/internal/ledger"
	"trading-botv1/internal/logger"
	"trading-botv1/internal/notification"
)

// checkExits marks an open position at the latest price and closes it when
// the stop or the final take-profit is reached. TP1 and TP2 only ratchet the
// stop; the ledger handles that inside MarkPrice.
func (e *Engine) checkExits(ctx context.Context, symbol string, price float64) error {
	pos, err := e.book.MarkPrice(symbol, price)
	if err != nil {
		if errors.Is(err, ledger.ErrNoOpenPosition) {
			return nil
		}
		return fmt.Errorf("mark %s: %w", symbol, err)
	}

	if err := e.store.UpdatePosition(&pos); err != nil {
		return fmt.Errorf("persist mark %s: %w", symbol, err)
	}
	if e.mirror != nil {
		e.mirror.WritePosition(&pos)
	}
	if e.mtr != nil {
		e.mtr.UnrealizedPnL.Set(e.book.TotalUnrealizedPnL())
	}

	switch {
	case ledger.StopHit(pos, price):
		return e.closePosition(ctx, symbol, price, "SL")
	case pos.TP3Hit:
		return e.closePosition(ctx, symbol, price, "TP3")
	}
	return nil
}

// closePosition closes the book entry, persists the terminal record, and
// settles the demo balance.
func (e *Engine) closePosition(ctx context.Context, symbol string, price float64, reason string) error {
	closed, err := e.book.Close(symbol, price, reason)
	if err != nil {
		return fmt.Errorf("close %s: %w", symbol, err)
	}

	if err := e.store.ClosePosition(&closed); err != nil {
		return fmt.Errorf("persist close %s: %w", symbol, err)
	}

	// Return the entry notional plus realized pnl to the demo balance
	e.mu.Lock()
	e.balance += closed.Quantity*closed.EntryPrice + closed.PnL
	balance := e.balance
	e.mu.Unlock()

	slog.Info("position closed",
		append([]any{
			slog.String("symbol", symbol),
			slog.String("reason", reason),
			slog.Float64("exit", price),
			slog.Float64("pnl", closed.PnL),
			slog.Float64("balance", balance),
		}, logger.LogWithTrace(ctx)...)...)

	if e.mtr != nil {
		e.mtr.PositionsClosed.WithLabelValues(symbol, reason).Inc()
		e.mtr.OpenPositions.Set(float64(len(e.book.OpenPositions())))
		e.mtr.RealizedPnL.Add(closed.PnL)
	}
	if e.mirror != nil {
		e.mirror.WritePosition(&closed)
	}
	if e.hub != nil {
		e.hub.BroadcastPosition(&closed)
	}
	if e.notifier != nil {
		e.notifier.Send(ctx, notification.PositionClosedAlert(&closed))
	}
	return nil
}
