// Package engine runs the polling orchestrator: fetch candles, compute
// indicators, ask the model for a signal, and manage the position book.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trading-botv1/internal/indicator"
	"trading-botv1/internal/ledger"
	"trading-botv1/internal/logger"
	"trading-botv1/internal/metrics"
	"trading-botv1/internal/model"
	"trading-botv1/internal/notification"
	"trading-botv1/internal/signal"
	"trading-botv1/internal/store/redis"
)

const (
	fetchLimit = 200 // candles requested from the exchange per cycle
	minHistory = 50  // bars required before a symbol is scored
)

// MarketData is the slice of the exchange client the engine needs.
type MarketData interface {
	GetKlineData(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
}

// Store is the slice of the SQLite store the engine needs.
type Store interface {
	UpsertCandles(batch []model.Candle) error
	InsertSignal(rec model.SignalRecord) (int64, error)
	InsertPosition(p *model.Position) (int64, error)
	UpdatePosition(p *model.Position) error
	ClosePosition(p *model.Position) error
}

// Mirror is the Redis write surface; a nil Mirror disables mirroring.
type Mirror interface {
	WriteStatus(st redis.SymbolStatus) error
	WriteSignal(rec model.SignalRecord) error
	WritePosition(p *model.Position) error
}

// Broadcaster pushes live events to dashboard clients.
type Broadcaster interface {
	BroadcastSignal(rec model.SignalRecord)
	BroadcastPosition(p *model.Position)
}

// Config configures the engine.
type Config struct {
	Symbols      []string
	Timeframe    string
	TickInterval time.Duration
	RiskPerTrade float64
	DemoMode     bool
	DemoBalance  float64
}

// Engine polls each configured symbol on a shared ticker and applies the
// model's signals to the position book.
type Engine struct {
	cfg    Config
	market MarketData
	store  Store
	mdl    *signal.Model
	book   *ledger.Ledger

	mirror   Mirror                // optional
	hub      Broadcaster           // optional
	notifier notification.Notifier // optional
	mtr      *metrics.Metrics      // optional

	mu      sync.Mutex
	balance float64

	now func() time.Time // injectable for the trading-window gate
}

// New creates an engine. Mirror, hub, notifier, and mtr may each be nil.
func New(cfg Config, market MarketData, store Store, mdl *signal.Model, book *ledger.Ledger) *Engine {
	return &Engine{
		cfg:     cfg,
		market:  market,
		store:   store,
		mdl:     mdl,
		book:    book,
		balance: cfg.DemoBalance,
		now:     time.Now,
	}
}

// WithMirror attaches the Redis mirror.
func (e *Engine) WithMirror(m Mirror) *Engine { e.mirror = m; return e }

// WithBroadcaster attaches the dashboard hub.
func (e *Engine) WithBroadcaster(b Broadcaster) *Engine { e.hub = b; return e }

// WithNotifier attaches the alert channel.
func (e *Engine) WithNotifier(n notification.Notifier) *Engine { e.notifier = n; return e }

// WithMetrics attaches Prometheus metrics.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine { e.mtr = m; return e }

// Balance returns the current demo balance.
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// Run polls every symbol once immediately, then on each tick until ctx is
// cancelled. Symbols are processed sequentially; a failing symbol never
// blocks the others past its own cycle.
func (e *Engine) Run(ctx context.Context) {
	e.pollAll(ctx)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			e.pollAll(ctx)
		}
	}
}

func (e *Engine) pollAll(ctx context.Context) {
	for _, symbol := range e.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := e.Cycle(ctx, symbol); err != nil {
			slog.Error("cycle failed", slog.String("symbol", symbol), slog.String("err", err.Error()))
		}
	}
}

// Cycle runs one full pass for a symbol: fetch, persist, score, and apply.
func (e *Engine) Cycle(ctx context.Context, symbol string) error {
	start := e.now()
	ctx = logger.WithTraceID(ctx, logger.CycleTraceID(symbol, start))

	candles, err := e.market.GetKlineData(ctx, symbol, e.cfg.Timeframe, fetchLimit)
	if err != nil {
		if e.mtr != nil {
			e.mtr.FetchErrors.WithLabelValues(symbol).Inc()
		}
		return fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if e.mtr != nil {
		e.mtr.CandlesFetched.Add(float64(len(candles)))
	}

	if err := e.store.UpsertCandles(candles); err != nil {
		return fmt.Errorf("persist %s: %w", symbol, err)
	}

	if len(candles) < minHistory {
		slog.Warn("insufficient history, skipping",
			append([]any{slog.String("symbol", symbol), slog.Int("bars", len(candles))}, logger.LogWithTrace(ctx)...)...)
		if e.mtr != nil {
			e.mtr.SkippedSymbols.Inc()
		}
		return nil
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	price := candles[len(candles)-1].Close

	// Mark and possibly exit an open position before scoring a new signal
	if err := e.checkExits(ctx, symbol, price); err != nil {
		return err
	}

	series := indicator.Calculate(candles)
	if len(series) == 0 {
		return nil
	}
	feats := indicator.Latest(series)

	pred, err := e.mdl.Predict(feats)
	if err != nil {
		return fmt.Errorf("predict %s: %w", symbol, err)
	}

	if e.mirror != nil {
		e.mirror.WriteStatus(redis.SymbolStatus{
			Symbol:     symbol,
			LastPrice:  price,
			Signal:     string(pred.Signal),
			Confidence: pred.Confidence,
			BarCount:   len(candles),
			UpdatedAt:  e.now().UTC(),
		})
	}

	if e.mtr != nil {
		e.mtr.CyclesTotal.WithLabelValues(symbol).Inc()
		e.mtr.CycleDur.Observe(time.Since(start).Seconds())
	}

	// Trading is aligned to 4h boundaries; off-boundary cycles only refresh
	// candles and position marks.
	if !e.tradingWindow(start) {
		return nil
	}

	return e.Apply(ctx, symbol, pred, price)
}

// tradingWindow reports whether signals may be acted on at time t.
func (e *Engine) tradingWindow(t time.Time) bool {
	return t.Hour()%4 == 0
}

// Apply takes a prediction for a symbol at the given price through the
// confidence gate and into the position book.
func (e *Engine) Apply(ctx context.Context, symbol string, pred model.Prediction, price float64) error {
	if e.mtr != nil {
		e.mtr.SignalsTotal.WithLabelValues(symbol, string(pred.Signal)).Inc()
	}

	if pred.Signal == model.SignalHold {
		return nil
	}

	if pred.Confidence < e.mdl.ConfidenceThreshold() {
		slog.Info("signal below confidence threshold",
			append([]any{
				slog.String("symbol", symbol),
				slog.String("signal", string(pred.Signal)),
				slog.Float64("confidence", pred.Confidence),
				slog.Float64("threshold", e.mdl.ConfidenceThreshold()),
			}, logger.LogWithTrace(ctx)...)...)
		if e.mtr != nil {
			e.mtr.SignalsGated.Inc()
		}
		return nil
	}

	rec := model.SignalRecord{
		Symbol:       symbol,
		SignalType:   pred.Signal,
		Confidence:   pred.Confidence,
		Price:        price,
		ModelVersion: e.mdl.Version(),
		CreatedAt:    e.now().UTC(),
	}
	id, err := e.store.InsertSignal(rec)
	if err != nil {
		return fmt.Errorf("record signal %s: %w", symbol, err)
	}
	rec.ID = id

	if e.mtr != nil {
		e.mtr.SignalsExecuted.Inc()
	}
	if e.mirror != nil {
		e.mirror.WriteSignal(rec)
	}
	if e.hub != nil {
		e.hub.BroadcastSignal(rec)
	}
	if e.notifier != nil {
		e.notifier.Send(ctx, notification.SignalAlert(rec))
	}

	return e.applyToBook(ctx, symbol, pred, price)
}

// applyToBook opens, reverses, or ignores a position according to the signal.
func (e *Engine) applyToBook(ctx context.Context, symbol string, pred model.Prediction, price float64) error {
	pos, exists := e.book.Get(symbol)

	if exists {
		opposing := (pos.Side == model.SideLong && pred.Signal == model.SignalSell) ||
			(pos.Side == model.SideShort && pred.Signal == model.SignalBuy)
		if !opposing {
			return nil
		}
		// High-confidence reversal closes the position at market. The close is
		// the whole action for this cycle; the opposite side is not entered.
		return e.closePosition(ctx, symbol, price, "signal_reversal")
	}

	side := model.SideLong
	if pred.Signal == model.SignalSell {
		if !e.cfg.DemoMode {
			// Shorting is demo-only; a live SELL with no position is a no-op
			return nil
		}
		side = model.SideShort
	}

	e.mu.Lock()
	notional := e.balance * e.cfg.RiskPerTrade
	e.mu.Unlock()
	if notional <= 0 || price <= 0 {
		return nil
	}
	quantity := notional / price

	opened, err := e.book.Open(symbol, side, quantity, price, pred.Confidence)
	if err != nil {
		return fmt.Errorf("open %s: %w", symbol, err)
	}

	id, err := e.store.InsertPosition(&opened)
	if err != nil {
		return fmt.Errorf("persist position %s: %w", symbol, err)
	}
	e.book.SetID(symbol, id)
	opened.ID = id

	e.mu.Lock()
	e.balance -= notional
	e.mu.Unlock()

	slog.Info("position opened",
		append([]any{
			slog.String("symbol", symbol),
			slog.String("side", string(side)),
			slog.Float64("qty", quantity),
			slog.Float64("entry", price),
		}, logger.LogWithTrace(ctx)...)...)

	if e.mtr != nil {
		e.mtr.PositionsOpened.WithLabelValues(symbol, string(side)).Inc()
		e.mtr.OpenPositions.Set(float64(len(e.book.OpenPositions())))
	}
	if e.mirror != nil {
		e.mirror.WritePosition(&opened)
	}
	if e.hub != nil {
		e.hub.BroadcastPosition(&opened)
	}
	if e.notifier != nil {
		e.notifier.Send(ctx, notification.PositionOpenedAlert(&opened))
	}
	return nil
}
