package engine

import (
	"context"
	"testing"
	"time"

	"trading-botv1/internal/ledger"
	"trading-botv1/internal/model"
	"trading-botv1/internal/signal"
)

type fakeMarket struct {
	candles []model.Candle
	err     error
}

func (f *fakeMarket) GetKlineData(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Candle, len(f.candles))
	for i, c := range f.candles {
		c.Symbol = symbol
		out[i] = c
	}
	return out, nil
}

type fakeStore struct {
	upserted  []model.Candle
	signals   []model.SignalRecord
	inserted  []model.Position
	updated   []model.Position
	closed    []model.Position
	nextID    int64
}

func (f *fakeStore) UpsertCandles(batch []model.Candle) error {
	f.upserted = append(f.upserted, batch...)
	return nil
}

func (f *fakeStore) InsertSignal(rec model.SignalRecord) (int64, error) {
	f.signals = append(f.signals, rec)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) InsertPosition(p *model.Position) (int64, error) {
	f.inserted = append(f.inserted, *p)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) UpdatePosition(p *model.Position) error {
	f.updated = append(f.updated, *p)
	return nil
}

func (f *fakeStore) ClosePosition(p *model.Position) error {
	f.closed = append(f.closed, *p)
	return nil
}

func closeTo(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func bars(n int, startPrice float64) []model.Candle {
	out := make([]model.Candle, n)
	price := startPrice
	for i := 0; i < n; i++ {
		out[i] = model.Candle{
			Timestamp: int64(1700000000 + i*3600),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    10,
		}
		price += 0.5
	}
	return out
}

func trainedModel(t *testing.T) *signal.Model {
	t.Helper()
	mdl := signal.NewModel(signal.FixedScoring{Weight: 1, Accuracy: 0.8}, []string{"close"})
	_, err := mdl.Train(map[string][]float64{"close": {-1, 0, 1}}, []int{0, 1, 1})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return mdl
}

func newTestEngine(t *testing.T, store *fakeStore, market *fakeMarket) *Engine {
	t.Helper()
	cfg := Config{
		Symbols:      []string{"BTCUSDT"},
		Timeframe:    "1hour",
		TickInterval: time.Minute,
		RiskPerTrade: 0.02,
		DemoMode:     true,
		DemoBalance:  100.0,
	}
	e := New(cfg, market, store, trainedModel(t), ledger.New())
	// Pin the clock inside a trading window (hour 12, 12%4 == 0)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestApplyGatesLowConfidence(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	pred := model.Prediction{Signal: model.SignalBuy, Confidence: 0.65, Score: 0.15}
	if err := e.Apply(context.Background(), "BTCUSDT", pred, 50000); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(store.signals) != 0 {
		t.Errorf("gated signal was recorded: %+v", store.signals)
	}
	if len(store.inserted) != 0 {
		t.Errorf("gated signal opened a position: %+v", store.inserted)
	}
	if e.Balance() != 100.0 {
		t.Errorf("balance changed on gated signal: %v", e.Balance())
	}
}

func TestApplyOpensLongPosition(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	pred := model.Prediction{Signal: model.SignalBuy, Confidence: 0.8, Score: 0.3}
	if err := e.Apply(context.Background(), "BTCUSDT", pred, 100); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(store.signals) != 1 {
		t.Fatalf("expected 1 recorded signal, got %d", len(store.signals))
	}
	if store.signals[0].SignalType != model.SignalBuy || store.signals[0].Price != 100 {
		t.Errorf("signal record: %+v", store.signals[0])
	}

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 position, got %d", len(store.inserted))
	}
	pos := store.inserted[0]
	if pos.Side != model.SideLong {
		t.Errorf("side: got %s", pos.Side)
	}
	// 2% of the 100.0 balance at price 100
	if !closeTo(pos.Quantity, 0.02) {
		t.Errorf("quantity: got %v, want 0.02", pos.Quantity)
	}
	if pos.InitialSL != 98 || pos.TP1Price != 103 || pos.TP2Price != 105 || pos.TP3Price != 108 {
		t.Errorf("levels: SL=%v TP=%v/%v/%v", pos.InitialSL, pos.TP1Price, pos.TP2Price, pos.TP3Price)
	}
	if !closeTo(e.Balance(), 98) {
		t.Errorf("balance after open: got %v, want 98", e.Balance())
	}
}

func TestApplySellOpensShortInDemoMode(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	pred := model.Prediction{Signal: model.SignalSell, Confidence: 0.85, Score: -0.35}
	if err := e.Apply(context.Background(), "ETHUSDT", pred, 200); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(store.inserted) != 1 || store.inserted[0].Side != model.SideShort {
		t.Fatalf("expected SHORT position, got %+v", store.inserted)
	}
	pos := store.inserted[0]
	if pos.InitialSL != 204 || pos.TP1Price != 194 {
		t.Errorf("short levels: SL=%v TP1=%v", pos.InitialSL, pos.TP1Price)
	}
}

func TestApplySellWithoutPositionIsNoopLive(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})
	e.cfg.DemoMode = false

	pred := model.Prediction{Signal: model.SignalSell, Confidence: 0.85, Score: -0.35}
	if err := e.Apply(context.Background(), "BTCUSDT", pred, 100); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(store.signals) != 1 {
		t.Errorf("signal should still be recorded, got %d", len(store.signals))
	}
	if len(store.inserted) != 0 {
		t.Errorf("live SELL with no position opened one: %+v", store.inserted)
	}
}

func TestApplyReversalClosesOnly(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	buy := model.Prediction{Signal: model.SignalBuy, Confidence: 0.8, Score: 0.3}
	if err := e.Apply(context.Background(), "BTCUSDT", buy, 100); err != nil {
		t.Fatalf("open long: %v", err)
	}

	sell := model.Prediction{Signal: model.SignalSell, Confidence: 0.9, Score: -0.4}
	if err := e.Apply(context.Background(), "BTCUSDT", sell, 104); err != nil {
		t.Fatalf("reversal: %v", err)
	}

	if len(store.closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(store.closed))
	}
	if store.closed[0].CloseReason != "signal_reversal" {
		t.Errorf("close reason: got %q", store.closed[0].CloseReason)
	}
	// The close is the whole action: no opposite entry on the same signal.
	if len(store.inserted) != 1 {
		t.Fatalf("expected no new position after the reversal, got %d opens", len(store.inserted))
	}
	if _, open := e.book.Get("BTCUSDT"); open {
		t.Error("position still open after reversal close")
	}

	// Balance settles at start + realized PnL: notional back plus 0.02*4 gain.
	qty := 100.0 * 0.02 / 100
	wantBalance := 100.0 + qty*(104-100)
	if !closeTo(e.Balance(), wantBalance) {
		t.Errorf("balance = %v, want %v", e.Balance(), wantBalance)
	}
}

func TestApplyReversalClosesShortOnBuy(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	sell := model.Prediction{Signal: model.SignalSell, Confidence: 0.8, Score: -0.3}
	if err := e.Apply(context.Background(), "ETHUSDT", sell, 200); err != nil {
		t.Fatalf("open short: %v", err)
	}

	buy := model.Prediction{Signal: model.SignalBuy, Confidence: 0.9, Score: 0.4}
	if err := e.Apply(context.Background(), "ETHUSDT", buy, 196); err != nil {
		t.Fatalf("reversal: %v", err)
	}

	if len(store.closed) != 1 || store.closed[0].CloseReason != "signal_reversal" {
		t.Fatalf("expected one signal_reversal close, got %+v", store.closed)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected no LONG after closing the short, got %d opens", len(store.inserted))
	}
	if _, open := e.book.Get("ETHUSDT"); open {
		t.Error("position still open after reversal close")
	}
}

func TestApplySameSideSignalKeepsPosition(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	buy := model.Prediction{Signal: model.SignalBuy, Confidence: 0.8, Score: 0.3}
	if err := e.Apply(context.Background(), "BTCUSDT", buy, 100); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := e.Apply(context.Background(), "BTCUSDT", buy, 101); err != nil {
		t.Fatalf("repeat: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Errorf("same-side signal opened another position: %d", len(store.inserted))
	}
	if len(store.closed) != 0 {
		t.Errorf("same-side signal closed the position")
	}
}

func TestCheckExitsStopLoss(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	buy := model.Prediction{Signal: model.SignalBuy, Confidence: 0.8, Score: 0.3}
	if err := e.Apply(context.Background(), "BTCUSDT", buy, 100); err != nil {
		t.Fatalf("open: %v", err)
	}
	balanceAfterOpen := e.Balance()

	// Price drops through the 98 stop
	if err := e.checkExits(context.Background(), "BTCUSDT", 97); err != nil {
		t.Fatalf("check exits: %v", err)
	}

	if len(store.closed) != 1 || store.closed[0].CloseReason != "SL" {
		t.Fatalf("expected SL close, got %+v", store.closed)
	}
	if store.closed[0].PnL >= 0 {
		t.Errorf("stop-loss close should realize a loss, got %v", store.closed[0].PnL)
	}

	// Balance gets the entry notional back minus the loss
	want := balanceAfterOpen + store.closed[0].Quantity*100 + store.closed[0].PnL
	if got := e.Balance(); !closeTo(got, want) {
		t.Errorf("balance after SL: got %v, want %v", got, want)
	}
}

func TestCheckExitsTP3(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	buy := model.Prediction{Signal: model.SignalBuy, Confidence: 0.8, Score: 0.3}
	if err := e.Apply(context.Background(), "BTCUSDT", buy, 100); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Price clears all three take-profit levels
	if err := e.checkExits(context.Background(), "BTCUSDT", 109); err != nil {
		t.Fatalf("check exits: %v", err)
	}

	if len(store.closed) != 1 || store.closed[0].CloseReason != "TP3" {
		t.Fatalf("expected TP3 close, got %+v", store.closed)
	}
	if store.closed[0].PnL <= 0 {
		t.Errorf("TP3 close should realize a gain, got %v", store.closed[0].PnL)
	}
}

func TestCheckExitsNoPositionIsNoop(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store, &fakeMarket{})

	if err := e.checkExits(context.Background(), "BTCUSDT", 100); err != nil {
		t.Fatalf("check exits: %v", err)
	}
	if len(store.updated) != 0 || len(store.closed) != 0 {
		t.Errorf("no-position mark touched the store")
	}
}

func TestCycleSkipsInsufficientHistory(t *testing.T) {
	store := &fakeStore{}
	market := &fakeMarket{candles: bars(30, 100)}
	e := newTestEngine(t, store, market)

	if err := e.Cycle(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(store.upserted) != 30 {
		t.Errorf("short history should still be persisted, got %d", len(store.upserted))
	}
	if len(store.signals) != 0 || len(store.inserted) != 0 {
		t.Errorf("short history produced trading activity")
	}
}

func TestCycleOutsideTradingWindowOnlyRefreshes(t *testing.T) {
	store := &fakeStore{}
	market := &fakeMarket{candles: bars(60, 100)}
	e := newTestEngine(t, store, market)
	// Hour 13 is off the 4h boundary
	e.now = func() time.Time { return time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC) }

	if err := e.Cycle(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(store.upserted) != 60 {
		t.Errorf("candles not persisted off-window")
	}
	if len(store.signals) != 0 {
		t.Errorf("signal acted on outside the trading window")
	}
}

func TestTradingWindowBoundaries(t *testing.T) {
	e := newTestEngine(t, &fakeStore{}, &fakeMarket{})

	for _, hour := range []int{0, 4, 8, 12, 16, 20} {
		if !e.tradingWindow(time.Date(2026, 3, 1, hour, 30, 0, 0, time.UTC)) {
			t.Errorf("hour %d should be a trading window", hour)
		}
	}
	for _, hour := range []int{1, 3, 7, 13, 23} {
		if e.tradingWindow(time.Date(2026, 3, 1, hour, 0, 0, 0, time.UTC)) {
			t.Errorf("hour %d should not be a trading window", hour)
		}
	}
}
