package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"trading-botv1/internal/model"
	"trading-botv1/internal/signal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "bot.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertCandleIdempotent(t *testing.T) {
	s := openTestStore(t)

	c := model.Candle{Symbol: "BTCUSDT", Timestamp: 1700000000, Open: 100, High: 110, Low: 95, Close: 105, Volume: 12}
	if err := s.UpsertCandle(c); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Re-ingesting the same bar with revised values must replace, not duplicate
	c.Close = 106
	if err := s.UpsertCandle(c); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	n, err := s.CountCandles("BTCUSDT")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 candle after re-upsert, got %d", n)
	}

	got, err := s.GetCandles("BTCUSDT", 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got[0].Close != 106 {
		t.Errorf("expected revised close 106, got %v", got[0].Close)
	}
}

func TestGetCandlesNewestFirst(t *testing.T) {
	s := openTestStore(t)

	var batch []model.Candle
	for i := 0; i < 5; i++ {
		batch = append(batch, model.Candle{
			Symbol: "ETHUSDT", Timestamp: int64(1700000000 + i*3600),
			Open: 1, High: 2, Low: 0.5, Close: float64(i), Volume: 1,
		})
	}
	if err := s.UpsertCandles(batch); err != nil {
		t.Fatalf("batch upsert: %v", err)
	}

	got, err := s.GetCandles("ETHUSDT", 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp >= got[i-1].Timestamp {
			t.Errorf("candles not newest-first: %d before %d", got[i-1].Timestamp, got[i].Timestamp)
		}
	}

	ts, err := s.LastCandleTimestamp("ETHUSDT")
	if err != nil {
		t.Fatalf("last ts: %v", err)
	}
	if ts != 1700000000+4*3600 {
		t.Errorf("unexpected last timestamp %d", ts)
	}
}

func TestPositionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	p := &model.Position{
		Symbol: "SOLUSDT", Side: model.SideLong, Quantity: 2,
		EntryPrice: 100, CurrentPrice: 100, Confidence: 0.8,
		InitialSL: 98, CurrentSL: 98,
		TP1Price: 103, TP2Price: 105, TP3Price: 108,
		Status: model.StatusOpen, OpenedAt: time.Now().UTC(),
	}
	id, err := s.InsertPosition(p)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.ID = id

	p.CurrentPrice = 104
	p.PnL = 8
	p.TP1Hit = true
	p.CurrentSL = 100
	if err := s.UpdatePosition(p); err != nil {
		t.Fatalf("update: %v", err)
	}

	open, err := s.OpenPositions()
	if err != nil {
		t.Fatalf("open positions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
	if !open[0].TP1Hit || open[0].CurrentSL != 100 {
		t.Errorf("tp1 state not persisted: hit=%v sl=%v", open[0].TP1Hit, open[0].CurrentSL)
	}

	p.CurrentPrice = 108
	p.PnL = 16
	p.TP3Hit = true
	p.ClosedAt = time.Now().UTC()
	p.CloseReason = "TP3"
	if err := s.ClosePosition(p); err != nil {
		t.Fatalf("close: %v", err)
	}

	open, err = s.OpenPositions()
	if err != nil {
		t.Fatalf("open positions after close: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open positions, got %d", len(open))
	}

	recent, err := s.RecentPositions(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if recent[0].Status != model.StatusClosed || recent[0].CloseReason != "TP3" {
		t.Errorf("closed position not recorded: %+v", recent[0])
	}

	pnl, err := s.TotalClosedPnL()
	if err != nil {
		t.Fatalf("pnl: %v", err)
	}
	if pnl != 16 {
		t.Errorf("expected closed pnl 16, got %v", pnl)
	}
}

func TestSignalsAndTrainingRuns(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := s.InsertSignal(model.SignalRecord{
			Symbol: "BTCUSDT", SignalType: model.SignalBuy,
			Confidence: 0.75, Price: 50000, ModelVersion: "simple_20260101_000000",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert signal: %v", err)
		}
	}

	recs, err := s.RecentSignals(2)
	if err != nil {
		t.Fatalf("recent signals: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(recs))
	}
	if recs[0].CreatedAt.Before(recs[1].CreatedAt) {
		t.Errorf("signals not newest-first")
	}

	n, err := s.SignalCountSince(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 signals in window, got %d", n)
	}

	_, err = s.InsertTrainingRun(now, "simple_20260101_000000",
		signal.Metrics{TrainAccuracy: 0.82, FeatureCount: 35, TrainingSamples: 900},
		[]string{"close", "RSI_14", "MACD"})
	if err != nil {
		t.Fatalf("insert training run: %v", err)
	}

	runs, err := s.RecentTrainingRuns(5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Accuracy != 0.82 || runs[0].FeatureCount != 35 {
		t.Errorf("training run not persisted: %+v", runs)
	}
}
