package bot

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trading-botv1/config"
	"trading-botv1/internal/exchange"
	"trading-botv1/internal/indicator"
	"trading-botv1/internal/ledger"
	"trading-botv1/internal/metrics"
	"trading-botv1/internal/model"
	"trading-botv1/internal/signal"
	sqlitestore "trading-botv1/internal/store/sqlite"
)

// NewMetrics registers on the default prometheus registry, so the test binary
// gets exactly one instance.
var testMetrics = metrics.NewMetrics()

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: filepath.Join(dir, "bot.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Load()
	cfg.SQLitePath = filepath.Join(dir, "bot.db")
	cfg.ModelPath = filepath.Join(dir, "model.json")

	return &Service{
		cfg:    cfg,
		client: exchange.New(exchange.Config{BaseURL: "http://127.0.0.1:1/"}),
		store:  store,
		book:   ledger.New(),
		mdl:    signal.NewModel(signal.FixedScoring{Weight: 0.8, Accuracy: 0.8}, indicator.MustKeep()),
		prom:   testMetrics,
	}
}

func seedCandles(t *testing.T, svc *Service, symbol string, n int) {
	t.Helper()
	bars := make([]model.Candle, n)
	price := 100.0
	for i := range bars {
		// Alternate strong up-moves with drift so both target labels appear.
		if i%5 == 0 {
			price *= 1.03
		} else {
			price *= 0.999
		}
		bars[i] = model.Candle{
			Symbol:    symbol,
			Timestamp: int64(1700000000 + i*3600),
			Open:      price * 0.999,
			High:      price * 1.001,
			Low:       price * 0.998,
			Close:     price,
			Volume:    10,
		}
	}
	if err := svc.store.UpsertCandles(bars); err != nil {
		t.Fatalf("seed candles: %v", err)
	}
}

func TestLabelSeriesThresholds(t *testing.T) {
	series := map[string][]float64{
		"close": {100, 103, 103.5, 101, 104},
		"sma_5": {1, 2, 3, 4, 5},
	}
	feats, targets := labelSeries(series)

	want := []int{1, 0, 0, 1} // +3%, +0.49%, -2.4%, +2.97%
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("targets = %v, want %v", targets, want)
		}
	}
	for name, values := range feats {
		if len(values) != len(targets) {
			t.Fatalf("feature %q has %d rows for %d targets", name, len(values), len(targets))
		}
	}
}

func TestLabelSeriesZeroCloseIsFlat(t *testing.T) {
	_, targets := labelSeries(map[string][]float64{
		"close": {100, 0, 105, 108.5},
	})

	// The bar after a zero close labels 0 instead of producing an Inf change.
	want := []int{0, 0, 1}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("targets = %v, want %v", targets, want)
		}
	}
}

func TestLabelSeriesTooShort(t *testing.T) {
	feats, targets := labelSeries(map[string][]float64{"close": {100}})
	if feats != nil || targets != nil {
		t.Fatalf("expected nil output for single-bar series")
	}
}

func TestTrainModelFromStoredCandles(t *testing.T) {
	svc := newTestService(t)
	seedCandles(t, svc, "BTCUSDT", 150)

	if err := svc.trainModel(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("trainModel: %v", err)
	}
	if !svc.mdl.Trained() {
		t.Fatal("model not trained")
	}

	runs, err := svc.store.RecentTrainingRuns(5)
	if err != nil {
		t.Fatalf("RecentTrainingRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d training runs, want 1", len(runs))
	}
	if runs[0].ModelVersion != svc.mdl.Version() {
		t.Fatalf("recorded version %q, model version %q", runs[0].ModelVersion, svc.mdl.Version())
	}
	if runs[0].TrainingSamples < 100 {
		t.Fatalf("training samples = %d, want >= 100", runs[0].TrainingSamples)
	}
}

func TestTrainModelNoDataFails(t *testing.T) {
	svc := newTestService(t)
	if err := svc.trainModel(context.Background(), []string{"BTCUSDT"}); err == nil {
		t.Fatal("expected error with no stored candles and no exchange")
	}
}

func TestEnsureModelLoadsSavedModel(t *testing.T) {
	svc := newTestService(t)
	seedCandles(t, svc, "ETHUSDT", 150)
	if err := svc.trainModel(context.Background(), []string{"ETHUSDT"}); err != nil {
		t.Fatalf("trainModel: %v", err)
	}
	savedVersion := svc.mdl.Version()

	restarted := newTestService(t)
	restarted.cfg.ModelPath = svc.cfg.ModelPath
	if err := restarted.ensureModel(context.Background(), []string{"ETHUSDT"}); err != nil {
		t.Fatalf("ensureModel: %v", err)
	}
	if !restarted.mdl.Trained() {
		t.Fatal("restored model not trained")
	}
	if restarted.mdl.Version() != savedVersion {
		t.Fatalf("restored version %q, want %q", restarted.mdl.Version(), savedVersion)
	}
}

func TestEnsureDataDirBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	// Parent of the db path is a regular file, so MkdirAll must fail.
	err := ensureDataDir(filepath.Join(blocker, "bot.db"))
	if err == nil {
		t.Fatal("expected error when the data dir parent is a file")
	}
	if !strings.Contains(err.Error(), "create data dir") {
		t.Errorf("error %q does not name the data dir", err)
	}

	if err := ensureDataDir(filepath.Join(dir, "nested", "bot.db")); err != nil {
		t.Fatalf("ensureDataDir on a writable dir: %v", err)
	}
}

func TestRestorePositionsReloadsLedger(t *testing.T) {
	svc := newTestService(t)
	pos := model.Position{
		Symbol:     "SOLUSDT",
		Side:       model.SideLong,
		Quantity:   2,
		EntryPrice: 100,
		CurrentSL:  100, // breakeven stop already ratcheted
		TP1Price:   103,
		TP2Price:   105,
		TP3Price:   108,
		TP1Hit:     true,
		Status:     model.StatusOpen,
	}
	id, err := svc.store.InsertPosition(&pos)
	if err != nil {
		t.Fatalf("InsertPosition: %v", err)
	}

	if err := svc.restorePositions(); err != nil {
		t.Fatalf("restorePositions: %v", err)
	}
	got, ok := svc.book.Get("SOLUSDT")
	if !ok {
		t.Fatal("position not restored into ledger")
	}
	if got.ID != id {
		t.Fatalf("restored ID = %d, want %d", got.ID, id)
	}
	if !got.TP1Hit || math.Abs(got.CurrentSL-100) > 1e-9 {
		t.Fatalf("restored position lost ratchet state: %+v", got)
	}
}
