// Package bot wires the trading bot together: exchange client, stores,
// signal model, position ledger, engine, dashboard, and metrics.
package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-botv1/config"
	"trading-botv1/internal/dashboard"
	"trading-botv1/internal/engine"
	"trading-botv1/internal/exchange"
	"trading-botv1/internal/indicator"
	"trading-botv1/internal/ledger"
	"trading-botv1/internal/metrics"
	"trading-botv1/internal/model"
	"trading-botv1/internal/notification"
	"trading-botv1/internal/signal"
	redisstore "trading-botv1/internal/store/redis"
	sqlitestore "trading-botv1/internal/store/sqlite"
)

// Service is the top-level orchestrator for the trading bot.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config

	client      *exchange.Client
	store       *sqlitestore.Store
	redisWriter *redisstore.Writer
	redisReader *redisstore.Reader
	book        *ledger.Ledger
	mdl         *signal.Model
	hub         *dashboard.Hub
	prom        *metrics.Metrics
	health      *metrics.HealthStatus

	metricsSrv   *metrics.Server
	dashboardSrv *dashboard.Server
}

// New creates a new Service from the given Config.
// It connects to the exchange, SQLite, and Redis. SQLite is required; Redis
// failures are logged and the bot degrades to running without the live mirror.
func New(cfg *config.Config) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		book:   ledger.New(),
		hub:    dashboard.NewHub(),
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
	}

	svc.client = exchange.New(exchange.Config{
		BaseURL:   cfg.ExchangeBaseURL,
		APIKey:    cfg.ExchangeAPIKey,
		SecretKey: cfg.ExchangeSecretKey,
	})

	// ---- Open SQLite ----
	if err := ensureDataDir(cfg.SQLitePath); err != nil {
		return nil, err
	}
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, err
	}
	svc.store = store
	svc.health.SetSQLiteOK(true)

	// ---- Connect to Redis ----
	svc.redisWriter, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[bot] WARNING: redis writer init failed: %v (continuing without live mirror)", err)
	}

	svc.redisReader, err = redisstore.NewReader(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[bot] WARNING: redis reader init failed: %v", err)
	}

	svc.mdl = signal.NewModel(signal.NewSimulatedScoring(time.Now().UnixNano()), indicator.MustKeep())
	svc.mdl.SetConfidenceThreshold(cfg.ConfidenceThreshold)

	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	symbols := cfg.ParseSymbols()
	log.Println("[bot] starting trading bot...")

	// ---- Exchange connectivity ----
	if err := svc.client.Ping(ctx); err != nil {
		log.Printf("[bot] WARNING: exchange ping failed: %v", err)
		svc.health.SetExchangeOK(false)
	} else {
		svc.health.SetExchangeOK(true)
	}

	// ---- Restore open positions ----
	if err := svc.restorePositions(); err != nil {
		return err
	}

	// ---- Load or train the model ----
	if err := svc.ensureModel(ctx, symbols); err != nil {
		return err
	}
	svc.health.SetModelTrained(svc.mdl.Trained())
	svc.health.SetSymbols(symbols)

	// ---- Redis mirror behind a circuit breaker ----
	mirror := svc.buildMirror(ctx)

	// ---- Liveness checker ----
	var rdb *goredis.Client
	if svc.redisWriter != nil {
		rdb = svc.redisWriter.Client()
	}
	svc.health.StartLivenessChecker(ctx, rdb, svc.store.DB(), 15*time.Second)

	// ---- Metrics + health server ----
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.metricsSrv.Start()

	// ---- Dashboard ----
	sigCh := make(chan model.SignalRecord, 64)
	go svc.hub.Run(ctx, sigCh)
	if svc.redisReader != nil {
		go func() {
			if err := svc.redisReader.SubscribeSignals(ctx, sigCh); err != nil && ctx.Err() == nil {
				log.Printf("[bot] signal subscription ended: %v", err)
			}
		}()
	}
	svc.dashboardSrv = dashboard.NewServer(cfg.DashboardAddr, svc.hub, svc.store, svc.book, svc.mdl, symbols)
	svc.dashboardSrv.Start()

	// ---- Engine ----
	eng := engine.New(engine.Config{
		Symbols:      symbols,
		Timeframe:    cfg.Timeframe,
		TickInterval: cfg.TickInterval,
		RiskPerTrade: cfg.RiskPerTrade,
		DemoMode:     cfg.DemoMode,
		DemoBalance:  cfg.DemoBalance,
	}, svc.client, svc.store, svc.mdl, svc.book).
		WithBroadcaster(svc.hub).
		WithNotifier(svc.buildNotifier()).
		WithMetrics(svc.prom)
	if mirror != nil {
		eng.WithMirror(mirror)
	}
	go eng.Run(ctx)

	// ---- Startup banner ----
	mode := "LIVE"
	if cfg.DemoMode {
		mode = "DEMO"
	}
	log.Println("[bot] ╔════════════════════════════════════════════════════════╗")
	log.Printf("[bot] ║  Trading Bot Active (%s)                             ║", mode)
	log.Println("[bot] ║                                                       ║")
	log.Println("[bot] ║  [CoinEx] → [Indicators] → [Model] → [Ledger]         ║")
	log.Printf("[bot] ║  Symbols: %v            ║", symbols)
	log.Printf("[bot] ║  Tick every %s, confidence gate %.2f              ║", cfg.TickInterval, svc.mdl.ConfidenceThreshold())
	log.Println("[bot] ╚════════════════════════════════════════════════════════╝")
	log.Println("[bot] ✅ all systems running. Press Ctrl+C to stop.")

	// Block until context cancelled
	<-ctx.Done()

	svc.shutdown()
	return nil
}

// ensureDataDir creates the parent directory for a data file so a bad path
// fails here with a clear message instead of a confusing sqlite open error.
func ensureDataDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir for %s: %w", path, err)
	}
	return nil
}

// restorePositions reloads OPEN positions from SQLite into the ledger so a
// restart does not orphan TP/SL monitoring.
func (svc *Service) restorePositions() error {
	open, err := svc.store.OpenPositions()
	if err != nil {
		return err
	}
	for _, pos := range open {
		if err := svc.book.Restore(pos); err != nil {
			log.Printf("[bot] WARNING: skipping restore of %s position: %v", pos.Symbol, err)
		}
	}
	if len(open) > 0 {
		log.Printf("[bot] restored %d open position(s) from sqlite", len(open))
	}
	return nil
}

// buildMirror wraps the Redis writer in a circuit breaker with buffered
// replay. Returns nil when Redis is unavailable.
func (svc *Service) buildMirror(ctx context.Context) *redisstore.BufferedWriter {
	if svc.redisWriter == nil {
		return nil
	}

	cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Printf("[bot] redis circuit breaker: %s → %s", from, to)
	}

	bw := redisstore.NewBufferedWriter(ctx, svc.redisWriter, cb, 1000)
	bw.OnBuffer = func() { svc.prom.RedisBufferedWrites.Inc() }
	bw.OnFlush = func(count int) {
		log.Printf("[bot] flushed %d buffered redis writes", count)
	}
	return bw
}

// buildNotifier assembles the alert fan-out from configuration. The log
// backend is always present.
func (svc *Service) buildNotifier() notification.Notifier {
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if svc.cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(svc.cfg.WebhookURL))
	}
	if svc.cfg.TelegramBotToken != "" && svc.cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(svc.cfg.TelegramBotToken, svc.cfg.TelegramChatID))
	}
	return notification.NewMultiNotifier(backends...)
}

// shutdown stops the HTTP servers and closes connections.
func (svc *Service) shutdown() {
	log.Println("[bot] shutdown signal received...")

	if err := svc.mdl.Save(svc.cfg.ModelPath); err != nil {
		log.Printf("[bot] WARNING: model save failed: %v", err)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()

	if svc.dashboardSrv != nil {
		svc.dashboardSrv.Stop(shutCtx)
	}
	if svc.metricsSrv != nil {
		svc.metricsSrv.Stop(shutCtx)
	}
	if svc.redisReader != nil {
		svc.redisReader.Close()
	}
	if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
	svc.store.Close()

	log.Println("[bot] shutdown complete.")
}
