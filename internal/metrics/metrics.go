package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading bot.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec // labels: symbol
	CycleDur        prometheus.Histogram
	CandlesFetched  prometheus.Counter
	FetchErrors     *prometheus.CounterVec // labels: symbol
	SkippedSymbols  prometheus.Counter     // cycles skipped for insufficient history

	SignalsTotal    *prometheus.CounterVec // labels: symbol, signal
	SignalsExecuted prometheus.Counter     // signals passing the confidence gate
	SignalsGated    prometheus.Counter     // signals below the confidence threshold

	PositionsOpened *prometheus.CounterVec // labels: symbol, side
	PositionsClosed *prometheus.CounterVec // labels: symbol, reason
	OpenPositions   prometheus.Gauge
	UnrealizedPnL   prometheus.Gauge
	RealizedPnL     prometheus.Gauge

	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	TrainingRunsTotal prometheus.Counter
	ModelAccuracy     prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Polling cycles completed per symbol",
		}, []string{"symbol"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_cycle_duration_seconds",
			Help:    "Full polling cycle latency per symbol",
			Buckets: prometheus.DefBuckets,
		}),
		CandlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_candles_fetched_total",
			Help: "Candles fetched from the exchange",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_fetch_errors_total",
			Help: "Exchange fetch failures per symbol",
		}, []string{"symbol"}),
		SkippedSymbols: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_cycles_skipped_total",
			Help: "Cycles skipped because a symbol had too little history",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Signals produced by the model (by symbol and type)",
		}, []string{"symbol", "signal"}),
		SignalsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_signals_executed_total",
			Help: "Signals at or above the confidence threshold",
		}),
		SignalsGated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_signals_gated_total",
			Help: "Signals discarded below the confidence threshold",
		}),

		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_positions_opened_total",
			Help: "Positions opened (by symbol and side)",
		}, []string{"symbol", "side"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_positions_closed_total",
			Help: "Positions closed (by symbol and close reason)",
		}, []string{"symbol", "reason"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Currently open positions",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_unrealized_pnl",
			Help: "Mark-to-market pnl over open positions",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_realized_pnl",
			Help: "Cumulative realized pnl over closed positions",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_redis_write_duration_seconds",
			Help:    "Redis mirror write latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis circuit was open",
		}),

		TrainingRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_training_runs_total",
			Help: "Model training runs completed",
		}),
		ModelAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_model_accuracy",
			Help: "Training accuracy of the active model",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.CandlesFetched,
		m.FetchErrors,
		m.SkippedSymbols,
		m.SignalsTotal,
		m.SignalsExecuted,
		m.SignalsGated,
		m.PositionsOpened,
		m.PositionsClosed,
		m.OpenPositions,
		m.UnrealizedPnL,
		m.RealizedPnL,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.TrainingRunsTotal,
		m.ModelAccuracy,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	ExchangeOK     bool      `json:"exchange_ok"`
	LastCycleTime  time.Time `json:"last_cycle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	ModelTrained   bool      `json:"model_trained"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetExchangeOK(v bool) {
	h.mu.Lock()
	h.ExchangeOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycleTime(t time.Time) {
	h.mu.Lock()
	h.LastCycleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetModelTrained(v bool) {
	h.mu.Lock()
	h.ModelTrained = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.ExchangeOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && !h.ExchangeOK {
		overallStatus = "unhealthy"
	}

	// Cycle age
	cycleAge := ""
	if !h.LastCycleTime.IsZero() {
		cycleAge = time.Since(h.LastCycleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		ExchangeOK      bool     `json:"exchange_ok"`
		LastCycleTime   string   `json:"last_cycle_time"`
		CycleAge        string   `json:"cycle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		ModelTrained    bool     `json:"model_trained"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		ExchangeOK:      h.ExchangeOK,
		LastCycleTime:   h.LastCycleTime.Format(time.RFC3339),
		CycleAge:        cycleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		ModelTrained:    h.ModelTrained,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
