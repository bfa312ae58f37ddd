package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Exchange credentials (optional; demo mode works without them)
	ExchangeAPIKey    string
	ExchangeSecretKey string
	ExchangeBaseURL   string

	// Trading
	Symbols             string // comma-separated, e.g. "BTCUSDT,ETHUSDT"
	Timeframe           string // exchange kline interval, e.g. "1hour"
	DemoMode            bool
	DemoBalance         float64
	RiskPerTrade        float64
	ConfidenceThreshold float64
	TickInterval        time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	ModelPath     string
	MetricsAddr   string
	DashboardAddr string

	// Notifications (optional)
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ExchangeAPIKey:    getEnv("COINEX_API_KEY", ""),
		ExchangeSecretKey: getEnv("COINEX_SECRET_KEY", ""),
		ExchangeBaseURL:   getEnv("COINEX_BASE_URL", ""),

		Symbols:             getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT,DOGEUSDT"),
		Timeframe:           getEnv("TIMEFRAME", "1hour"),
		DemoMode:            getBool("DEMO_MODE", true),
		DemoBalance:         getFloat("DEMO_BALANCE", 100.0),
		RiskPerTrade:        getFloat("RISK_PER_TRADE", 0.02),
		ConfidenceThreshold: getFloat("CONFIDENCE_THRESHOLD", 0.7),
		TickInterval:        getDuration("TICK_INTERVAL", 60*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trading_bot.db"),
		ModelPath:     getEnv("MODEL_PATH", "data/model.json"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		DashboardAddr: getEnv("DASHBOARD_ADDR", ":8080"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// ParseSymbols splits the Symbols string into a cleaned list of trading pairs.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		symbols = append(symbols, p)
	}
	return symbols
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
