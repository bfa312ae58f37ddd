package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trading-botv1/config"
	"trading-botv1/internal/bot"
	"trading-botv1/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("trading-bot", slog.LevelInfo)

	cfg := config.Load()
	log.Printf("[bot] symbols: %s, timeframe: %s, demo: %v", cfg.Symbols, cfg.Timeframe, cfg.DemoMode)

	svc, err := bot.New(cfg)
	if err != nil {
		log.Fatalf("[bot] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[bot] fatal: %v", err)
	}
}
