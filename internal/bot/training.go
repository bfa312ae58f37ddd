package bot

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"trading-botv1/internal/indicator"
	"trading-botv1/internal/model"
)

const (
	trainCandleLimit = 1000 // candles pulled per symbol for training
	minTrainCandles  = 100  // symbols with less stored history are skipped
	moveThreshold    = 0.02 // bar-to-bar move that labels a BUY target
)

// ensureModel loads the persisted model if one exists, otherwise trains a
// fresh one from stored candle history.
func (svc *Service) ensureModel(ctx context.Context, symbols []string) error {
	if err := svc.mdl.Load(svc.cfg.ModelPath); err == nil {
		log.Printf("[bot] loaded model %s from %s", svc.mdl.Version(), svc.cfg.ModelPath)
		return nil
	}
	return svc.trainModel(ctx, symbols)
}

// trainModel pools features and targets across all symbols, trains the model,
// records the run in SQLite, and persists the model to disk.
func (svc *Service) trainModel(ctx context.Context, symbols []string) error {
	log.Println("[bot] starting model training...")
	started := time.Now().UTC()

	pooled := make(map[string][]float64)
	var targets []int

	for _, symbol := range symbols {
		bars, err := svc.trainingBars(ctx, symbol)
		if err != nil {
			log.Printf("[bot] WARNING: training data for %s: %v", symbol, err)
			continue
		}
		if len(bars) < minTrainCandles {
			log.Printf("[bot] WARNING: not enough data for %s (%d bars)", symbol, len(bars))
			continue
		}

		series := indicator.Calculate(bars)
		feats, tgts := labelSeries(series)
		for name, values := range feats {
			pooled[name] = append(pooled[name], values...)
		}
		targets = append(targets, tgts...)
	}

	if len(targets) == 0 {
		return errors.New("bot: no usable training data for any symbol")
	}

	// Pooling across symbols can leave ragged feature columns; cut everything
	// to the shortest.
	minLen := len(targets)
	for _, values := range pooled {
		if len(values) < minLen {
			minLen = len(values)
		}
	}
	for name := range pooled {
		pooled[name] = pooled[name][:minLen]
	}
	targets = targets[:minLen]

	m, err := svc.mdl.Train(pooled, targets)
	if err != nil {
		return err
	}

	svc.prom.TrainingRunsTotal.Inc()
	svc.prom.ModelAccuracy.Set(m.TrainAccuracy)
	if _, err := svc.store.InsertTrainingRun(started, svc.mdl.Version(), m, svc.mdl.Features()); err != nil {
		log.Printf("[bot] WARNING: training run not recorded: %v", err)
	}
	if err := svc.mdl.Save(svc.cfg.ModelPath); err != nil {
		log.Printf("[bot] WARNING: model save failed: %v", err)
	}

	log.Printf("[bot] ✓ model %s trained: accuracy=%.3f features=%d samples=%d",
		svc.mdl.Version(), m.TrainAccuracy, m.FeatureCount, m.TrainingSamples)
	return nil
}

// trainingBars returns up to trainCandleLimit candles for a symbol in
// chronological order, fetching from the exchange when SQLite has too little
// history.
func (svc *Service) trainingBars(ctx context.Context, symbol string) ([]model.Candle, error) {
	bars, err := svc.store.GetCandles(symbol, trainCandleLimit)
	if err != nil {
		return nil, err
	}

	if len(bars) < minTrainCandles {
		fetched, err := svc.client.GetKlineData(ctx, symbol, svc.cfg.Timeframe, trainCandleLimit)
		if err != nil {
			return bars, err
		}
		if err := svc.store.UpsertCandles(fetched); err != nil {
			log.Printf("[bot] WARNING: persisting fetched history for %s: %v", symbol, err)
		}
		bars = fetched
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	return bars, nil
}

// labelSeries derives binary targets from bar-to-bar close moves: a move
// above moveThreshold labels 1 (BUY), anything else 0. Feature columns are
// truncated so row i predicts the move into bar i+1.
func labelSeries(series map[string][]float64) (map[string][]float64, []int) {
	closes := series["close"]
	if len(closes) < 2 {
		return nil, nil
	}

	targets := make([]int, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		// A zero close would blow up the percent change; label it flat.
		if closes[i-1] == 0 {
			targets = append(targets, 0)
			continue
		}
		change := (closes[i] - closes[i-1]) / closes[i-1]
		if change > moveThreshold {
			targets = append(targets, 1)
		} else {
			targets = append(targets, 0)
		}
	}

	feats := make(map[string][]float64, len(series))
	for name, values := range series {
		if len(values) > len(targets) {
			feats[name] = values[:len(targets)]
		} else {
			feats[name] = values
		}
	}
	return feats, targets
}
