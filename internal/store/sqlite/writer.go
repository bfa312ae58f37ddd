package sqlite

import (
	"fmt"
	"log"
	"strings"
	"time"

	"trading-botv1/internal/model"
	"trading-botv1/internal/signal"
)

// UpsertCandle stores one candle, replacing any existing row for the same
// symbol and timestamp.
func (s *Store) UpsertCandle(c model.Candle) error {
	_, err := s.db.Exec(`
		INSERT INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`, c.Symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("upsert candle %s@%d: %w", c.Symbol, c.Timestamp, err)
	}
	return nil
}

// UpsertCandles stores a batch of candles in a single transaction. A fetch
// from the exchange carries up to 200 rows; one transaction per batch keeps
// the WAL churn down.
func (s *Store) UpsertCandles(batch []model.Candle) error {
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin candle batch: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare candle batch: %w", err)
	}
	defer stmt.Close()

	for _, c := range batch {
		if _, err := stmt.Exec(c.Symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec candle %s@%d: %w", c.Symbol, c.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit candle batch: %w", err)
	}
	log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
	return nil
}

// InsertSignal records an emitted trading signal and returns its row id.
func (s *Store) InsertSignal(rec model.SignalRecord) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO trading_signals (symbol, signal_type, confidence, price, model_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Symbol, rec.SignalType, rec.Confidence, rec.Price, rec.ModelVersion, rec.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert signal %s: %w", rec.Symbol, err)
	}
	return res.LastInsertId()
}

// InsertPosition records a newly opened position and returns its row id.
func (s *Store) InsertPosition(p *model.Position) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO positions (
			symbol, side, quantity, entry_price, current_price, confidence,
			initial_sl, current_sl, tp1_price, tp2_price, tp3_price,
			status, opened_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice, p.Confidence,
		p.InitialSL, p.CurrentSL, p.TP1Price, p.TP2Price, p.TP3Price,
		p.Status, p.OpenedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert position %s: %w", p.Symbol, err)
	}
	return res.LastInsertId()
}

// UpdatePosition mirrors the live state of an open position: mark price,
// running pnl, take-profit flags, and the ratcheted stop.
func (s *Store) UpdatePosition(p *model.Position) error {
	_, err := s.db.Exec(`
		UPDATE positions SET
			current_price = ?, pnl = ?, current_sl = ?,
			tp1_hit = ?, tp2_hit = ?, tp3_hit = ?
		WHERE id = ?
	`, p.CurrentPrice, p.PnL, p.CurrentSL,
		boolInt(p.TP1Hit), boolInt(p.TP2Hit), boolInt(p.TP3Hit), p.ID)
	if err != nil {
		return fmt.Errorf("update position %d: %w", p.ID, err)
	}
	return nil
}

// ClosePosition marks a position closed with its final pnl and reason.
func (s *Store) ClosePosition(p *model.Position) error {
	_, err := s.db.Exec(`
		UPDATE positions SET
			status = ?, current_price = ?, pnl = ?, current_sl = ?,
			tp1_hit = ?, tp2_hit = ?, tp3_hit = ?,
			closed_at = ?, close_reason = ?
		WHERE id = ?
	`, model.StatusClosed, p.CurrentPrice, p.PnL, p.CurrentSL,
		boolInt(p.TP1Hit), boolInt(p.TP2Hit), boolInt(p.TP3Hit),
		p.ClosedAt.Unix(), p.CloseReason, p.ID)
	if err != nil {
		return fmt.Errorf("close position %d: %w", p.ID, err)
	}
	log.Printf("[sqlite] position %d closed: %s %s pnl=%.4f (%s)",
		p.ID, p.Symbol, p.Side, p.PnL, p.CloseReason)
	return nil
}

// InsertTrainingRun records a completed model training run.
func (s *Store) InsertTrainingRun(startedAt time.Time, version string, m signal.Metrics, features []string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO training_runs (started_at, completed_at, status, model_version, accuracy, feature_count, training_samples, selected_features)
		VALUES (?, ?, 'COMPLETED', ?, ?, ?, ?, ?)
	`, startedAt.Unix(), time.Now().Unix(), version,
		m.TrainAccuracy, m.FeatureCount, m.TrainingSamples, strings.Join(features, ","))
	if err != nil {
		return 0, fmt.Errorf("insert training run %s: %w", version, err)
	}
	return res.LastInsertId()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
