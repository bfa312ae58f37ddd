package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"trading-botv1/internal/model"
)

// GetCandles returns up to limit candles for a symbol, newest first. This is
// the shape the indicator calculator expects to reverse before computing.
func (s *Store) GetCandles(symbol string, limit int) ([]model.Candle, error) {
	rows, err := s.db.Query(`
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query candles %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Symbol, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// CountCandles returns the number of stored candles for a symbol.
func (s *Store) CountCandles(symbol string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM candles WHERE symbol = ?`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count candles %s: %w", symbol, err)
	}
	return n, nil
}

// LastCandleTimestamp returns the newest stored candle timestamp for a symbol,
// or 0 if none exist.
func (s *Store) LastCandleTimestamp(symbol string) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(timestamp) FROM candles WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// RecentSignals returns the latest emitted signals, newest first.
func (s *Store) RecentSignals(limit int) ([]model.SignalRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, signal_type, confidence, price, model_version, created_at
		FROM trading_signals
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var recs []model.SignalRecord
	for rows.Next() {
		var rec model.SignalRecord
		var createdAt int64
		var version sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.SignalType, &rec.Confidence, &rec.Price, &version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		rec.ModelVersion = version.String
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SignalCountSince returns how many signals were emitted at or after t.
func (s *Store) SignalCountSince(t time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trading_signals WHERE created_at >= ?`, t.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return n, nil
}

// OpenPositions returns all positions still marked open, oldest first.
func (s *Store) OpenPositions() ([]model.Position, error) {
	return s.queryPositions(`
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = ?
		ORDER BY opened_at ASC
	`, model.StatusOpen)
}

// RecentPositions returns the latest positions regardless of status, newest first.
func (s *Store) RecentPositions(limit int) ([]model.Position, error) {
	return s.queryPositions(`
		SELECT `+positionColumns+`
		FROM positions
		ORDER BY opened_at DESC
		LIMIT ?
	`, limit)
}

const positionColumns = `id, symbol, side, quantity, entry_price, current_price, confidence,
	initial_sl, current_sl, tp1_price, tp2_price, tp3_price,
	tp1_hit, tp2_hit, tp3_hit, status, pnl, opened_at, closed_at, close_reason`

func (s *Store) queryPositions(query string, args ...any) ([]model.Position, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var currentPrice, confidence, initialSL, currentSL, tp1, tp2, tp3 sql.NullFloat64
		var tp1Hit, tp2Hit, tp3Hit int
		var openedAt int64
		var closedAt sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice,
			&currentPrice, &confidence, &initialSL, &currentSL, &tp1, &tp2, &tp3,
			&tp1Hit, &tp2Hit, &tp3Hit, &p.Status, &p.PnL, &openedAt, &closedAt, &reason); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.CurrentPrice = currentPrice.Float64
		p.Confidence = confidence.Float64
		p.InitialSL = initialSL.Float64
		p.CurrentSL = currentSL.Float64
		p.TP1Price = tp1.Float64
		p.TP2Price = tp2.Float64
		p.TP3Price = tp3.Float64
		p.TP1Hit = tp1Hit != 0
		p.TP2Hit = tp2Hit != 0
		p.TP3Hit = tp3Hit != 0
		p.OpenedAt = time.Unix(openedAt, 0).UTC()
		if closedAt.Valid {
			p.ClosedAt = time.Unix(closedAt.Int64, 0).UTC()
		}
		p.CloseReason = reason.String
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// TotalClosedPnL sums realized pnl over all closed positions.
func (s *Store) TotalClosedPnL() (float64, error) {
	var pnl sql.NullFloat64
	err := s.db.QueryRow(`SELECT SUM(pnl) FROM positions WHERE status = ?`, model.StatusClosed).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("sum pnl: %w", err)
	}
	return pnl.Float64, nil
}

// RecentTrainingRuns returns the latest model training runs, newest first.
func (s *Store) RecentTrainingRuns(limit int) ([]TrainingRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, completed_at, status, model_version, accuracy, feature_count, training_samples, selected_features
		FROM training_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var run TrainingRun
		var startedAt int64
		var completedAt sql.NullInt64
		var version, features sql.NullString
		var accuracy sql.NullFloat64
		var featureCount, samples sql.NullInt64
		if err := rows.Scan(&run.ID, &startedAt, &completedAt, &run.Status, &version, &accuracy, &featureCount, &samples, &features); err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		if completedAt.Valid {
			run.CompletedAt = time.Unix(completedAt.Int64, 0).UTC()
		}
		run.ModelVersion = version.String
		run.Accuracy = accuracy.Float64
		run.FeatureCount = int(featureCount.Int64)
		run.TrainingSamples = int(samples.Int64)
		run.SelectedFeatures = features.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TrainingRun is a persisted record of one model training pass.
type TrainingRun struct {
	ID               int64     `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
	Status           string    `json:"status"`
	ModelVersion     string    `json:"model_version"`
	Accuracy         float64   `json:"accuracy"`
	FeatureCount     int       `json:"feature_count"`
	TrainingSamples  int       `json:"training_samples"`
	SelectedFeatures string    `json:"selected_features"`
}
