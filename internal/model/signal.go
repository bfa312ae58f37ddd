package model

import "time"

// SignalType is the class of a trading signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Prediction is the transient output of the signal model for one symbol.
// It is not persisted directly; a SignalRecord is derived from it when the
// confidence gate passes.
type Prediction struct {
	Signal       SignalType `json:"signal"`
	Confidence   float64    `json:"confidence"` // [0,1]
	Score        float64    `json:"score"`      // raw weighted feature score
	FeaturesUsed int        `json:"features_used"`
}

// SignalRecord is one row of the append-only signal audit log. A record is
// written only for predictions that passed the confidence gate.
type SignalRecord struct {
	ID           int64      `json:"id"`
	Symbol       string     `json:"symbol"`
	SignalType   SignalType `json:"signal_type"`
	Confidence   float64    `json:"confidence"`
	Price        float64    `json:"price"`
	ModelVersion string     `json:"model_version"`
	CreatedAt    time.Time  `json:"created_at"`
}
