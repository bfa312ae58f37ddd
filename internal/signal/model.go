// Package signal provides the trading signal model.
//
// The model is trained on indicator feature series and emits BUY/SELL/HOLD
// predictions with a confidence score. Prediction is a deterministic,
// stateless scoring function; all randomness (feature selection, simulated
// importance) is confined to training time and lives behind the
// ScoringStrategy interface so a real learned model can be substituted
// without touching the orchestrator.
package signal

import (
	"errors"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"trading-botv1/internal/model"
)

var (
	// ErrInvalidInput is returned by Train when features or targets are empty.
	ErrInvalidInput = errors.New("signal: empty features or targets")

	// ErrNotTrained is returned by Predict before a successful Train.
	ErrNotTrained = errors.New("signal: model not trained")
)

// Feature selection bounds: must-keep features plus a random remainder up to
// a target count drawn from [MinFeatures, MaxFeatures].
const (
	MinFeatures = 30
	MaxFeatures = 50
)

// Score thresholds for the signal mapping.
const (
	buyThreshold  = 0.1
	sellThreshold = -0.1
	holdChance    = 0.4 // forced confidence for HOLD
	maxConfidence = 0.95
)

// FeatureStats holds the per-feature statistics fitted at training time.
// Immutable after training until a retrain replaces the whole set.
type FeatureStats struct {
	Mean       float64 `json:"mean"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Importance float64 `json:"importance"` // [0,1]
}

// Metrics summarizes a training run.
type Metrics struct {
	TrainAccuracy   float64 `json:"train_accuracy"`
	FeatureCount    int     `json:"feature_count"`
	TrainingSamples int     `json:"training_samples"`
}

// Model is the rule-based signal model. State machine: UNTRAINED → TRAINED,
// one-way; retraining replaces all fitted state atomically.
type Model struct {
	mu sync.RWMutex

	scoring  ScoringStrategy
	rng      *rand.Rand
	mustKeep []string

	trained   bool
	version   string
	threshold float64
	selected  []string
	stats     map[string]FeatureStats
}

// NewModel creates an untrained model. mustKeep features always survive
// selection when present in the training set.
func NewModel(scoring ScoringStrategy, mustKeep []string) *Model {
	return &Model{
		scoring:   scoring,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		mustKeep:  mustKeep,
		threshold: 0.7,
		version:   "simple_" + time.Now().UTC().Format("20060102_150405"),
	}
}

// Train fits the model on feature series and binary targets (0=SELL, 1=BUY).
// Selection picks all must-keep features plus a random subset of the rest,
// sized to a target count in [MinFeatures, MaxFeatures]. Importance is
// delegated to the ScoringStrategy.
func (m *Model) Train(features map[string][]float64, targets []int) (Metrics, error) {
	if len(features) == 0 || len(targets) == 0 {
		return Metrics{}, ErrInvalidInput
	}

	selected := m.selectFeatures(features)

	stats := make(map[string]FeatureStats, len(selected))
	for _, name := range selected {
		values := features[name]
		if len(values) == 0 {
			continue
		}
		sum, lo, hi := 0.0, values[0], values[0]
		for _, v := range values {
			sum += v
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		stats[name] = FeatureStats{
			Mean:       sum / float64(len(values)),
			Min:        lo,
			Max:        hi,
			Importance: m.scoring.Importance(name, values, targets),
		}
	}

	metrics := Metrics{
		TrainAccuracy:   m.scoring.TrainAccuracy(len(selected), len(targets)),
		FeatureCount:    len(selected),
		TrainingSamples: len(targets),
	}

	// Swap the whole fitted state in one step: a retrain replaces, never merges.
	m.mu.Lock()
	m.selected = selected
	m.stats = stats
	m.trained = true
	m.version = "simple_" + time.Now().UTC().Format("20060102_150405")
	m.mu.Unlock()

	log.Printf("[signal] model trained: %d features, %d samples, accuracy %.3f",
		metrics.FeatureCount, metrics.TrainingSamples, metrics.TrainAccuracy)
	return metrics, nil
}

// selectFeatures returns must-keep features present in the training set plus
// a shuffled random remainder.
func (m *Model) selectFeatures(features map[string][]float64) []string {
	keep := make(map[string]bool, len(m.mustKeep))
	var selected []string
	for _, name := range m.mustKeep {
		if _, ok := features[name]; ok {
			keep[name] = true
			selected = append(selected, name)
		}
	}

	remaining := make([]string, 0, len(features))
	for name := range features {
		if !keep[name] {
			remaining = append(remaining, name)
		}
	}
	// Map iteration order is random but not seedable; sort before shuffling
	// so the selection depends only on the model's own RNG.
	sort.Strings(remaining)
	m.rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})

	target := MinFeatures + m.rng.Intn(MaxFeatures-MinFeatures+1)
	needed := target - len(selected)
	if needed > len(remaining) {
		needed = len(remaining)
	}
	if needed > 0 {
		selected = append(selected, remaining[:needed]...)
	}
	return selected
}

// Predict scores the given feature vector. For each selected feature present
// in both the input and the fitted stats, the value is normalized as
// (v-mean)/(max-min), weighted by importance, and averaged into the score.
func (m *Model) Predict(features map[string]float64) (model.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return model.Prediction{}, ErrNotTrained
	}

	score := 0.0
	contributing := 0
	used := 0
	for _, name := range m.selected {
		value, present := features[name]
		if !present {
			continue
		}
		used++
		st, ok := m.stats[name]
		if !ok {
			continue
		}
		normalized := 0.0
		if st.Max != st.Min {
			normalized = (value - st.Mean) / (st.Max - st.Min)
		}
		score += normalized * st.Importance
		contributing++
	}
	if contributing > 0 {
		score /= float64(contributing)
	}

	confidence := math.Min(maxConfidence, math.Abs(score)+0.5)
	sig := model.SignalHold
	switch {
	case score > buyThreshold:
		sig = model.SignalBuy
	case score < sellThreshold:
		sig = model.SignalSell
	default:
		confidence = holdChance
	}

	return model.Prediction{
		Signal:       sig,
		Confidence:   confidence,
		Score:        score,
		FeaturesUsed: used,
	}, nil
}

// SetConfidenceThreshold sets the minimum confidence for acting on a signal,
// clamped to [0.5, 0.95].
func (m *Model) SetConfidenceThreshold(threshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = math.Max(0.5, math.Min(0.95, threshold))
}

// ConfidenceThreshold returns the current confidence gate.
func (m *Model) ConfidenceThreshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// Trained reports whether the model has been trained.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Version returns the model version string recorded on emitted signals.
func (m *Model) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Features returns the selected feature names from the last training run.
func (m *Model) Features() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.selected))
	copy(out, m.selected)
	return out
}

// Info returns a read-only snapshot for the dashboard.
func (m *Model) Info() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"is_trained":           m.trained,
		"model_version":        m.version,
		"feature_count":        len(m.selected),
		"confidence_threshold": m.threshold,
		"model_type":           "SimpleRuleBased",
	}
}
