package signal

import "math/rand"

// ScoringStrategy supplies the training-time quantities the model does not
// derive from data: feature importance weights and the reported training
// accuracy. The default implementation simulates both with uniform draws;
// a learned model plugs in here without the orchestrator changing.
type ScoringStrategy interface {
	// Importance returns a weight in [0,1] for the named feature.
	Importance(name string, values []float64, targets []int) float64

	// TrainAccuracy returns the accuracy to report for a training run.
	TrainAccuracy(featureCount, samples int) float64
}

// SimulatedScoring is the rule-based stand-in: importance is drawn uniformly
// from [0.1, 1.0] and accuracy from [0.75, 0.90]. It does not look at the
// targets at all.
type SimulatedScoring struct {
	rng *rand.Rand
}

// NewSimulatedScoring creates a simulated strategy with the given seed.
func NewSimulatedScoring(seed int64) *SimulatedScoring {
	return &SimulatedScoring{rng: rand.New(rand.NewSource(seed))}
}

func (s *SimulatedScoring) Importance(name string, values []float64, targets []int) float64 {
	return 0.1 + s.rng.Float64()*0.9
}

func (s *SimulatedScoring) TrainAccuracy(featureCount, samples int) float64 {
	return 0.75 + s.rng.Float64()*0.15
}

// FixedScoring assigns the same importance to every feature. Useful in tests
// where the weighted average must be predictable.
type FixedScoring struct {
	Weight   float64
	Accuracy float64
}

func (f FixedScoring) Importance(name string, values []float64, targets []int) float64 {
	return f.Weight
}

func (f FixedScoring) TrainAccuracy(featureCount, samples int) float64 {
	return f.Accuracy
}
