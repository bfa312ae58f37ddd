package signal

import (
	"encoding/json"
	"fmt"
	"os"
)

// modelFile is the on-disk JSON layout for a trained model.
type modelFile struct {
	ModelVersion        string                  `json:"model_version"`
	ModelType           string                  `json:"model_type"`
	SelectedFeatures    []string                `json:"selected_features"`
	FeatureStats        map[string]FeatureStats `json:"feature_stats"`
	ConfidenceThreshold float64                 `json:"confidence_threshold"`
	IsTrained           bool                    `json:"is_trained"`
}

// Save writes the fitted model state to path as JSON.
func (m *Model) Save(path string) error {
	m.mu.RLock()
	mf := modelFile{
		ModelVersion:        m.version,
		ModelType:           "SimpleRuleBased",
		SelectedFeatures:    m.selected,
		FeatureStats:        m.stats,
		ConfidenceThreshold: m.threshold,
		IsTrained:           m.trained,
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("signal: marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("signal: write model: %w", err)
	}
	return nil
}

// Load replaces the model state from a previously saved file.
func (m *Model) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("signal: read model: %w", err)
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("signal: unmarshal model: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = mf.ModelVersion
	m.selected = mf.SelectedFeatures
	m.stats = mf.FeatureStats
	m.trained = mf.IsTrained
	if mf.ConfidenceThreshold > 0 {
		m.threshold = mf.ConfidenceThreshold
	}
	return nil
}
