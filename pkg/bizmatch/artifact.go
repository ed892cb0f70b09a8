package bizmatch

import (
	"encoding/json"
	"fmt"
	"os"
)

// Artifact is the trained model bundle produced by the offline training job.
// The feature state must be carried verbatim so online vectors line up with
// the ensemble.
type Artifact struct {
	FeatureState FeatureState  `json:"feature_state"`
	Threshold    float64       `json:"threshold"`
	Model        *TreeEnsemble `json:"model"`
	TrainedAt    string        `json:"trained_at"`
	FeatureDim   int           `json:"feature_dim"`
}

// LoadArtifact reads and validates a model artifact. A missing or invalid
// artifact is fatal for the stage: matching without a model would silently
// pass every business false positive through.
func LoadArtifact(path string) (*Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model artifact %q: %w", path, err)
	}

	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, fmt.Errorf("parsing model artifact %q: %w", path, err)
	}
	if err := artifact.validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %q: %w", path, err)
	}
	return &artifact, nil
}

func (a *Artifact) validate() error {
	if a.Model == nil {
		return fmt.Errorf("missing model")
	}
	state := a.FeatureState
	if state.StructuralDim <= 0 || state.SemanticDim <= 0 || state.TemporalDim <= 0 {
		return fmt.Errorf("feature state has non-positive dimensions: %+v", state)
	}
	dim := state.StructuralDim + state.SemanticDim + state.TemporalDim
	if a.FeatureDim != 0 && a.FeatureDim != dim {
		return fmt.Errorf("feature_dim %d does not match extractor state total %d", a.FeatureDim, dim)
	}
	return a.Model.Validate(dim)
}
