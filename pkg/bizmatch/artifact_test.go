package bizmatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validArtifactJSON = `{
	"feature_state": {
		"structural_dim": 32,
		"semantic_dim": 48,
		"temporal_dim": 16,
		"business_start_hour": 8,
		"business_end_hour": 18
	},
	"threshold": 0.72,
	"model": {
		"base_score": 0.0,
		"trees": [{"value": 2.0}]
	},
	"trained_at": "2026-08-20T03:00:00Z",
	"feature_dim": 96
}`

func TestLoadArtifact(t *testing.T) {
	artifact, err := LoadArtifact(writeArtifact(t, validArtifactJSON))
	require.NoError(t, err)

	assert.Equal(t, 32, artifact.FeatureState.StructuralDim)
	assert.InDelta(t, 0.72, artifact.Threshold, 1e-9)
	assert.Equal(t, 96, artifact.FeatureDim)
	require.Len(t, artifact.Model.Trees, 1)
	assert.True(t, artifact.Model.Trees[0].IsLeaf())
}

func TestLoadArtifactMissingFileIsFatal(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadArtifactRejectsInvalidJSON(t *testing.T) {
	_, err := LoadArtifact(writeArtifact(t, `{"model": `))
	require.Error(t, err)
}

func TestLoadArtifactRejectsMissingModel(t *testing.T) {
	_, err := LoadArtifact(writeArtifact(t, `{
		"feature_state": {"structural_dim": 32, "semantic_dim": 48, "temporal_dim": 16},
		"threshold": 0.72
	}`))
	require.ErrorContains(t, err, "missing model")
}

func TestLoadArtifactRejectsDimensionMismatch(t *testing.T) {
	_, err := LoadArtifact(writeArtifact(t, `{
		"feature_state": {"structural_dim": 32, "semantic_dim": 48, "temporal_dim": 16},
		"model": {"trees": [{"value": 1.0}]},
		"feature_dim": 64
	}`))
	require.ErrorContains(t, err, "does not match")
}

func TestLoadArtifactRejectsHalfSplitTree(t *testing.T) {
	_, err := LoadArtifact(writeArtifact(t, `{
		"feature_state": {"structural_dim": 32, "semantic_dim": 48, "temporal_dim": 16},
		"model": {"trees": [{"feature": 0, "threshold": 10, "right": {"value": 1.0}}]}
	}`))
	require.ErrorContains(t, err, "missing a child")
}

func TestLoadArtifactRejectsFeatureIndexOutsideVector(t *testing.T) {
	_, err := LoadArtifact(writeArtifact(t, `{
		"feature_state": {"structural_dim": 32, "semantic_dim": 48, "temporal_dim": 16},
		"model": {"trees": [{"feature": -1, "threshold": 0.5,
			"left": {"value": 1.0}, "right": {"value": -1.0}}]}
	}`))
	require.ErrorContains(t, err, "outside vector")

	_, err = LoadArtifact(writeArtifact(t, `{
		"feature_state": {"structural_dim": 32, "semantic_dim": 48, "temporal_dim": 16},
		"model": {"trees": [{"feature": 96, "threshold": 0.5,
			"left": {"value": 1.0}, "right": {"value": -1.0}}]}
	}`))
	require.ErrorContains(t, err, "outside vector")
}

func TestLoadArtifactRejectsNonPositiveDimensions(t *testing.T) {
	_, err := LoadArtifact(writeArtifact(t, `{
		"feature_state": {"structural_dim": 32, "semantic_dim": 0, "temporal_dim": 16},
		"model": {"trees": [{"value": 1.0}]}
	}`))
	require.ErrorContains(t, err, "non-positive")
}
