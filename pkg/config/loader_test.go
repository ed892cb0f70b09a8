package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "socrates.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitializeAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, "socrates:alerts", cfg.Receiver.Redis.QueueKey)
	assert.Equal(t, "socrates:alerts:aggregated", cfg.Module1.Queue.OutputKey)
	assert.Equal(t, 300, cfg.Module1.Aggregation.WindowS)
	assert.Equal(t, 50.0, cfg.Module1.Scoring.Threshold)
	assert.Equal(t, 0.72, cfg.Module2.Model.DecisionThreshold)
	assert.Equal(t, 8, cfg.Module3.Reasoner.MaxToolIterations)
	assert.Equal(t, 30, cfg.Module3.Reasoner.ToolResultMaxItems)
	assert.Equal(t, 0.55, cfg.Module3.Reasoner.ManualReviewConfidenceThreshold)
	assert.True(t, cfg.Module2.Elastic.IsEnabled())
	assert.True(t, cfg.Ops.IsEnabled())
}

func TestInitializeFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"module1": {
			"aggregation": {"window_s": 60},
			"scoring": {"threshold": 75}
		},
		"module2": {
			"elastic": {"enabled": false}
		}
	}`)

	cfg, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Module1.Aggregation.WindowS)
	assert.Equal(t, 75.0, cfg.Module1.Scoring.Threshold)
	// Unset siblings still get defaults.
	assert.Equal(t, 200, cfg.Module1.Aggregation.MaxRefIDs)
	assert.Equal(t, 0.35, cfg.Module1.Scoring.WFreq)
	// Explicit false survives the defaults merge.
	assert.False(t, cfg.Module2.Elastic.IsEnabled())
}

func TestInitializeExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://redis.internal:6379/2")

	path := writeConfig(t, `{
		"receiver": {"redis": {"url": "{{.TEST_REDIS_URL}}"}}
	}`)

	cfg, err := Initialize(path)
	require.NoError(t, err)
	assert.Equal(t, "redis://redis.internal:6379/2", cfg.Receiver.Redis.URL)
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestInitializeInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"receiver": `)

	_, err := Initialize(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestInitializeValidationFailure(t *testing.T) {
	path := writeConfig(t, `{
		"receiver": {"elastic": {"scheme": "ftp"}}
	}`)

	_, err := Initialize(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestExpandEnvPreservesLiteralDollar(t *testing.T) {
	t.Setenv("EXPAND_ME", "value")

	out := ExpandEnv([]byte(`pattern: "^secret.*$" key: {{.EXPAND_ME}}`))
	assert.Equal(t, `pattern: "^secret.*$" key: value`, string(out))
}

func TestExpandEnvMissingVariable(t *testing.T) {
	out := ExpandEnv([]byte(`{"url": "{{.SOCRATES_TEST_UNSET_VAR}}"}`))
	assert.Equal(t, `{"url": ""}`, string(out))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Seconds(1.5))
	assert.Equal(t, 2*time.Second, Seconds(2))
}
