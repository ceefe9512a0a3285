package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "run.yaml", `
population:
  size: 80
  seed: 9
traits:
  names: [mass, hue]
compatibility:
  weight: 0.6
reproduction:
  basis: neural
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Population.Size)
	assert.Equal(t, int64(9), cfg.Population.Seed)
	assert.Equal(t, []string{"mass", "hue"}, cfg.Traits.Names)
	assert.Equal(t, 0.6, cfg.Compatibility.Weight)
	assert.Equal(t, "neural", cfg.Reproduction.Basis)
	// untouched keys keep defaults
	assert.Equal(t, Default().Compatibility.Excess, cfg.Compatibility.Excess)
	assert.Equal(t, Default().Population.Generations, cfg.Population.Generations)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "run.json", `{"speciation": {"neural_threshold": 2.5}, "hybrid": {"vigor_multiplier": 1.3}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Speciation.NeuralThreshold)
	assert.Equal(t, 1.3, cfg.Hybrid.VigorMultiplier)
	assert.Equal(t, Default().Hybrid.DepressionMultiplier, cfg.Hybrid.DepressionMultiplier)
}

func TestLoadINI(t *testing.T) {
	path := writeFile(t, "run.ini", `
[population]
size = 30
hybrid_attempt_rate = 0.25

[traits]
names = size, speed

[neural]
inputs = 3
recurrent = true
add_node_rate = 0.05

[storage]
backend = sqlite
path = /tmp/heredity.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Population.Size)
	assert.Equal(t, 0.25, cfg.Population.HybridAttemptRate)
	assert.Equal(t, []string{"size", "speed"}, cfg.Traits.Names)
	assert.Equal(t, 3, cfg.Neural.Inputs)
	assert.True(t, cfg.Neural.Recurrent)
	assert.Equal(t, 0.05, cfg.Neural.AddNodeRate)
	assert.Equal(t, Default().Neural.Outputs, cfg.Neural.Outputs)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
population:
  size: 1
reproduction:
  basis: random
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "population.size")
	assert.Contains(t, err.Error(), "reproduction.basis")
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "run.toml", "")
	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateSQLiteNeedsPath(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "sqlite"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateSelectionAndPostprocessor(t *testing.T) {
	cfg := Default()
	cfg.Population.Selection = "roulette"
	cfg.Population.Postprocessor = "novelty"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "population.selection")
	assert.Contains(t, err.Error(), "population.postprocessor")
}
