package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/citeloop/internal/gate"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CITELOOP_MODEL", "CITELOOP_CODEC_ADDR", "CITELOOP_INDEX_PATH",
		"CITELOOP_ERRORS_DIR", "CITELOOP_THRESHOLD", "CITELOOP_REASK",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, gate.DefaultGateConfig(), cfg.GateThresholds())
	assert.True(t, cfg.IsLocalModel())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "citeloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  name: openai:gpt-4o-mini
pipeline:
  threshold: 0.55
  reask: true
retrieval:
  backend: sqlite
  top_k: 9
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o-mini", cfg.Model.Name)
	assert.False(t, cfg.IsLocalModel())
	assert.InDelta(t, 0.55, cfg.Pipeline.Threshold, 1e-9)
	assert.True(t, cfg.Pipeline.Reask)
	assert.Equal(t, "sqlite", cfg.Retrieval.Backend)
	assert.Equal(t, 9, cfg.RetrievalLimits().TopK)
	// untouched sections keep defaults
	assert.Equal(t, "data/errors", cfg.Paths.ErrorsDir)
	assert.Equal(t, 5, cfg.PerturbGenerator().NumVariants)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CITELOOP_MODEL", "mixtral")
	t.Setenv("CITELOOP_THRESHOLD", "0.9")
	t.Setenv("CITELOOP_REASK", "true")
	t.Setenv("GOOGLE_API_KEY", "g1")
	t.Setenv("GEMINI_API_KEY", "g2")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mixtral", cfg.Model.Name)
	assert.InDelta(t, 0.9, cfg.Pipeline.Threshold, 1e-9)
	assert.True(t, cfg.Pipeline.Reask)
	assert.Equal(t, "g2", cfg.Keys.Google)
}

func TestLoad_BadEnvAndBadYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CITELOOP_THRESHOLD", "high")
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "citeloop.yaml")
	cfg := Default()
	cfg.Pipeline.Strategy = "cot"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cot", loaded.Pipeline.Strategy)
}

func TestProviderKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "a1")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "a1", cfg.ProviderKey("Anthropic"))
	assert.Empty(t, cfg.ProviderKey("openai"))
	assert.Empty(t, cfg.ProviderKey("local"))
}
