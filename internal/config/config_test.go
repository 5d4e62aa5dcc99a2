package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "aipop", cfg.Name)
	assert.Equal(t, "0.4.0", cfg.Version)
	assert.Equal(t, "legacy", cfg.Attack.Implementation)
	assert.Equal(t, 0.3, cfg.Verify.SampleRate)
	assert.Equal(t, 60, cfg.Limits.RequestsPerMinute)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target:
  provider: anthropic
  model: claude-sonnet-4-20250514
judge:
  mode: model
  model: gpt-4o
  threshold: 8
cache:
  ttl_hours:
    gcg: 1000
verify:
  parallel: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Target.Provider)
	assert.Equal(t, "model", cfg.Judge.Mode)
	assert.Equal(t, 8.0, cfg.Judge.Threshold)
	assert.Equal(t, 1000, cfg.Cache.TTLHours["gcg"])
	assert.Equal(t, 4, cfg.Verify.Parallel)
	// Untouched sections keep their defaults.
	assert.Equal(t, "openai", cfg.Attacker.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown provider":  "target:\n  provider: llamacpp\n  model: m\n",
		"bad judge mode":    "judge:\n  mode: oracle\n",
		"bad threshold":     "judge:\n  threshold: 42\n",
		"bad sample rate":   "verify:\n  sample_rate: 1.5\n",
		"bad impl":          "attack:\n  implementation: turbo\n",
		"non-positive ttl":  "cache:\n  ttl_hours:\n    pair: 0\n",
		"negative parallel": "verify:\n  parallel: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AIPOP_CACHE_DB", "/tmp/override/attack.db")
	t.Setenv("AIPOP_RESPONSE_DB", "/tmp/override/resp.db")
	t.Setenv("AIPOP_ENV_ROOT", "/opt/aipop/envs")
	t.Setenv("AIPOP_LOG_LEVEL", "debug")
	t.Setenv("AIPOP_BUDGET_USD", "12.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override/attack.db", cfg.Cache.AttackDB)
	assert.Equal(t, "/tmp/override/resp.db", cfg.Cache.ResponseDB)
	assert.Equal(t, "/opt/aipop/envs", cfg.Attack.EnvRoot)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 12.5, cfg.Limits.BudgetUSD)
}

func TestEnvAPIKeyResolvesByProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
attacker:
  provider: openai
  model: gpt-4o
target:
  provider: anthropic
  model: claude-sonnet-4-20250514
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.Attacker.APIKey)
	assert.Equal(t, "sk-anthropic", cfg.Target.APIKey)
}

func TestEnvDoesNotClobberExplicitKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target:
  provider: openai
  model: gpt-4o
  api_key: sk-explicit
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-explicit", cfg.Target.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.Model = "gpt-4.1"
	cfg.Limits.BudgetUSD = 5

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", loaded.Target.Model)
	assert.Equal(t, 5.0, loaded.Limits.BudgetUSD)
}

func TestTimeoutParsing(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Minute, cfg.AttackTimeout())
	cfg.Attack.Timeout = "90s"
	assert.Equal(t, 90*time.Second, cfg.AttackTimeout())
	cfg.Attack.Timeout = "garbage"
	assert.Equal(t, 30*time.Minute, cfg.AttackTimeout())

	a := AdapterConfig{Timeout: "15s"}
	assert.Equal(t, 15*time.Second, a.AdapterTimeout())
	assert.Equal(t, 120*time.Second, AdapterConfig{}.AdapterTimeout())
}
