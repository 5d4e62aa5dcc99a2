// Package config loads harness configuration from YAML with environment
// overrides. Missing files yield defaults so `aipop` runs without any setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"aipop/internal/cache"
)

// Config holds all aipop configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Attacker drives prompt generation (PAIR streams, the planner).
	Attacker AdapterConfig `yaml:"attacker"`
	// Target is the model under test.
	Target AdapterConfig `yaml:"target"`

	Judge  JudgeConfig  `yaml:"judge"`
	Cache  CacheConfig  `yaml:"cache"`
	Attack AttackConfig `yaml:"attack"`
	Verify VerifyConfig `yaml:"verify"`
	Limits LimitsConfig `yaml:"limits"`

	Logging LoggingConfig `yaml:"logging"`
}

// AdapterConfig configures one model endpoint.
type AdapterConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, mock
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// JudgeConfig selects how responses are scored.
type JudgeConfig struct {
	Mode      string  `yaml:"mode"` // keyword, model
	Model     string  `yaml:"model"`
	Threshold float64 `yaml:"threshold"`
}

// CacheConfig configures the sqlite caches.
type CacheConfig struct {
	AttackDB   string `yaml:"attack_db"`
	ResponseDB string `yaml:"response_db"`

	// TTLHours overrides per-method attack cache TTLs.
	TTLHours map[string]int `yaml:"ttl_hours"`
}

// AttackConfig configures plugin execution.
type AttackConfig struct {
	// EnvRoot is where official plugin environments are installed.
	EnvRoot string `yaml:"env_root"`
	// Implementation is the default variant: official, legacy, or empty
	// for legacy.
	Implementation string `yaml:"implementation"`
	Timeout        string `yaml:"timeout"`
}

// VerifyConfig configures suite verification runs.
type VerifyConfig struct {
	SampleRate float64 `yaml:"sample_rate"`
	Parallel   int     `yaml:"parallel"`
	Confidence float64 `yaml:"confidence"`
	Seed       int64   `yaml:"seed"`
}

// LimitsConfig bounds spend and request rate.
type LimitsConfig struct {
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
	BudgetUSD         float64 `yaml:"budget_usd"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`

	// Dir, when set, adds a per-subsystem log file under it for each
	// logging category (attack, orchestrator, judge, ...).
	Dir string `yaml:"dir"`

	// AuditFile, when set, appends one JSON event per attack/verify
	// operation for offline analysis.
	AuditFile string `yaml:"audit_file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "aipop",
		Version: "0.4.0",

		Attacker: AdapterConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			Timeout:  "120s",
		},
		Target: AdapterConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  "120s",
		},

		Judge: JudgeConfig{
			Mode:      "keyword",
			Threshold: 7.0,
		},

		Cache: CacheConfig{
			AttackDB:   filepath.Join(".aipop", "attack_cache.db"),
			ResponseDB: filepath.Join(".aipop", "response_cache.db"),
		},

		Attack: AttackConfig{
			EnvRoot:        filepath.Join(".aipop", "envs"),
			Implementation: "legacy",
			Timeout:        "30m",
		},

		Verify: VerifyConfig{
			SampleRate: 0.3,
			Parallel:   1,
			Confidence: 0.95,
		},

		Limits: LimitsConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. API keys
// resolve by provider so one environment can drive both endpoints.
func (c *Config) applyEnvOverrides() {
	c.Attacker.resolveKey()
	c.Target.resolveKey()

	if path := os.Getenv(cache.EnvCacheDB); path != "" {
		c.Cache.AttackDB = path
	}
	if path := os.Getenv("AIPOP_RESPONSE_DB"); path != "" {
		c.Cache.ResponseDB = path
	}
	if root := os.Getenv("AIPOP_ENV_ROOT"); root != "" {
		c.Attack.EnvRoot = root
	}
	if level := os.Getenv("AIPOP_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if budget := os.Getenv("AIPOP_BUDGET_USD"); budget != "" {
		if v, err := strconv.ParseFloat(budget, 64); err == nil && v >= 0 {
			c.Limits.BudgetUSD = v
		}
	}
}

// envKeys maps providers to their conventional API key variables.
var envKeys = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

func (a *AdapterConfig) resolveKey() {
	if a.APIKey != "" {
		return
	}
	if env, ok := envKeys[a.Provider]; ok {
		a.APIKey = os.Getenv(env)
	}
}

// Validate checks structural constraints. Missing API keys are not an
// error here: the mock provider needs none, and adapters report missing
// keys at call time.
func (c *Config) Validate() error {
	for name, a := range map[string]AdapterConfig{"attacker": c.Attacker, "target": c.Target} {
		switch a.Provider {
		case "anthropic", "openai", "mock":
		default:
			return fmt.Errorf("%s: unknown provider %q", name, a.Provider)
		}
		if a.Model == "" {
			return fmt.Errorf("%s: model is required", name)
		}
	}
	switch c.Judge.Mode {
	case "", "keyword", "model":
	default:
		return fmt.Errorf("judge: unknown mode %q", c.Judge.Mode)
	}
	if c.Judge.Threshold < 0 || c.Judge.Threshold > 10 {
		return fmt.Errorf("judge: threshold must be in [0, 10], got %v", c.Judge.Threshold)
	}
	switch c.Attack.Implementation {
	case "", "official", "legacy":
	default:
		return fmt.Errorf("attack: unknown implementation %q", c.Attack.Implementation)
	}
	if c.Verify.SampleRate < 0 || c.Verify.SampleRate > 1 {
		return fmt.Errorf("verify: sample_rate must be in [0, 1], got %v", c.Verify.SampleRate)
	}
	if c.Verify.Parallel < 0 {
		return fmt.Errorf("verify: parallel must be >= 0, got %d", c.Verify.Parallel)
	}
	if c.Limits.RequestsPerMinute < 0 || c.Limits.BudgetUSD < 0 {
		return fmt.Errorf("limits: values must be >= 0")
	}
	for method, ttl := range c.Cache.TTLHours {
		if ttl <= 0 {
			return fmt.Errorf("cache: ttl_hours[%s] must be > 0, got %d", method, ttl)
		}
	}
	return nil
}

// AttackTimeout parses the plugin timeout, defaulting to 30 minutes.
func (c *Config) AttackTimeout() time.Duration {
	return parseDuration(c.Attack.Timeout, 30*time.Minute)
}

// AdapterTimeout parses an adapter timeout, defaulting to 120 seconds.
func (a AdapterConfig) AdapterTimeout() time.Duration {
	return parseDuration(a.Timeout, 120*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
