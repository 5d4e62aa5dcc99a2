// Package attack defines the plugin contract for single-shot jailbreak
// methods and ships the in-tree legacy implementations of gcg, autodan, and
// pair plus the subprocess wrappers for their official research references.
package attack

import (
	"errors"
	"fmt"

	"aipop/internal/adapter"
)

// DefaultTarget is the response prefix an attack tries to elicit.
const DefaultTarget = "Sure, here is"

// Config carries the recognized attack options. Unknown keys are preserved
// in Extras so configs written for newer plugins still load.
type Config struct {
	// Prompt is the harmful objective to jailbreak. Required.
	Prompt string
	// Target is the desired response prefix.
	Target string
	// Adapter is the target-model handle for API-based runs.
	Adapter adapter.Adapter
	// AdapterModel is the target model identifier.
	AdapterModel string

	// PAIR.
	NumStreams          int
	IterationsPerStream int
	AttackerModel       string
	JudgeModel          string

	// GCG.
	MaxIterations int
	BatchSize     int
	TopK          int
	Device        string

	// AutoDAN.
	PopulationSize int
	NumGenerations int
	MutatorModel   string

	Extras map[string]interface{}
}

// ErrPromptRequired is returned when a config lacks the objective prompt.
var ErrPromptRequired = errors.New("attack config requires a prompt")

// ParseConfig builds a Config from a free-form option map. Unrecognized keys
// land in Extras; the adapter handle is pulled out when present.
func ParseConfig(options map[string]interface{}) (*Config, error) {
	cfg := &Config{Target: DefaultTarget, Extras: make(map[string]interface{})}
	for k, v := range options {
		switch k {
		case "prompt":
			cfg.Prompt, _ = v.(string)
		case "target":
			if s, ok := v.(string); ok && s != "" {
				cfg.Target = s
			}
		case "adapter":
			if a, ok := v.(adapter.Adapter); ok {
				cfg.Adapter = a
			}
		case "adapter_model":
			cfg.AdapterModel, _ = v.(string)
		case "num_streams":
			cfg.NumStreams = asInt(v)
		case "iterations_per_stream":
			cfg.IterationsPerStream = asInt(v)
		case "attacker_model":
			cfg.AttackerModel, _ = v.(string)
		case "judge_model":
			cfg.JudgeModel, _ = v.(string)
		case "max_iterations":
			cfg.MaxIterations = asInt(v)
		case "batch_size":
			cfg.BatchSize = asInt(v)
		case "top_k":
			cfg.TopK = asInt(v)
		case "device":
			cfg.Device, _ = v.(string)
		case "population_size":
			cfg.PopulationSize = asInt(v)
		case "num_generations":
			cfg.NumGenerations = asInt(v)
		case "mutator_model":
			cfg.MutatorModel, _ = v.(string)
		default:
			cfg.Extras[k] = v
		}
	}
	if cfg.Prompt == "" {
		return nil, ErrPromptRequired
	}
	return cfg, nil
}

// CacheParams returns the fields that determine the attack outcome, shaped
// for cache keying. The adapter handle is identified by model name only.
func (c *Config) CacheParams(method string) map[string]interface{} {
	params := map[string]interface{}{"target": c.Target}
	switch method {
	case "pair":
		params["num_streams"] = c.NumStreams
		params["iterations_per_stream"] = c.IterationsPerStream
		params["attacker_model"] = c.AttackerModel
		params["judge_model"] = c.JudgeModel
	case "gcg":
		params["max_iterations"] = c.MaxIterations
		params["batch_size"] = c.BatchSize
		params["top_k"] = c.TopK
	case "autodan":
		params["population_size"] = c.PopulationSize
		params["num_generations"] = c.NumGenerations
		params["mutator_model"] = c.MutatorModel
	}
	return params
}

// Model resolves the target model identifier from the explicit field or the
// adapter handle.
func (c *Config) Model() string {
	if c.AdapterModel != "" {
		return c.AdapterModel
	}
	if c.Adapter != nil {
		return c.Adapter.Model()
	}
	return ""
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// validateAdapter fails fast when an API-based run has no target handle.
func validateAdapter(cfg *Config, method string) error {
	if cfg.Adapter == nil {
		return fmt.Errorf("%s legacy requires a target adapter", method)
	}
	return nil
}
