// Package verifier replays YAML test suites against a target and reports
// attack success rates with confidence intervals.
package verifier

import (
	"fmt"
	"math/rand"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"aipop/internal/types"
)

// Suite is a YAML-defined collection of test cases.
type Suite struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Cases       []types.TestCase `yaml:"cases"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite %s: %w", path, err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("suite %s contains no cases", path)
	}
	seen := make(map[string]struct{}, len(s.Cases))
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.ID == "" {
			return nil, fmt.Errorf("suite %s: case %d has no id", path, i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("suite %s: duplicate case id %q", path, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Prompt == "" && c.Objective == "" {
			return nil, fmt.Errorf("suite %s: case %q has neither prompt nor objective", path, c.ID)
		}
		c.SuiteID = s.ID
		if c.Category == "" {
			c.Category = "uncategorized"
		}
	}
	return &s, nil
}

// DefaultSampleRate is the fraction of each category drawn when sampling.
const DefaultSampleRate = 0.3

// Sample draws a stratified sample: at least one case per category, sized
// by rate, preferring cases with the highest expected ASR within each
// category. rate >= 1 returns every case.
func (s *Suite) Sample(rate float64, rng *rand.Rand) []types.TestCase {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if rate >= 1 {
		out := make([]types.TestCase, len(s.Cases))
		copy(out, s.Cases)
		return out
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	byCategory := make(map[string][]types.TestCase)
	for _, c := range s.Cases {
		byCategory[c.Category] = append(byCategory[c.Category], c)
	}
	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var out []types.TestCase
	for _, cat := range categories {
		cases := byCategory[cat]
		n := int(float64(len(cases))*rate + 0.5)
		if n < 1 {
			n = 1
		}
		if n > len(cases) {
			n = len(cases)
		}
		// Shuffle first so ties in expected ASR do not always pick the
		// same cases, then stable-sort by priority.
		rng.Shuffle(len(cases), func(i, j int) { cases[i], cases[j] = cases[j], cases[i] })
		sort.SliceStable(cases, func(i, j int) bool {
			return cases[i].ExpectedASR > cases[j].ExpectedASR
		})
		out = append(out, cases[:n]...)
	}
	return out
}
