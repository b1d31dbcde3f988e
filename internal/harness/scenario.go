package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/loader"
)

// Scenario defines a conformance scenario: a program, an optional
// configuration, a sequence of steps and assertions on the final model.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is a path to a program file or CUE directory, relative to
	// the scenario file.
	Program string `yaml:"program,omitempty"`

	// Inline facts, rules and queries. They are merged into Program.
	loader.Document `yaml:",inline"`

	// Config overrides fields of config.Default().
	Config yaml.Node `yaml:"config,omitempty"`

	// ExpectError is the error kind the knowledge base must fail with
	// when it is created (see ErrorKind).
	ExpectError string `yaml:"expect_error,omitempty"`

	// Steps run in order. Without steps, the program's queries are run.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final model.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step either adds facts or runs a query.
type Step struct {
	// Add merges facts into the knowledge base.
	Add map[string][][]any `yaml:"add,omitempty"`

	// Query is evaluated against the current model.
	Query []loader.LiteralDoc `yaml:"query,omitempty"`

	// Expect lists the answer rows in any order. If nil, answers are only
	// recorded in the trace.
	Expect [][]any `yaml:"expect,omitempty"`

	// ExpectError is the error kind the query must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the final model.
type Assertion struct {
	// Type is one of contains, absent, count, strata.
	Type string `yaml:"type"`

	// Pred is the predicate symbol (contains, absent, count).
	Pred string `yaml:"pred,omitempty"`

	// Row is the fact to look for (contains, absent).
	Row []any `yaml:"row,omitempty"`

	// Count is the expected relation size (count) or number of strata
	// (strata).
	Count int `yaml:"count,omitempty"`

	// Arity selects pred's relation for count.
	Arity int `yaml:"arity,omitempty"`
}

// Assertion type constants.
const (
	AssertContains = "contains"
	AssertAbsent   = "absent"
	AssertCount    = "count"
	AssertStrata   = "strata"
)

// LoadScenario reads and parses a scenario YAML file. The program path is
// resolved relative to the scenario file.
//
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml scenario in dir, in file name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []*Scenario
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Configuration returns config.Default() with the scenario's overrides.
func (s *Scenario) Configuration() (config.Config, error) {
	cfg := config.Default()
	if !s.Config.IsZero() {
		if err := s.Config.Decode(&cfg); err != nil {
			return config.Config{}, fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" && len(s.Facts) == 0 && len(s.Rules) == 0 {
		return fmt.Errorf("program or inline facts/rules are required")
	}
	if s.Program != "" {
		if _, err := os.Stat(s.Program); err != nil {
			return fmt.Errorf("program not found: %s", s.Program)
		}
	}
	if _, err := s.Configuration(); err != nil {
		return err
	}

	for i, step := range s.Steps {
		hasAdd, hasQuery := len(step.Add) > 0, len(step.Query) > 0
		if hasAdd == hasQuery {
			return fmt.Errorf("steps[%d]: exactly one of add or query is required", i)
		}
		if hasAdd && (step.Expect != nil || step.ExpectError != "") {
			return fmt.Errorf("steps[%d]: expect is only valid on a query step", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertContains, AssertAbsent:
		if a.Pred == "" {
			return fmt.Errorf("assertions[%d]: pred is required for %s", index, a.Type)
		}
	case AssertCount:
		if a.Pred == "" {
			return fmt.Errorf("assertions[%d]: pred is required for count", index)
		}
		if a.Count < 0 || a.Arity < 0 {
			return fmt.Errorf("assertions[%d]: count and arity must be non-negative", index)
		}
	case AssertStrata:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
