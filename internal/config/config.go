// Package config holds the configuration context passed into the compiler,
// the evaluator, and the knowledge base.
//
// A Config is a plain value. Build one with New and functional options, or
// load it from YAML with Load; both start from Default.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// DivideByZeroPolicy decides what happens when DIVIDE or MODULUS meets a
// zero divisor during evaluation.
type DivideByZeroPolicy string

const (
	// DivideByZeroStop aborts evaluation with an EvaluationError.
	DivideByZeroStop DivideByZeroPolicy = "stop"

	// DivideByZeroDiscard drops the offending row and continues.
	DivideByZeroDiscard DivideByZeroPolicy = "discard"
)

// Evaluator names.
const (
	EvaluatorNaive     = "naive"
	EvaluatorSemiNaive = "seminaive"
)

// Optimiser names, in their default application order.
const (
	OptimiserJoinCondition    = "join-condition"
	OptimiserReplaceConstants = "replace-constants"
	OptimiserRemoveDuplicates = "remove-duplicates"
	OptimiserReorderLiterals  = "reorder-literals"
)

// Stratifier names.
const (
	StratifierGlobal         = "global"
	StratifierLocalStrict    = "local-strict"
	StratifierLocalNonStrict = "local"
)

// Relation and index factory names. They mirror the names accepted by
// package storage.
const (
	FactoryHash        = "hash"
	FactorySorted      = "sorted"
	FactoryEquivalence = "equivalence"
)

// Default stream settings.
const (
	DefaultStreamWindow   = time.Minute
	DefaultStreamInterval = time.Second
)

// Config is the engine configuration context.
type Config struct {
	// AllowUnlimitedVariablesInNegatedOrdinaryPredicates lets a variable
	// occur unlimited in negated ordinary literals, provided it occurs
	// nowhere else. Such variables act as wildcards in the antijoin.
	AllowUnlimitedVariablesInNegatedOrdinaryPredicates bool `yaml:"allow_unlimited_variables_in_negated_ordinary_predicates" json:"allow_unlimited_variables_in_negated_ordinary_predicates"`

	// TernaryTargetsImplyLimited makes any positive ternary arithmetic
	// builtin limit its third variable once the other two are limited.
	TernaryTargetsImplyLimited bool `yaml:"ternary_targets_imply_limited" json:"ternary_targets_imply_limited"`

	// Evaluator selects the fixpoint strategy: "naive" or "seminaive".
	Evaluator string `yaml:"evaluator" json:"evaluator"`

	// DivideByZero selects the policy for a zero divisor.
	DivideByZero DivideByZeroPolicy `yaml:"divide_by_zero" json:"divide_by_zero"`

	// Optimisers lists the rule rewrites applied before compilation, in order.
	Optimisers []string `yaml:"optimisers" json:"optimisers"`

	// Stratifiers lists the stratification strategies tried in order; the
	// first that succeeds is used.
	Stratifiers []string `yaml:"stratifiers" json:"stratifiers"`

	// RelationFactory names the relation implementation: "hash" or "sorted".
	RelationFactory string `yaml:"relation_factory" json:"relation_factory"`

	// IndexFactory names the index implementation: "hash" or "equivalence".
	IndexFactory string `yaml:"index_factory" json:"index_factory"`

	// MaxTuples bounds the number of tuples one program evaluation may hold.
	// Zero means no bound.
	MaxTuples int `yaml:"max_tuples" json:"max_tuples"`

	// Stream configures the streaming engine.
	Stream StreamConfig `yaml:"stream" json:"stream"`
}

// StreamConfig configures the streaming engine.
type StreamConfig struct {
	// Window is how long an enqueued fact batch stays in the model.
	// Zero keeps facts forever.
	Window time.Duration `yaml:"window" json:"window"`

	// Interval is the period between scheduled re-evaluations.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// Default returns the default configuration: every safety flag on,
// semi-naive evaluation, STOP on divide by zero, all optimisers, and the
// global stratifier falling back to the local ones.
func Default() Config {
	return Config{
		AllowUnlimitedVariablesInNegatedOrdinaryPredicates: true,
		TernaryTargetsImplyLimited:                         true,
		Evaluator:                                          EvaluatorSemiNaive,
		DivideByZero:                                       DivideByZeroStop,
		Optimisers:                                         DefaultOptimisers(),
		Stratifiers:                                        DefaultStratifiers(),
		RelationFactory:                                    FactoryHash,
		IndexFactory:                                       FactoryHash,
		Stream: StreamConfig{
			Window:   DefaultStreamWindow,
			Interval: DefaultStreamInterval,
		},
	}
}

// DefaultOptimisers returns the default optimiser order.
func DefaultOptimisers() []string {
	return []string{
		OptimiserJoinCondition,
		OptimiserReplaceConstants,
		OptimiserRemoveDuplicates,
		OptimiserReorderLiterals,
	}
}

// DefaultStratifiers returns the default stratifier order.
func DefaultStratifiers() []string {
	return []string{StratifierGlobal, StratifierLocalStrict, StratifierLocalNonStrict}
}

// Option mutates a Config.
type Option func(*Config)

// New returns Default with opts applied.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithEvaluator selects the evaluator by name.
func WithEvaluator(name string) Option {
	return func(c *Config) { c.Evaluator = name }
}

// WithDivideByZero selects the divide-by-zero policy.
func WithDivideByZero(p DivideByZeroPolicy) Option {
	return func(c *Config) { c.DivideByZero = p }
}

// WithUnlimitedNegatedVariables sets
// AllowUnlimitedVariablesInNegatedOrdinaryPredicates.
func WithUnlimitedNegatedVariables(allow bool) Option {
	return func(c *Config) { c.AllowUnlimitedVariablesInNegatedOrdinaryPredicates = allow }
}

// WithTernaryTargetsImplyLimited sets TernaryTargetsImplyLimited.
func WithTernaryTargetsImplyLimited(on bool) Option {
	return func(c *Config) { c.TernaryTargetsImplyLimited = on }
}

// WithOptimisers replaces the optimiser list. No arguments disables
// optimisation.
func WithOptimisers(names ...string) Option {
	return func(c *Config) { c.Optimisers = slices.Clone(names) }
}

// WithStratifiers replaces the stratifier list.
func WithStratifiers(names ...string) Option {
	return func(c *Config) { c.Stratifiers = slices.Clone(names) }
}

// WithRelationFactory selects the relation factory by name.
func WithRelationFactory(name string) Option {
	return func(c *Config) { c.RelationFactory = name }
}

// WithIndexFactory selects the index factory by name.
func WithIndexFactory(name string) Option {
	return func(c *Config) { c.IndexFactory = name }
}

// WithMaxTuples bounds the tuples one evaluation may hold.
func WithMaxTuples(n int) Option {
	return func(c *Config) { c.MaxTuples = n }
}

// WithStreamWindow sets the stream fact window.
func WithStreamWindow(d time.Duration) Option {
	return func(c *Config) { c.Stream.Window = d }
}

// WithStreamInterval sets the stream re-evaluation interval.
func WithStreamInterval(d time.Duration) Option {
	return func(c *Config) { c.Stream.Interval = d }
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Evaluator {
	case EvaluatorNaive, EvaluatorSemiNaive:
	default:
		return fmt.Errorf("evaluator: unknown %q (want %q or %q)", c.Evaluator, EvaluatorNaive, EvaluatorSemiNaive)
	}

	switch c.DivideByZero {
	case DivideByZeroStop, DivideByZeroDiscard:
	default:
		return fmt.Errorf("divide_by_zero: unknown policy %q (want %q or %q)", c.DivideByZero, DivideByZeroStop, DivideByZeroDiscard)
	}

	known := DefaultOptimisers()
	for i, name := range c.Optimisers {
		if !slices.Contains(known, name) {
			return fmt.Errorf("optimisers[%d]: unknown optimiser %q", i, name)
		}
	}

	if len(c.Stratifiers) == 0 {
		return fmt.Errorf("stratifiers: at least one stratifier is required")
	}
	known = DefaultStratifiers()
	for i, name := range c.Stratifiers {
		if !slices.Contains(known, name) {
			return fmt.Errorf("stratifiers[%d]: unknown stratifier %q", i, name)
		}
	}

	switch c.RelationFactory {
	case FactoryHash, FactorySorted:
	default:
		return fmt.Errorf("relation_factory: unknown factory %q", c.RelationFactory)
	}

	switch c.IndexFactory {
	case FactoryHash, FactoryEquivalence:
	default:
		return fmt.Errorf("index_factory: unknown factory %q", c.IndexFactory)
	}

	if c.MaxTuples < 0 {
		return fmt.Errorf("max_tuples: must be >= 0, got %d", c.MaxTuples)
	}
	if c.Stream.Window < 0 {
		return fmt.Errorf("stream.window: must be >= 0, got %s", c.Stream.Window)
	}
	if c.Stream.Interval <= 0 {
		return fmt.Errorf("stream.interval: must be > 0, got %s", c.Stream.Interval)
	}
	return nil
}

// Parse decodes YAML over Default and validates the result. Keys absent
// from data keep their default values.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}
