package evaluation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/storage"
)

// Strategy evaluates programs bottom-up, stratum by stratum.
//
// A Strategy is built once from a Config and reused for every program and
// query of a knowledge base. It holds no model state: facts are passed in
// and mutated in place.
type Strategy struct {
	cfg         config.Config
	registry    *builtin.Registry
	validator   *compiler.RuleValidator
	compiler    *compiler.Compiler
	stratifiers []compiler.Stratifier
	evaluator   Evaluator
	relations   storage.RelationFactory
	indexes     storage.IndexFactory
	metrics     *Metrics
	logger      *slog.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithRegistry replaces the default builtin registry.
func WithRegistry(reg *builtin.Registry) Option {
	return func(s *Strategy) {
		s.registry = reg
	}
}

// WithMetrics records evaluation metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Strategy) {
		s.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Strategy) {
		s.logger = l
	}
}

// New creates a Strategy from cfg.
func New(cfg config.Config, opts ...Option) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Strategy{
		cfg:      cfg,
		registry: builtin.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}

	var err error
	if s.evaluator, err = NewEvaluator(cfg.Evaluator); err != nil {
		return nil, err
	}
	if s.compiler, err = compiler.NewCompiler(cfg, s.registry); err != nil {
		return nil, err
	}
	if s.stratifiers, err = compiler.StratifiersFromConfig(cfg, s.registry); err != nil {
		return nil, err
	}
	if s.relations, err = storage.RelationFactoryByName(cfg.RelationFactory); err != nil {
		return nil, err
	}
	if s.indexes, err = storage.IndexFactoryByName(cfg.IndexFactory); err != nil {
		return nil, err
	}
	s.validator = compiler.NewRuleValidator(cfg, s.registry)
	return s, nil
}

// Config returns the configuration the strategy was built from.
func (s *Strategy) Config() config.Config { return s.cfg }

// Registry returns the builtin registry in use.
func (s *Strategy) Registry() *builtin.Registry { return s.registry }

// Evaluator returns the stratum evaluator in use.
func (s *Strategy) Evaluator() Evaluator { return s.evaluator }

// NewFacts creates an empty fact store using the configured relation and
// index factories. With equality set the store tracks term equivalences.
func (s *Strategy) NewFacts(equality bool) *storage.Facts {
	opts := []storage.FactsOption{
		storage.WithRelationFactory(s.relations),
		storage.WithIndexFactory(s.indexes),
	}
	if equality {
		opts = append(opts, storage.WithEquivalences(storage.NewEquivalences()))
	}
	return storage.NewFacts(opts...)
}

// Program is a validated, stratified and compiled rule set.
type Program struct {
	// Strata holds the compiled rules of each stratum, evaluated in order.
	Strata [][]*compiler.CompiledRule

	// Stratifier names the stratifier that succeeded.
	Stratifier string

	// Equality is true when some rule derives term equivalences.
	Equality bool
}

// Rules returns the number of compiled rules.
func (p *Program) Rules() int {
	n := 0
	for _, s := range p.Strata {
		n += len(s)
	}
	return n
}

// Prepare checks every rule for safety, stratifies the rule set and
// compiles each rule.
//
// Errors: *compiler.RuleUnsafeError, *compiler.ProgramNotStratifiedError
// or *compiler.EvaluationError for a body that cannot be compiled.
func (s *Strategy) Prepare(rules []ir.Rule) (*Program, error) {
	for _, r := range rules {
		if _, err := s.validator.Process(r); err != nil {
			return nil, err
		}
	}

	strata, name, err := compiler.Stratify(rules, s.stratifiers)
	if err != nil {
		return nil, err
	}

	prog := &Program{Stratifier: name, Strata: make([][]*compiler.CompiledRule, len(strata))}
	for i, stratum := range strata {
		for _, r := range stratum {
			cr, err := s.compiler.Compile(r)
			if err != nil {
				return nil, err
			}
			prog.Equality = prog.Equality || cr.IsHeadEquality()
			prog.Strata[i] = append(prog.Strata[i], cr)
		}
	}
	return prog, nil
}

// Evaluate computes the minimal model of prog over facts, stratum by
// stratum. Negated literals of a stratum only see the finished strata
// before it.
func (s *Strategy) Evaluate(prog *Program, facts *storage.Facts) (Stats, error) {
	var total Stats
	start := time.Now()
	for i, stratum := range prog.Strata {
		stats, err := s.evaluator.EvaluateStratum(stratum, facts, s.cfg.MaxTuples)
		total.add(stats)
		if err != nil {
			s.logger.Error("stratum evaluation failed", "stratum", i, "error", err)
			return total, err
		}
		s.metrics.observeStratum(s.evaluator.Name(), stats)
		s.logger.Debug("stratum evaluated",
			"stratum", i,
			"rules", len(stratum),
			"rounds", stats.Rounds,
			"derived", stats.Derived,
			"unions", stats.Unions)
	}
	s.logger.Info("program evaluated",
		"evaluator", s.evaluator.Name(),
		"strata", len(prog.Strata),
		"derived", total.Derived,
		"facts", facts.Size(),
		"duration", time.Since(start))
	return total, nil
}

// Result is the answer to a query: a relation of ground tuples whose
// positions follow Variables.
type Result struct {
	Variables []ir.Variable
	Relation  storage.Relation
}

// Tuples returns the answer tuples in term order.
func (r *Result) Tuples() []ir.Tuple {
	return storage.Sorted(r.Relation)
}

// Len returns the number of answers.
func (r *Result) Len() int {
	return r.Relation.Len()
}

// Query answers q against finalized facts. The query is compiled as a
// headless rule and evaluated once. When facts track equivalences every
// answer is expanded to all equivalent terms.
func (s *Strategy) Query(q ir.Query, facts *storage.Facts) (res *Result, err error) {
	start := time.Now()
	defer func() {
		s.metrics.observeQuery(time.Since(start).Seconds(), err)
	}()

	if err := s.validator.ProcessQuery(q); err != nil {
		return nil, err
	}
	outputs := s.validator.QueryOutputs(q)
	cr, err := s.compiler.CompileQuery(q, outputs)
	if err != nil {
		return nil, err
	}
	rel, err := cr.Evaluate(facts)
	if err != nil {
		return nil, err
	}
	if eq := facts.Equivalences(); eq != nil && eq.Len() > 0 {
		rel = expand(rel, eq)
	}

	s.logger.Debug("query executed", "query", q.String(), "answers", rel.Len())
	return &Result{Variables: outputs, Relation: rel}, nil
}

// expand returns every tuple obtained by replacing each term of a tuple in
// rel with any term equivalent to it.
func expand(rel storage.Relation, eq *storage.Equivalences) storage.Relation {
	out := storage.NewHashRelation()
	for _, t := range rel.Tuples() {
		choices := make([][]ir.Term, len(t))
		for i, term := range t {
			choices[i] = eq.Members(term)
		}
		product(choices, make(ir.Tuple, len(t)), 0, out)
	}
	return out
}

func product(choices [][]ir.Term, cur ir.Tuple, i int, out storage.Relation) {
	if i == len(choices) {
		out.Add(append(ir.Tuple(nil), cur...))
		return
	}
	for _, c := range choices[i] {
		cur[i] = c
		product(choices, cur, i+1, out)
	}
}
