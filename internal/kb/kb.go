package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/evaluation"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/storage"
)

// KnowledgeBase holds a program's facts and rules and answers queries
// against their minimal model.
//
// The model is computed lazily: Execute evaluates the whole program, and
// EvaluateQuery calls Execute first whenever the model is stale. AddFacts
// and RetainFacts change the base facts and mark the model stale; the next
// evaluation recomputes it from the base facts.
//
// Thread-safety: every method is safe for concurrent use. A mutex
// serializes them, so exactly one evaluation runs at a time.
//
// INVARIANTS:
//   - base holds only ground facts of the right arity
//   - model is nil or the minimal model of base plus loaded source data
type KnowledgeBase struct {
	mu sync.Mutex

	strategy *evaluation.Strategy
	rules    []ir.Rule
	queries  []ir.Query
	base     *storage.Facts
	sources  map[ir.Predicate]DataSource
	patterns map[ir.Predicate]ir.Tuple

	program *evaluation.Program
	prepErr error
	model   *storage.Facts
	stats   evaluation.Stats

	logger *slog.Logger
}

// Option configures a KnowledgeBase.
type Option func(*options)

type options struct {
	strategy []evaluation.Option
	sources  []DataSource
	logger   *slog.Logger
}

// WithDataSource adds an external source of facts. Its predicates are
// loaded on each evaluation, selecting only what the rules and queries can
// use.
func WithDataSource(src DataSource) Option {
	return func(o *options) {
		o.sources = append(o.sources, src)
	}
}

// WithMetrics records evaluation metrics on m.
func WithMetrics(m *evaluation.Metrics) Option {
	return func(o *options) {
		o.strategy = append(o.strategy, evaluation.WithMetrics(m))
	}
}

// WithRegistry replaces the default builtin registry.
func WithRegistry(reg *builtin.Registry) Option {
	return func(o *options) {
		o.strategy = append(o.strategy, evaluation.WithRegistry(reg))
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
		o.strategy = append(o.strategy, evaluation.WithLogger(l))
	}
}

// New creates a knowledge base for prog.
//
// Structural errors in prog are reported here as an *InvalidProgramError.
// Safety and stratification are checked by the first Execute.
func New(prog *ir.Program, cfg config.Config, opts ...Option) (*KnowledgeBase, error) {
	if prog == nil {
		prog = &ir.Program{}
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	strategy, err := evaluation.New(cfg, o.strategy...)
	if err != nil {
		return nil, err
	}

	var fatal []compiler.ValidationError
	for _, e := range compiler.ValidateProgram(prog, strategy.Registry()) {
		if e.Code == compiler.ErrArityConflict {
			o.logger.Warn("predicate symbol used with several arities", "field", e.Field, "message", e.Message)
			continue
		}
		fatal = append(fatal, e)
	}
	if len(fatal) > 0 {
		return nil, &InvalidProgramError{Errors: fatal}
	}

	kb := &KnowledgeBase{
		strategy: strategy,
		rules:    append([]ir.Rule(nil), prog.Rules...),
		queries:  append([]ir.Query(nil), prog.Queries...),
		base:     strategy.NewFacts(false),
		sources:  make(map[ir.Predicate]DataSource),
		logger:   o.logger,
	}
	for p, ts := range prog.Facts {
		for _, t := range ts {
			kb.base.Add(p, t)
		}
	}
	for _, src := range o.sources {
		for _, p := range src.Predicates() {
			kb.sources[p] = src
		}
	}
	kb.patterns = patternsFor(kb.sources, kb.rules, kb.queries)
	return kb, nil
}

// InvalidProgramError lists the structural errors of a program.
type InvalidProgramError struct {
	Errors []compiler.ValidationError
}

// Error implements the error interface.
func (e *InvalidProgramError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid program: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("invalid program: %s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
}

// IsInvalidProgram returns true if err is or wraps an *InvalidProgramError.
func IsInvalidProgram(err error) bool {
	var e *InvalidProgramError
	return errors.As(err, &e)
}

// Rules returns the program's rules.
func (kb *KnowledgeBase) Rules() []ir.Rule {
	return append([]ir.Rule(nil), kb.rules...)
}

// Queries returns the queries that came with the program.
func (kb *KnowledgeBase) Queries() []ir.Query {
	return append([]ir.Query(nil), kb.queries...)
}

// Config returns the configuration in use.
func (kb *KnowledgeBase) Config() config.Config {
	return kb.strategy.Config()
}

// Program returns the stratified, compiled rules, preparing them on first
// use.
//
// Errors: *compiler.RuleUnsafeError, *compiler.ProgramNotStratifiedError,
// *compiler.EvaluationError.
func (kb *KnowledgeBase) Program() (*evaluation.Program, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.prepare()
}

func (kb *KnowledgeBase) prepare() (*evaluation.Program, error) {
	if kb.program == nil && kb.prepErr == nil {
		kb.program, kb.prepErr = kb.strategy.Prepare(kb.rules)
		if kb.prepErr != nil {
			kb.logger.Error("program rejected", "error", kb.prepErr)
		}
	}
	return kb.program, kb.prepErr
}

// Execute computes the minimal model.
//
// Errors: *compiler.RuleUnsafeError, *compiler.ProgramNotStratifiedError,
// *compiler.EvaluationError, or a wrapped data source error. On error the
// previous model is discarded and no partial model is kept.
func (kb *KnowledgeBase) Execute(ctx context.Context) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.execute(ctx)
}

func (kb *KnowledgeBase) execute(ctx context.Context) error {
	kb.model = nil
	prog, err := kb.prepare()
	if err != nil {
		return err
	}

	model := kb.strategy.NewFacts(prog.Equality)
	model.AddAll(kb.base)
	if err := kb.loadSources(ctx, model); err != nil {
		return err
	}

	stats, err := kb.strategy.Evaluate(prog, model)
	if err != nil {
		return err
	}
	kb.model = model
	kb.stats = stats
	return nil
}

func (kb *KnowledgeBase) loadSources(ctx context.Context, model *storage.Facts) error {
	preds := make([]ir.Predicate, 0, len(kb.patterns))
	for p := range kb.patterns {
		preds = append(preds, p)
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i].String() < preds[j].String() })

	for _, p := range preds {
		pattern := kb.patterns[p]
		tuples, err := kb.sources[p].Get(ctx, p, pattern)
		if err != nil {
			return fmt.Errorf("load %s from data source: %w", p, err)
		}
		loaded := 0
		for _, t := range tuples {
			if _, ok := ir.Match(pattern, t); !ok {
				continue
			}
			if model.Add(p, t) {
				loaded++
			}
		}
		kb.logger.Debug("data source loaded", "predicate", p.String(), "pattern", pattern.String(), "tuples", loaded)
	}
	return nil
}

// EvaluateQuery answers q, evaluating the program first if the model is
// stale.
func (kb *KnowledgeBase) EvaluateQuery(ctx context.Context, q ir.Query) (*evaluation.Result, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.widenPatterns(q) {
		kb.model = nil
	}
	if kb.model == nil {
		if err := kb.execute(ctx); err != nil {
			return nil, err
		}
	}
	return kb.strategy.Query(q, kb.model)
}

// widenPatterns extends the source selections so they cover q and reports
// whether any selection changed.
func (kb *KnowledgeBase) widenPatterns(q ir.Query) bool {
	changed := false
	for _, l := range q.Body {
		if l.Atom.IsBuiltin() {
			continue
		}
		p := l.Atom.Predicate
		if _, ok := kb.sources[p]; !ok {
			continue
		}
		if cur := kb.patterns[p]; !covers(cur, l.Atom.Args) {
			kb.patterns[p] = generalize(cur, l.Atom.Args)
			changed = true
		}
	}
	return changed
}

// AddFacts merges facts into the base facts and marks the model stale. It
// returns the number of tuples that were new.
//
// Every tuple must be ground and match its predicate's arity; otherwise
// nothing is added.
func (kb *KnowledgeBase) AddFacts(facts map[ir.Predicate][]ir.Tuple) (int, error) {
	for p, ts := range facts {
		for _, t := range ts {
			if len(t) != p.Arity {
				return 0, fmt.Errorf("add fact %s%s: arity %d, want %d", p.Symbol, t, len(t), p.Arity)
			}
			if !t.IsGround() {
				return 0, fmt.Errorf("add fact %s%s: not ground", p.Symbol, t)
			}
		}
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	added := 0
	for p, ts := range facts {
		for _, t := range ts {
			if kb.base.Add(p, t) {
				added++
			}
		}
	}
	if added > 0 {
		kb.model = nil
	}
	return added, nil
}

// RetainFacts keeps only the base facts for which keep returns true and
// marks the model stale if any were removed. It returns the number removed.
func (kb *KnowledgeBase) RetainFacts(keep func(p ir.Predicate, t ir.Tuple) bool) int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	removed := kb.base.Retain(keep)
	if removed > 0 {
		kb.model = nil
	}
	return removed
}

// HasFact reports whether t is a base fact of p.
func (kb *KnowledgeBase) HasFact(p ir.Predicate, t ir.Tuple) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	r, ok := kb.base.Lookup(p)
	return ok && r.Contains(t)
}

// Size returns the number of base facts.
func (kb *KnowledgeBase) Size() int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.base.Size()
}

// Stats returns the statistics of the last successful evaluation.
func (kb *KnowledgeBase) Stats() evaluation.Stats {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.stats
}

// Snapshot returns every tuple of the model by predicate, each relation in
// term order. The program is evaluated first if the model is stale.
func (kb *KnowledgeBase) Snapshot(ctx context.Context) (map[ir.Predicate][]ir.Tuple, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.model == nil {
		if err := kb.execute(ctx); err != nil {
			return nil, err
		}
	}
	out := make(map[ir.Predicate][]ir.Tuple)
	for _, p := range kb.model.Predicates() {
		if ts := storage.Sorted(kb.model.Get(p)); len(ts) > 0 {
			out[p] = ts
		}
	}
	return out, nil
}
