package builtin

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"

	"github.com/roach88/deduce/internal/ir"
)

// Outcome is the result category of evaluating one builtin instance.
type Outcome int

const (
	// NotEvaluable means too few arguments are bound. The row is dropped;
	// this is an expected join miss, not an error.
	NotEvaluable Outcome = iota
	// False means the builtin holds for no binding of its unbound arguments.
	False
	// True means the builtin holds; Bindings carries any newly bound variables.
	True
)

func (o Outcome) String() string {
	switch o {
	case NotEvaluable:
		return "not-evaluable"
	case False:
		return "false"
	case True:
		return "true"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what Evaluate returns for one row.
type Result struct {
	Outcome  Outcome
	Bindings ir.Substitution
}

var (
	resultFalse        = Result{Outcome: False}
	resultTrue         = Result{Outcome: True}
	resultNotEvaluable = Result{Outcome: NotEvaluable}
)

func boolResult(b bool) Result {
	if b {
		return resultTrue
	}
	return resultFalse
}

// Class groups builtins for rule-safety analysis.
type Class int

const (
	// ClassConstant builtins take no arguments (TRUE, FALSE).
	ClassConstant Class = iota
	// ClassEquality is EQUAL: one limited side limits the other.
	ClassEquality
	// ClassComparison builtins test ground arguments and bind nothing.
	ClassComparison
	// ClassArithmetic builtins are ternary op(a, b, c) meaning a op b = c.
	ClassArithmetic
	// ClassString builtins operate on string values.
	ClassString
	// ClassType builtins test the datatype of a ground argument.
	ClassType
)

// EvalFunc evaluates a builtin over arguments already substituted with the
// current row. Arguments may still contain unbound variables.
type EvalFunc func(kind ir.BuiltinKind, args ir.Tuple) (Result, error)

// Spec describes one builtin kind.
type Spec struct {
	Kind  ir.BuiltinKind
	Arity int
	Class Class

	// Outputs lists the argument positions the builtin can compute when
	// every other argument is ground. Empty for pure tests.
	Outputs []int

	Eval EvalFunc
}

// CanCompute reports whether the builtin can be evaluated when exactly the
// positions for which ground(i) is true are ground.
func (s Spec) CanCompute(ground func(pos int) bool) bool {
	unbound := -1
	for i := 0; i < s.Arity; i++ {
		if ground(i) {
			continue
		}
		if unbound >= 0 {
			return false
		}
		unbound = i
	}
	return unbound < 0 || slices.Contains(s.Outputs, unbound)
}

// Registry maps builtin kinds to their implementations.
//
// Thread-safety: lookups and evaluation are safe for concurrent use once
// registration is complete. The compiled-regexp cache is mutex guarded.
type Registry struct {
	specs map[ir.BuiltinKind]Spec

	mu      sync.Mutex
	regexps map[string]*regexp.Regexp
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[ir.BuiltinKind]Spec),
		regexps: make(map[string]*regexp.Regexp),
	}
}

// Default returns a registry holding every standard builtin.
func Default() *Registry {
	r := NewRegistry()
	for _, s := range r.standard() {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a builtin. Registering a kind twice is an error.
func (r *Registry) Register(s Spec) error {
	if s.Kind == "" {
		return fmt.Errorf("builtin kind is empty")
	}
	if s.Eval == nil {
		return fmt.Errorf("builtin %s: missing Eval", s.Kind)
	}
	if _, dup := r.specs[s.Kind]; dup {
		return fmt.Errorf("builtin %s already registered", s.Kind)
	}
	r.specs[s.Kind] = s
	return nil
}

// Lookup returns the spec for kind.
func (r *Registry) Lookup(kind ir.BuiltinKind) (Spec, bool) {
	s, ok := r.specs[kind]
	return s, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []ir.BuiltinKind {
	out := make([]ir.BuiltinKind, 0, len(r.specs))
	for k := range r.specs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckArity returns an *Error if a does not match its builtin's arity or
// names an unknown builtin.
func (r *Registry) CheckArity(a ir.Atom) error {
	s, ok := r.specs[a.Builtin]
	if !ok {
		return &Error{Code: ErrCodeUnknown, Kind: a.Builtin, Message: "no such builtin"}
	}
	if len(a.Args) != s.Arity {
		return &Error{
			Code:    ErrCodeArity,
			Kind:    a.Builtin,
			Message: fmt.Sprintf("expected %d arguments, got %d", s.Arity, len(a.Args)),
		}
	}
	return nil
}

// Evaluate substitutes s into the builtin atom and evaluates it.
func (r *Registry) Evaluate(a ir.Atom, s ir.Substitution) (Result, error) {
	if err := r.CheckArity(a); err != nil {
		return Result{}, err
	}
	args := a.Args
	if len(s) > 0 {
		args = ir.Substitute(a.Args, s)
	}
	return r.specs[a.Builtin].Eval(a.Builtin, args)
}

// compile returns a cached compiled regular expression.
func (r *Registry) compile(kind ir.BuiltinKind, pattern string) (*regexp.Regexp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if re, ok := r.regexps[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &Error{Code: ErrCodeBadArgument, Kind: kind, Message: err.Error()}
	}
	r.regexps[pattern] = re
	return re, nil
}
