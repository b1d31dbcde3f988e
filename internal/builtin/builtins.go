package builtin

import (
	"strings"
	"unicode/utf8"

	"github.com/roach88/deduce/internal/ir"
)

// standard returns the specs of every builtin shipped with the engine.
func (r *Registry) standard() []Spec {
	return []Spec{
		{Kind: ir.BuiltinTrue, Arity: 0, Class: ClassConstant, Eval: constant(true)},
		{Kind: ir.BuiltinFalse, Arity: 0, Class: ClassConstant, Eval: constant(false)},

		{Kind: ir.BuiltinEqual, Arity: 2, Class: ClassEquality, Outputs: []int{0, 1}, Eval: evalEqual},
		{Kind: ir.BuiltinNotEqual, Arity: 2, Class: ClassComparison, Eval: comparison(func(c int) bool { return c != 0 }, true)},
		{Kind: ir.BuiltinExactEqual, Arity: 2, Class: ClassComparison, Eval: evalExactEqual},
		{Kind: ir.BuiltinLess, Arity: 2, Class: ClassComparison, Eval: comparison(func(c int) bool { return c < 0 }, false)},
		{Kind: ir.BuiltinLessEqual, Arity: 2, Class: ClassComparison, Eval: comparison(func(c int) bool { return c <= 0 }, false)},
		{Kind: ir.BuiltinGreater, Arity: 2, Class: ClassComparison, Eval: comparison(func(c int) bool { return c > 0 }, false)},
		{Kind: ir.BuiltinGreaterEqual, Arity: 2, Class: ClassComparison, Eval: comparison(func(c int) bool { return c >= 0 }, false)},

		{Kind: ir.BuiltinAdd, Arity: 3, Class: ClassArithmetic, Outputs: []int{0, 1, 2}, Eval: ternary(opAdd, invertAdd)},
		{Kind: ir.BuiltinSubtract, Arity: 3, Class: ClassArithmetic, Outputs: []int{0, 1, 2}, Eval: ternary(opSub, invertSubtract)},
		{Kind: ir.BuiltinMultiply, Arity: 3, Class: ClassArithmetic, Outputs: []int{0, 1, 2}, Eval: ternary(opMul, invertMultiply)},
		{Kind: ir.BuiltinDivide, Arity: 3, Class: ClassArithmetic, Outputs: []int{0, 1, 2}, Eval: ternary(opDiv, invertDivide)},
		{Kind: ir.BuiltinModulus, Arity: 3, Class: ClassArithmetic, Outputs: []int{2}, Eval: ternary(opMod, nil)},

		{Kind: ir.BuiltinConcat, Arity: 3, Class: ClassString, Outputs: []int{0, 1, 2}, Eval: evalConcat},
		{Kind: ir.BuiltinLength, Arity: 2, Class: ClassString, Outputs: []int{1}, Eval: stringFunc(func(s string) ir.Term {
			return ir.I(int64(utf8.RuneCountInString(s)))
		})},
		{Kind: ir.BuiltinUpper, Arity: 2, Class: ClassString, Outputs: []int{1}, Eval: stringFunc(func(s string) ir.Term {
			return ir.S(strings.ToUpper(s))
		})},
		{Kind: ir.BuiltinLower, Arity: 2, Class: ClassString, Outputs: []int{1}, Eval: stringFunc(func(s string) ir.Term {
			return ir.S(strings.ToLower(s))
		})},
		{Kind: ir.BuiltinStartsWith, Arity: 2, Class: ClassString, Eval: stringTest(strings.HasPrefix)},
		{Kind: ir.BuiltinEndsWith, Arity: 2, Class: ClassString, Eval: stringTest(strings.HasSuffix)},
		{Kind: ir.BuiltinContains, Arity: 2, Class: ClassString, Eval: stringTest(strings.Contains)},
		{Kind: ir.BuiltinMatches, Arity: 2, Class: ClassString, Eval: r.evalMatches},
		{Kind: ir.BuiltinReplace, Arity: 4, Class: ClassString, Outputs: []int{3}, Eval: r.evalReplace},

		{Kind: ir.BuiltinIsInt, Arity: 1, Class: ClassType, Eval: typeTest(ir.KindInt)},
		{Kind: ir.BuiltinIsString, Arity: 1, Class: ClassType, Eval: typeTest(ir.KindString)},
		{Kind: ir.BuiltinIsNumeric, Arity: 1, Class: ClassType, Eval: typeTest(ir.KindInt, ir.KindDecimal, ir.KindDouble)},
	}
}

func constant(b bool) EvalFunc {
	return func(ir.BuiltinKind, ir.Tuple) (Result, error) {
		return boolResult(b), nil
	}
}

// bindOrCheck unifies a possibly non-ground argument with a computed value.
func bindOrCheck(pattern, value ir.Term) Result {
	if pattern.IsGround() {
		return boolResult(termsEqual(pattern, value))
	}
	s := ir.Substitution{}
	if !ir.MatchTerm(pattern, value, s) {
		return resultFalse
	}
	return Result{Outcome: True, Bindings: s}
}

func evalEqual(_ ir.BuiltinKind, args ir.Tuple) (Result, error) {
	a, b := args[0], args[1]
	switch {
	case a.IsGround() && b.IsGround():
		return boolResult(termsEqual(a, b)), nil
	case b.IsGround():
		return bindOrCheck(a, b), nil
	case a.IsGround():
		return bindOrCheck(b, a), nil
	default:
		return resultNotEvaluable, nil
	}
}

func evalExactEqual(_ ir.BuiltinKind, args ir.Tuple) (Result, error) {
	if !args.IsGround() {
		return resultNotEvaluable, nil
	}
	return boolResult(ir.Equal(args[0], args[1])), nil
}

// comparison builds a two-argument test. Incomparable arguments (a string
// and a number) yield incomparable, which is true only for NOT_EQUAL.
func comparison(test func(int) bool, incomparable bool) EvalFunc {
	return func(_ ir.BuiltinKind, args ir.Tuple) (Result, error) {
		if !args.IsGround() {
			return resultNotEvaluable, nil
		}
		c, ok := compareTerms(args[0], args[1])
		if !ok {
			return boolResult(incomparable), nil
		}
		return boolResult(test(c)), nil
	}
}

// inverseFunc computes the operand at position missing (0 or 1) of
// a op b = c from the other operand x and the result c.
type inverseFunc func(kind ir.BuiltinKind, missing int, x, c ir.Value) (ir.Value, Outcome, error)

// ternary builds the evaluation of op(a, b, c) meaning a op b = c. When
// inverse is nil only c can be computed.
func ternary(op arithOp, inverse inverseFunc) EvalFunc {
	return func(kind ir.BuiltinKind, args ir.Tuple) (Result, error) {
		var vals [3]ir.Value
		missing := -1
		for i, t := range args {
			if !t.IsGround() {
				if missing >= 0 {
					return resultNotEvaluable, nil
				}
				missing = i
				continue
			}
			v, ok := numericValue(t)
			if !ok {
				return resultFalse, nil
			}
			vals[i] = v
		}

		switch missing {
		case -1, 2:
			res, err := arithmetic(kind, op, vals[0], vals[1])
			if err != nil {
				return Result{}, err
			}
			return bindOrCheck(args[2], ir.C(res)), nil
		default:
			if inverse == nil {
				return resultNotEvaluable, nil
			}
			x := vals[1-missing]
			res, outcome, err := inverse(kind, missing, x, vals[2])
			if err != nil || outcome != True {
				return Result{Outcome: outcome}, err
			}
			return bindOrCheck(args[missing], ir.C(res)), nil
		}
	}
}

func invertAdd(kind ir.BuiltinKind, _ int, x, c ir.Value) (ir.Value, Outcome, error) {
	v, err := arithmetic(kind, opSub, c, x)
	return v, True, err
}

func invertSubtract(kind ir.BuiltinKind, missing int, x, c ir.Value) (ir.Value, Outcome, error) {
	if missing == 0 {
		v, err := arithmetic(kind, opAdd, c, x)
		return v, True, err
	}
	v, err := arithmetic(kind, opSub, x, c)
	return v, True, err
}

// invertMultiply solves x * ? = c. A zero x leaves the operand free when c
// is zero and unsatisfiable otherwise; integers must divide exactly.
func invertMultiply(kind ir.BuiltinKind, _ int, x, c ir.Value) (ir.Value, Outcome, error) {
	if isZero(x) {
		if isZero(c) {
			return nil, NotEvaluable, nil
		}
		return nil, False, nil
	}
	if xi, ok := x.(ir.Int); ok {
		if ci, ok := c.(ir.Int); ok && int64(ci)%int64(xi) != 0 {
			return nil, False, nil
		}
	}
	v, err := arithmetic(kind, opDiv, c, x)
	return v, True, err
}

// invertDivide solves ? / b = c as b * c, and a / ? = c as a / c.
func invertDivide(kind ir.BuiltinKind, missing int, x, c ir.Value) (ir.Value, Outcome, error) {
	if missing == 0 {
		v, err := arithmetic(kind, opMul, x, c)
		return v, True, err
	}
	v, err := arithmetic(kind, opDiv, x, c)
	return v, True, err
}

func stringOf(t ir.Term) (string, bool) {
	c, ok := t.(ir.Constant)
	if !ok {
		return "", false
	}
	s, ok := c.Value.(ir.String)
	return string(s), ok
}

func evalConcat(_ ir.BuiltinKind, args ir.Tuple) (Result, error) {
	a, b, c := args[0], args[1], args[2]
	as, aok := stringOf(a)
	bs, bok := stringOf(b)
	cs, cok := stringOf(c)
	switch {
	case a.IsGround() && b.IsGround():
		if !aok || !bok {
			return resultFalse, nil
		}
		return bindOrCheck(c, ir.S(as+bs)), nil
	case a.IsGround() && c.IsGround():
		if !aok || !cok || !strings.HasPrefix(cs, as) {
			return resultFalse, nil
		}
		return bindOrCheck(b, ir.S(cs[len(as):])), nil
	case b.IsGround() && c.IsGround():
		if !bok || !cok || !strings.HasSuffix(cs, bs) {
			return resultFalse, nil
		}
		return bindOrCheck(a, ir.S(cs[:len(cs)-len(bs)])), nil
	default:
		return resultNotEvaluable, nil
	}
}

// stringFunc builds f(a) = b over a ground string a.
func stringFunc(f func(string) ir.Term) EvalFunc {
	return func(_ ir.BuiltinKind, args ir.Tuple) (Result, error) {
		if !args[0].IsGround() {
			return resultNotEvaluable, nil
		}
		s, ok := stringOf(args[0])
		if !ok {
			return resultFalse, nil
		}
		return bindOrCheck(args[1], f(s)), nil
	}
}

func stringTest(test func(s, sub string) bool) EvalFunc {
	return func(_ ir.BuiltinKind, args ir.Tuple) (Result, error) {
		if !args.IsGround() {
			return resultNotEvaluable, nil
		}
		a, aok := stringOf(args[0])
		b, bok := stringOf(args[1])
		return boolResult(aok && bok && test(a, b)), nil
	}
}

func (r *Registry) evalMatches(kind ir.BuiltinKind, args ir.Tuple) (Result, error) {
	if !args.IsGround() {
		return resultNotEvaluable, nil
	}
	s, sok := stringOf(args[0])
	pattern, pok := stringOf(args[1])
	if !sok || !pok {
		return resultFalse, nil
	}
	re, err := r.compile(kind, pattern)
	if err != nil {
		return Result{}, err
	}
	return boolResult(re.MatchString(s)), nil
}

// evalReplace is STRING_REPLACE(s, pattern, replacement, result).
func (r *Registry) evalReplace(kind ir.BuiltinKind, args ir.Tuple) (Result, error) {
	if !args[:3].IsGround() {
		return resultNotEvaluable, nil
	}
	s, sok := stringOf(args[0])
	pattern, pok := stringOf(args[1])
	repl, rok := stringOf(args[2])
	if !sok || !pok || !rok {
		return resultFalse, nil
	}
	re, err := r.compile(kind, pattern)
	if err != nil {
		return Result{}, err
	}
	return bindOrCheck(args[3], ir.S(re.ReplaceAllString(s, repl))), nil
}

func typeTest(kinds ...ir.ValueKind) EvalFunc {
	return func(_ ir.BuiltinKind, args ir.Tuple) (Result, error) {
		if !args[0].IsGround() {
			return resultNotEvaluable, nil
		}
		c, ok := args[0].(ir.Constant)
		if !ok {
			return resultFalse, nil
		}
		for _, k := range kinds {
			if c.Value.Kind() == k {
				return resultTrue, nil
			}
		}
		return resultFalse, nil
	}
}
