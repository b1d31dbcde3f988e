package builtin

import (
	"cmp"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/deduce/internal/ir"
)

// decimalCtx is the arithmetic context for Decimal operands: 34 significant
// digits, the IEEE 754 decimal128 precision.
var decimalCtx = apd.BaseContext.WithPrecision(34)

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opMod
)

// numericValue returns the value of t when t is a numeric constant.
func numericValue(t ir.Term) (ir.Value, bool) {
	c, ok := t.(ir.Constant)
	if !ok {
		return nil, false
	}
	switch c.Value.(type) {
	case ir.Int, ir.Decimal, ir.Double:
		return c.Value, true
	}
	return nil, false
}

// promotedKind is the kind both operands are converted to:
// Int op Int stays Int, any Double wins, otherwise Decimal.
func promotedKind(a, b ir.Value) ir.ValueKind {
	switch {
	case a.Kind() == ir.KindDouble || b.Kind() == ir.KindDouble:
		return ir.KindDouble
	case a.Kind() == ir.KindDecimal || b.Kind() == ir.KindDecimal:
		return ir.KindDecimal
	default:
		return ir.KindInt
	}
}

func toDecimal(v ir.Value) *apd.Decimal {
	switch n := v.(type) {
	case ir.Int:
		return apd.New(int64(n), 0)
	case ir.Decimal:
		return n.Apd()
	case ir.Double:
		d, _, _ := apd.NewFromString(n.String())
		if d == nil {
			return apd.New(0, 0)
		}
		return d
	}
	return apd.New(0, 0)
}

func toFloat(v ir.Value) float64 {
	switch n := v.(type) {
	case ir.Int:
		return float64(n)
	case ir.Double:
		return float64(n)
	case ir.Decimal:
		f, err := n.Apd().Float64()
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func isZero(v ir.Value) bool {
	switch n := v.(type) {
	case ir.Int:
		return n == 0
	case ir.Double:
		return n == 0
	case ir.Decimal:
		return n.Apd().IsZero()
	}
	return false
}

// arithmetic computes a op b with numeric promotion. Integer division
// truncates toward zero. A zero divisor returns a divide-by-zero error.
func arithmetic(kind ir.BuiltinKind, op arithOp, a, b ir.Value) (ir.Value, error) {
	if (op == opDiv || op == opMod) && isZero(b) {
		return nil, divideByZero(kind, a)
	}
	switch promotedKind(a, b) {
	case ir.KindInt:
		x, y := int64(a.(ir.Int)), int64(b.(ir.Int))
		switch op {
		case opAdd:
			return ir.Int(x + y), nil
		case opSub:
			return ir.Int(x - y), nil
		case opMul:
			return ir.Int(x * y), nil
		case opDiv:
			return ir.Int(x / y), nil
		default:
			return ir.Int(x % y), nil
		}
	case ir.KindDouble:
		x, y := toFloat(a), toFloat(b)
		switch op {
		case opAdd:
			return ir.Double(x + y), nil
		case opSub:
			return ir.Double(x - y), nil
		case opMul:
			return ir.Double(x * y), nil
		case opDiv:
			return ir.Double(x / y), nil
		default:
			q := float64(int64(x / y))
			return ir.Double(x - q*y), nil
		}
	default:
		x, y := toDecimal(a), toDecimal(b)
		var res apd.Decimal
		var err error
		switch op {
		case opAdd:
			_, err = decimalCtx.Add(&res, x, y)
		case opSub:
			_, err = decimalCtx.Sub(&res, x, y)
		case opMul:
			_, err = decimalCtx.Mul(&res, x, y)
		case opDiv:
			_, err = decimalCtx.Quo(&res, x, y)
		default:
			_, err = decimalCtx.Rem(&res, x, y)
		}
		if err != nil {
			return nil, &Error{Code: ErrCodeBadArgument, Kind: kind, Message: err.Error()}
		}
		return ir.DecimalFromApd(&res), nil
	}
}

// compareTerms orders two ground terms for the comparison builtins.
// Numbers compare by value across kinds; other values compare only within
// their own kind. ok is false when the terms are not comparable.
func compareTerms(a, b ir.Term) (int, bool) {
	av, aNum := numericValue(a)
	bv, bNum := numericValue(b)
	if aNum && bNum {
		switch promotedKind(av, bv) {
		case ir.KindInt:
			return cmp.Compare(av.(ir.Int), bv.(ir.Int)), true
		case ir.KindDouble:
			return cmp.Compare(toFloat(av), toFloat(bv)), true
		default:
			return toDecimal(av).Cmp(toDecimal(bv)), true
		}
	}
	ac, aConst := a.(ir.Constant)
	bc, bConst := b.(ir.Constant)
	if aConst && bConst {
		if ac.Value.Kind() != bc.Value.Kind() {
			return 0, false
		}
		return ir.CompareValues(ac.Value, bc.Value), true
	}
	return ir.Compare(a, b), true
}

// termsEqual is EQUAL semantics: numeric values compare by value, all
// other terms structurally.
func termsEqual(a, b ir.Term) bool {
	c, ok := compareTerms(a, b)
	return ok && c == 0
}
