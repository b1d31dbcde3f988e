package ir

import (
	"cmp"
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the concrete scalar datatypes a Constant
// term can carry. Only Bool, Int, Decimal, Double, String, and IRI implement it.
//
// Values of different kinds are never structurally equal, even when they
// denote the same number (Int(1) != Double(1)). Numeric promotion across
// kinds belongs to the builtin layer, not to term identity.
type Value interface {
	value() // Sealed - only these types implement it

	// Kind reports the datatype of the value.
	Kind() ValueKind

	// String renders the value the way it appears in rule listings.
	String() string
}

// ValueKind identifies a concrete datatype. The numeric order of the kinds
// is the cross-datatype sort order used by Compare.
type ValueKind int

const (
	KindBool ValueKind = iota + 1
	KindInt
	KindDecimal
	KindDouble
	KindString
	KindIRI
)

// String returns the datatype name.
func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindIRI:
		return "iri"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Bool is a boolean value.
type Bool bool

func (Bool) value()          {}
func (Bool) Kind() ValueKind { return KindBool }
func (b Bool) String() string {
	return strconv.FormatBool(bool(b))
}

// Int is a 64-bit signed integer value.
type Int int64

func (Int) value()          {}
func (Int) Kind() ValueKind { return KindInt }
func (i Int) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// Double is an IEEE-754 double value.
type Double float64

func (Double) value()          {}
func (Double) Kind() ValueKind { return KindDouble }
func (d Double) String() string {
	return strconv.FormatFloat(float64(d), 'g', -1, 64)
}

// String is a text value. Use NewString to obtain the NFC-normalized form;
// two strings that differ only in Unicode normalization must not produce
// distinct facts.
type String string

func (String) value()          {}
func (String) Kind() ValueKind { return KindString }
func (s String) String() string {
	return strconv.Quote(string(s))
}

// IRI is an internationalized resource identifier value.
type IRI string

func (IRI) value()          {}
func (IRI) Kind() ValueKind { return KindIRI }
func (i IRI) String() string {
	return "<" + string(i) + ">"
}

// Decimal is an arbitrary-precision decimal value backed by apd.
//
// Decimals compare by numeric value: 1.0 and 1.00 are equal and share one
// canonical encoding.
type Decimal struct {
	d apd.Decimal
}

func (Decimal) value()          {}
func (Decimal) Kind() ValueKind { return KindDecimal }
func (d Decimal) String() string {
	return d.d.Text('f')
}

// Apd returns a copy of the underlying apd decimal.
func (d Decimal) Apd() *apd.Decimal {
	var out apd.Decimal
	out.Set(&d.d)
	return &out
}

// NewString creates a String value in Unicode NFC form.
func NewString(s string) String {
	return String(norm.NFC.String(s))
}

// NewDecimal parses a decimal literal such as "12.50".
func NewDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return DecimalFromApd(d), nil
}

// MustDecimal is like NewDecimal but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DecimalFromApd wraps an apd decimal. The argument is copied.
func DecimalFromApd(d *apd.Decimal) Decimal {
	var out Decimal
	out.d.Set(d)
	return out
}

// CompareValues orders two values: first by kind, then by the kind's own
// order. Doubles order NaN before every other double so the order stays total.
func CompareValues(a, b Value) int {
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}
	switch av := a.(type) {
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Int:
		return cmp.Compare(av, b.(Int))
	case Double:
		return compareDoubles(float64(av), float64(b.(Double)))
	case Decimal:
		bv := b.(Decimal)
		return av.d.Cmp(&bv.d)
	case String:
		return cmp.Compare(av, b.(String))
	case IRI:
		return cmp.Compare(av, b.(IRI))
	default:
		panic(fmt.Sprintf("unknown value type: %T", a))
	}
}

func compareDoubles(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	return cmp.Compare(a, b)
}

// ValuesEqual reports structural equality of two values.
func ValuesEqual(a, b Value) bool {
	return CompareValues(a, b) == 0
}
