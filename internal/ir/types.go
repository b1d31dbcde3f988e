package ir

import (
	"fmt"
	"strings"
)

// Predicate identifies a relation by symbol and arity. Two predicates are
// the same iff both fields match, so Predicate is usable as a map key.
type Predicate struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Arity  int    `json:"arity" yaml:"arity"`
}

// Pred creates a Predicate.
func Pred(symbol string, arity int) Predicate {
	return Predicate{Symbol: symbol, Arity: arity}
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s/%d", p.Symbol, p.Arity)
}

// BuiltinKind tags a builtin atom. The evaluation of each kind lives in
// package builtin; ir only names them.
type BuiltinKind string

const (
	BuiltinTrue         BuiltinKind = "TRUE"
	BuiltinFalse        BuiltinKind = "FALSE"
	BuiltinEqual        BuiltinKind = "EQUAL"
	BuiltinNotEqual     BuiltinKind = "NOT_EQUAL"
	BuiltinExactEqual   BuiltinKind = "EXACT_EQUAL"
	BuiltinLess         BuiltinKind = "LESS"
	BuiltinLessEqual    BuiltinKind = "LESS_EQUAL"
	BuiltinGreater      BuiltinKind = "GREATER"
	BuiltinGreaterEqual BuiltinKind = "GREATER_EQUAL"
	BuiltinAdd          BuiltinKind = "ADD"
	BuiltinSubtract     BuiltinKind = "SUBTRACT"
	BuiltinMultiply     BuiltinKind = "MULTIPLY"
	BuiltinDivide       BuiltinKind = "DIVIDE"
	BuiltinModulus      BuiltinKind = "MODULUS"
	BuiltinConcat       BuiltinKind = "STRING_CONCAT"
	BuiltinLength       BuiltinKind = "STRING_LENGTH"
	BuiltinUpper        BuiltinKind = "STRING_TO_UPPER"
	BuiltinLower        BuiltinKind = "STRING_TO_LOWER"
	BuiltinStartsWith   BuiltinKind = "STRING_STARTS_WITH"
	BuiltinEndsWith     BuiltinKind = "STRING_ENDS_WITH"
	BuiltinContains     BuiltinKind = "STRING_CONTAINS"
	BuiltinMatches      BuiltinKind = "STRING_MATCHES"
	BuiltinReplace      BuiltinKind = "STRING_REPLACE"
	BuiltinIsInt        BuiltinKind = "IS_INTEGER"
	BuiltinIsString     BuiltinKind = "IS_STRING"
	BuiltinIsNumeric    BuiltinKind = "IS_NUMERIC"
)

// infixOps renders binary and ternary builtins the way rules are usually
// written (?X < ?Y, ?A + ?B = ?C).
var infixOps = map[BuiltinKind]string{
	BuiltinEqual:        "=",
	BuiltinNotEqual:     "!=",
	BuiltinExactEqual:   "=.=",
	BuiltinLess:         "<",
	BuiltinLessEqual:    "<=",
	BuiltinGreater:      ">",
	BuiltinGreaterEqual: ">=",
	BuiltinAdd:          "+",
	BuiltinSubtract:     "-",
	BuiltinMultiply:     "*",
	BuiltinDivide:       "/",
	BuiltinModulus:      "%",
}

// Atom is either ordinary (Predicate set, Builtin empty) or a builtin
// (Builtin set, Predicate zero). Args holds the argument terms in both cases.
type Atom struct {
	Predicate Predicate
	Builtin   BuiltinKind
	Args      Tuple
}

// Ordinary creates an ordinary atom; the arity is taken from args.
func Ordinary(symbol string, args ...Term) Atom {
	return Atom{Predicate: Pred(symbol, len(args)), Args: args}
}

// BuiltinAtom creates a builtin atom.
func BuiltinAtom(kind BuiltinKind, args ...Term) Atom {
	return Atom{Builtin: kind, Args: args}
}

// IsBuiltin reports whether the atom is a builtin.
func (a Atom) IsBuiltin() bool {
	return a.Builtin != ""
}

func (a Atom) String() string {
	if !a.IsBuiltin() {
		if len(a.Args) == 0 {
			return a.Predicate.Symbol
		}
		return a.Predicate.Symbol + a.Args.String()
	}
	if len(a.Args) == 0 {
		return string(a.Builtin)
	}
	if op, ok := infixOps[a.Builtin]; ok {
		switch len(a.Args) {
		case 2:
			return fmt.Sprintf("%s %s %s", a.Args[0], op, a.Args[1])
		case 3:
			return fmt.Sprintf("%s %s %s = %s", a.Args[0], op, a.Args[1], a.Args[2])
		}
	}
	return string(a.Builtin) + a.Args.String()
}

// Literal is a positive or negated atom.
type Literal struct {
	Positive bool
	Atom     Atom
}

// Pos creates a positive ordinary literal.
func Pos(symbol string, args ...Term) Literal {
	return Literal{Positive: true, Atom: Ordinary(symbol, args...)}
}

// Neg creates a negated ordinary literal.
func Neg(symbol string, args ...Term) Literal {
	return Literal{Positive: false, Atom: Ordinary(symbol, args...)}
}

// Bi creates a positive builtin literal.
func Bi(kind BuiltinKind, args ...Term) Literal {
	return Literal{Positive: true, Atom: BuiltinAtom(kind, args...)}
}

// Variables returns the literal's distinct variables in first-occurrence order.
func (l Literal) Variables() []Variable {
	return l.Atom.Args.Variables()
}

// Equal reports structural equality of two literals.
func (l Literal) Equal(o Literal) bool {
	return l.Positive == o.Positive &&
		l.Atom.Predicate == o.Atom.Predicate &&
		l.Atom.Builtin == o.Atom.Builtin &&
		l.Atom.Args.Equal(o.Atom.Args)
}

func (l Literal) String() string {
	if l.Positive {
		return l.Atom.String()
	}
	return "not " + l.Atom.String()
}

// Rule has exactly one positive head literal and an ordered body.
//
// The head is normally ordinary. A head with Builtin == BuiltinEqual is a
// rule-head equality: instead of deriving a tuple it declares its two
// arguments equivalent.
type Rule struct {
	Head Literal
	Body []Literal
}

// NewRule creates a rule from a head atom and body literals.
func NewRule(head Atom, body ...Literal) Rule {
	return Rule{Head: Literal{Positive: true, Atom: head}, Body: body}
}

// IsHeadEquality reports whether the rule derives term equivalences.
func (r Rule) IsHeadEquality() bool {
	return r.Head.Atom.Builtin == BuiltinEqual
}

// BodyVariables returns the distinct body variables in first-occurrence order.
func (r Rule) BodyVariables() []Variable {
	seen := map[Variable]bool{}
	var out []Variable
	for _, l := range r.Body {
		for _, t := range l.Atom.Args {
			out = CollectVariables(out, seen, t)
		}
	}
	return out
}

func (r Rule) String() string {
	if len(r.Body) == 0 {
		return r.Head.String() + "."
	}
	return r.Head.String() + " :- " + joinLiterals(r.Body) + "."
}

// Query is a conjunction of literals. Its output variables are the distinct
// variables of the body in first-occurrence order.
type Query struct {
	Body []Literal
}

// NewQuery creates a query from body literals.
func NewQuery(body ...Literal) Query {
	return Query{Body: body}
}

// OutputVariables returns the query's distinct variables in first-occurrence order.
func (q Query) OutputVariables() []Variable {
	seen := map[Variable]bool{}
	var out []Variable
	for _, l := range q.Body {
		for _, t := range l.Atom.Args {
			out = CollectVariables(out, seen, t)
		}
	}
	return out
}

// NegatedOnlyVariables returns, in first-occurrence order, the variables
// that occur only in negated ordinary literals.
func (q Query) NegatedOnlyVariables() []Variable {
	elsewhere := map[Variable]bool{}
	for _, l := range q.Body {
		if l.Positive || l.Atom.IsBuiltin() {
			for _, v := range l.Variables() {
				elsewhere[v] = true
			}
		}
	}
	var out []Variable
	for _, v := range q.OutputVariables() {
		if !elsewhere[v] {
			out = append(out, v)
		}
	}
	return out
}

// AsRule returns the query as a headless rule whose head tuple lists the
// output variables. The head predicate symbol is empty.
func (q Query) AsRule() Rule {
	return q.RuleFor(q.OutputVariables())
}

// RuleFor returns the query as a headless rule whose head tuple lists vars.
func (q Query) RuleFor(vars []Variable) Rule {
	head := make(Tuple, len(vars))
	for i, v := range vars {
		head[i] = v
	}
	return Rule{
		Head: Literal{Positive: true, Atom: Atom{Predicate: Pred("", len(head)), Args: head}},
		Body: q.Body,
	}
}

func (q Query) String() string {
	return "?- " + joinLiterals(q.Body) + "."
}

func joinLiterals(ls []Literal) string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.String()
	}
	return strings.Join(parts, ", ")
}

// Program is a complete input: facts, rules, and queries.
//
// Facts is keyed by predicate; each tuple must be ground and have the
// predicate's arity.
type Program struct {
	Facts   map[Predicate][]Tuple
	Rules   []Rule
	Queries []Query
}

// AddFact appends a ground tuple for symbol, creating the map on first use.
func (p *Program) AddFact(symbol string, args ...Term) {
	if p.Facts == nil {
		p.Facts = make(map[Predicate][]Tuple)
	}
	pred := Pred(symbol, len(args))
	p.Facts[pred] = append(p.Facts[pred], Tuple(args))
}

// BuiltinForOperator returns the kind written with infix operator op, so
// "<" gives BuiltinLess and "+" gives BuiltinAdd.
func BuiltinForOperator(op string) (BuiltinKind, bool) {
	for k, o := range infixOps {
		if o == op {
			return k, true
		}
	}
	return "", false
}
