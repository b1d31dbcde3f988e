package loader

import (
	"fmt"
	"sort"

	"github.com/roach88/deduce/internal/ir"
)

// Document is the decoded form of a program file. Terms are generic values
// in the encoding documented by ir.DecodeTerm.
type Document struct {
	Version string             `yaml:"version,omitempty" json:"version,omitempty"`
	Facts   map[string][][]any `yaml:"facts,omitempty" json:"facts,omitempty"`
	Rules   []RuleDoc          `yaml:"rules,omitempty" json:"rules,omitempty"`
	Queries [][]LiteralDoc     `yaml:"queries,omitempty" json:"queries,omitempty"`
}

// RuleDoc is one rule. An empty body makes the head a fact.
type RuleDoc struct {
	Head AtomDoc      `yaml:"head" json:"head"`
	Body []LiteralDoc `yaml:"body,omitempty" json:"body,omitempty"`
}

// AtomDoc is an ordinary atom (Pred set) or a builtin (Builtin set). A
// builtin may be named by kind ("LESS") or by infix operator ("<").
type AtomDoc struct {
	Pred    string `yaml:"pred,omitempty" json:"pred,omitempty"`
	Builtin string `yaml:"builtin,omitempty" json:"builtin,omitempty"`
	Args    []any  `yaml:"args,omitempty" json:"args,omitempty"`
}

// LiteralDoc is an atom that may be negated.
type LiteralDoc struct {
	AtomDoc `yaml:",inline"`
	Negated bool `yaml:"negated,omitempty" json:"negated,omitempty"`
}

// Program converts the document. The first malformed element is reported
// as a *LoadError naming its path in the document.
func (d *Document) Program() (*ir.Program, error) {
	if d.Version != "" && d.Version != ir.FormatVersion {
		return nil, &LoadError{Code: ErrCodeVersion, Path: "version",
			Message: fmt.Sprintf("unsupported format version %q (want %q)", d.Version, ir.FormatVersion)}
	}

	prog := &ir.Program{}

	symbols := make([]string, 0, len(d.Facts))
	for s := range d.Facts {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		if s == "" {
			return nil, &LoadError{Code: ErrCodeAtom, Path: "facts", Message: "empty predicate symbol"}
		}
		for i, row := range d.Facts[s] {
			t, err := ir.DecodeTuple(row)
			if err != nil {
				return nil, termError(fmt.Sprintf("facts.%s[%d]", s, i), err)
			}
			prog.AddFact(s, t...)
		}
	}

	for i, rd := range d.Rules {
		path := fmt.Sprintf("rules[%d]", i)
		head, err := rd.Head.atom(path + ".head")
		if err != nil {
			return nil, err
		}
		body, err := literals(path+".body", rd.Body)
		if err != nil {
			return nil, err
		}
		prog.Rules = append(prog.Rules, ir.NewRule(head, body...))
	}

	for i, qd := range d.Queries {
		path := fmt.Sprintf("queries[%d]", i)
		if len(qd) == 0 {
			return nil, &LoadError{Code: ErrCodeAtom, Path: path, Message: "query has no literals"}
		}
		body, err := literals(path, qd)
		if err != nil {
			return nil, err
		}
		prog.Queries = append(prog.Queries, ir.NewQuery(body...))
	}
	return prog, nil
}

func literals(path string, docs []LiteralDoc) ([]ir.Literal, error) {
	out := make([]ir.Literal, 0, len(docs))
	for i, ld := range docs {
		a, err := ld.atom(fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, ir.Literal{Positive: !ld.Negated, Atom: a})
	}
	return out, nil
}

func (a AtomDoc) atom(path string) (ir.Atom, error) {
	switch {
	case a.Pred != "" && a.Builtin != "":
		return ir.Atom{}, &LoadError{Code: ErrCodeAtom, Path: path, Message: "atom sets both pred and builtin"}
	case a.Pred == "" && a.Builtin == "":
		return ir.Atom{}, &LoadError{Code: ErrCodeAtom, Path: path, Message: "atom needs pred or builtin"}
	}

	args, err := ir.DecodeTuple(a.Args)
	if err != nil {
		return ir.Atom{}, termError(path+".args", err)
	}
	if a.Pred != "" {
		return ir.Ordinary(a.Pred, args...), nil
	}
	kind := ir.BuiltinKind(a.Builtin)
	if k, ok := ir.BuiltinForOperator(a.Builtin); ok {
		kind = k
	}
	return ir.BuiltinAtom(kind, args...), nil
}

func termError(path string, err error) *LoadError {
	return &LoadError{Code: ErrCodeTerm, Path: path, Message: err.Error()}
}

// NewDocument encodes prog as a Document. Program(NewDocument(p)) gives a
// program equal to p up to fact order across predicates.
func NewDocument(prog *ir.Program) *Document {
	d := &Document{Version: ir.FormatVersion}
	if len(prog.Facts) > 0 {
		d.Facts = make(map[string][][]any)
	}
	for p, ts := range prog.Facts {
		for _, t := range ts {
			d.Facts[p.Symbol] = append(d.Facts[p.Symbol], ir.EncodeTupleValues(t))
		}
	}
	for _, r := range prog.Rules {
		rd := RuleDoc{Head: atomDoc(r.Head.Atom)}
		for _, l := range r.Body {
			rd.Body = append(rd.Body, literalDoc(l))
		}
		d.Rules = append(d.Rules, rd)
	}
	for _, q := range prog.Queries {
		var qd []LiteralDoc
		for _, l := range q.Body {
			qd = append(qd, literalDoc(l))
		}
		d.Queries = append(d.Queries, qd)
	}
	return d
}

func atomDoc(a ir.Atom) AtomDoc {
	d := AtomDoc{Args: ir.EncodeTupleValues(a.Args)}
	if a.IsBuiltin() {
		d.Builtin = string(a.Builtin)
	} else {
		d.Pred = a.Predicate.Symbol
	}
	return d
}

func literalDoc(l ir.Literal) LiteralDoc {
	return LiteralDoc{AtomDoc: atomDoc(l.Atom), Negated: !l.Positive}
}
