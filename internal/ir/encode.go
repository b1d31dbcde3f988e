package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Structured term encoding shared by program documents (CUE, YAML, JSON)
// and machine-readable output:
//
//	"?X"                                 variable X
//	"text"                               string constant
//	42                                   int constant
//	4.5                                  double constant
//	true                                 bool constant
//	{"double": 4}                        double constant with an integral value
//	{"decimal": "12.50"}                 decimal constant
//	{"iri": "http://example.org/a"}      IRI constant
//	{"string": "?not-a-var"}             string constant that starts with '?'
//	{"functor": "f", "args": [1, "?Y"]}  construct
//
// DecodeTerm accepts the generic values produced by encoding/json (with or
// without UseNumber), gopkg.in/yaml.v3, and CUE's JSON export.

// DecodeTerm converts a generic decoded value into a Term.
func DecodeTerm(v any) (Term, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a term")
	case string:
		if strings.HasPrefix(val, "?") {
			if len(val) == 1 {
				return nil, fmt.Errorf("variable name is empty")
			}
			return Variable(val[1:]), nil
		}
		return S(val), nil
	case bool:
		return B(val), nil
	case int:
		return I(int64(val)), nil
	case int64:
		return I(val), nil
	case int32:
		return I(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return I(int64(val)), nil
	case float64:
		return F(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("parse number %q: %w", s, err)
			}
			return F(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return I(n), nil
	case map[string]any:
		return decodeTaggedTerm(val)
	default:
		return nil, fmt.Errorf("unsupported term encoding: %T", v)
	}
}

func decodeTaggedTerm(m map[string]any) (Term, error) {
	if f, ok := m["functor"]; ok {
		functor, ok := f.(string)
		if !ok || functor == "" {
			return nil, fmt.Errorf("functor must be a non-empty string")
		}
		var rawArgs []any
		if a, ok := m["args"]; ok && a != nil {
			rawArgs, ok = a.([]any)
			if !ok {
				return nil, fmt.Errorf("construct %s: args must be a list", functor)
			}
		}
		args := make([]Term, len(rawArgs))
		for i, ra := range rawArgs {
			t, err := DecodeTerm(ra)
			if err != nil {
				return nil, fmt.Errorf("construct %s: args[%d]: %w", functor, i, err)
			}
			args[i] = t
		}
		return Construct{Functor: functor, Args: args}, nil
	}
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("tagged term must have exactly one key, got %v", keys)
	}
	for tag, raw := range m {
		switch tag {
		case "decimal":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("decimal must be a string")
			}
			d, err := NewDecimal(s)
			if err != nil {
				return nil, err
			}
			return Constant{Value: d}, nil
		case "iri":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("iri must be a string")
			}
			return Constant{Value: IRI(s)}, nil
		case "string":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("string must be a string")
			}
			return S(s), nil
		case "double":
			t, err := DecodeTerm(raw)
			if err != nil {
				return nil, fmt.Errorf("double: %w", err)
			}
			switch c := t.(type) {
			case Constant:
				switch n := c.Value.(type) {
				case Int:
					return F(float64(n)), nil
				case Double:
					return c, nil
				}
			}
			return nil, fmt.Errorf("double must be a number")
		default:
			return nil, fmt.Errorf("unknown term tag %q", tag)
		}
	}
	return nil, fmt.Errorf("empty term object")
}

// DecodeTuple converts a list of generic values into a Tuple.
func DecodeTuple(vs []any) (Tuple, error) {
	out := make(Tuple, len(vs))
	for i, v := range vs {
		t, err := DecodeTerm(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// EncodeTerm converts a Term into a generic value that DecodeTerm maps back
// to an equal term.
func EncodeTerm(t Term) any {
	switch tt := t.(type) {
	case Variable:
		return "?" + string(tt)
	case Construct:
		args := make([]any, len(tt.Args))
		for i, a := range tt.Args {
			args[i] = EncodeTerm(a)
		}
		return map[string]any{"functor": tt.Functor, "args": args}
	case Constant:
		switch v := tt.Value.(type) {
		case Bool:
			return bool(v)
		case Int:
			return int64(v)
		case Double:
			f := float64(v)
			if f == math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
				return map[string]any{"double": f}
			}
			return f
		case Decimal:
			return map[string]any{"decimal": v.String()}
		case String:
			if strings.HasPrefix(string(v), "?") {
				return map[string]any{"string": string(v)}
			}
			return string(v)
		case IRI:
			return map[string]any{"iri": string(v)}
		}
	}
	return nil
}

// EncodeTupleValues converts a tuple with EncodeTerm.
func EncodeTupleValues(t Tuple) []any {
	out := make([]any, len(t))
	for i, term := range t {
		out[i] = EncodeTerm(term)
	}
	return out
}
