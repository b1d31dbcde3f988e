package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Domain prefixes for content-addressed fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainProgram = "deduce/program/v1"
	DomainRule    = "deduce/rule/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleFingerprint returns a stable identity for a rule. Variable names are
// part of the identity; alpha-equivalent rules get different fingerprints.
func RuleFingerprint(r Rule) string {
	return hashWithDomain(DomainRule, appendRule(nil, r))
}

// ProgramFingerprint returns a stable identity for the rules and facts of a
// program. Fact order within a predicate and rule order both matter, map
// iteration order does not. Queries are excluded.
func ProgramFingerprint(p *Program) string {
	var buf []byte
	for _, r := range p.Rules {
		buf = appendRule(buf, r)
	}
	preds := make([]Predicate, 0, len(p.Facts))
	for pred := range p.Facts {
		preds = append(preds, pred)
	}
	slices.SortFunc(preds, func(a, b Predicate) int {
		if a.Symbol != b.Symbol {
			if a.Symbol < b.Symbol {
				return -1
			}
			return 1
		}
		return a.Arity - b.Arity
	})
	for _, pred := range preds {
		buf = appendBytes(buf, pred.Symbol)
		for _, t := range p.Facts[pred] {
			buf = append(buf, EncodeTuple(t)...)
		}
	}
	return hashWithDomain(DomainProgram, buf)
}

func appendRule(buf []byte, r Rule) []byte {
	buf = appendLiteral(buf, r.Head)
	for _, l := range r.Body {
		buf = appendLiteral(buf, l)
	}
	return append(buf, '.')
}

func appendLiteral(buf []byte, l Literal) []byte {
	if l.Positive {
		buf = append(buf, '+')
	} else {
		buf = append(buf, '-')
	}
	if l.Atom.IsBuiltin() {
		buf = append(buf, '#')
		buf = appendBytes(buf, string(l.Atom.Builtin))
	} else {
		buf = appendBytes(buf, l.Atom.Predicate.Symbol)
	}
	return append(buf, EncodeTuple(l.Atom.Args)...)
}
