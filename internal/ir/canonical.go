package ir

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/apd/v3"
)

// Canonical encoding tags. Each encoded term starts with exactly one tag
// byte, so encodings of distinct terms never collide by concatenation.
const (
	tagBool      byte = 'b'
	tagInt       byte = 'i'
	tagDecimal   byte = 'd'
	tagDouble    byte = 'f'
	tagString    byte = 's'
	tagIRI       byte = 'r'
	tagConstruct byte = 'c'
	tagVariable  byte = 'v'
)

// AppendCanonical appends the canonical binary encoding of t to buf.
//
// CRITICAL: Two terms have the same encoding iff Equal reports them equal.
// Relation and index hashing depends on this.
//   - Decimals are reduced before encoding (1.0 and 1.00 encode identically)
//   - Doubles encode -0 as +0 and every NaN as one NaN
//   - Strings are stored as given; NewString has already NFC-normalized them
func AppendCanonical(buf []byte, t Term) []byte {
	switch tt := t.(type) {
	case Constant:
		return appendValue(buf, tt.Value)
	case Variable:
		buf = append(buf, tagVariable)
		return appendBytes(buf, string(tt))
	case Construct:
		buf = append(buf, tagConstruct)
		buf = appendBytes(buf, tt.Functor)
		buf = binary.AppendUvarint(buf, uint64(len(tt.Args)))
		for _, a := range tt.Args {
			buf = AppendCanonical(buf, a)
		}
		return buf
	}
	return buf
}

func appendValue(buf []byte, v Value) []byte {
	switch vv := v.(type) {
	case Bool:
		if vv {
			return append(buf, tagBool, 1)
		}
		return append(buf, tagBool, 0)
	case Int:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(vv))
	case Double:
		f := float64(vv)
		switch {
		case f == 0:
			f = 0
		case math.IsNaN(f):
			f = math.NaN()
		}
		buf = append(buf, tagDouble)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(f))
	case Decimal:
		var reduced apd.Decimal
		reduced.Reduce(&vv.d)
		if reduced.IsZero() {
			reduced.SetInt64(0)
		}
		buf = append(buf, tagDecimal)
		return appendBytes(buf, reduced.Text('E'))
	case String:
		buf = append(buf, tagString)
		return appendBytes(buf, string(vv))
	case IRI:
		buf = append(buf, tagIRI)
		return appendBytes(buf, string(vv))
	}
	return buf
}

func appendBytes(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// EncodeTuple returns the canonical encoding of a tuple.
func EncodeTuple(t Tuple) []byte {
	buf := make([]byte, 0, 16*len(t))
	buf = binary.AppendUvarint(buf, uint64(len(t)))
	for _, term := range t {
		buf = AppendCanonical(buf, term)
	}
	return buf
}

// HashTuple returns the xxhash of the canonical encoding of t.
// Equal tuples always hash equally; unequal tuples may collide.
func HashTuple(t Tuple) uint64 {
	return xxhash.Sum64(EncodeTuple(t))
}

// HashProjection hashes the terms of t at positions without allocating the
// projected tuple.
func HashProjection(t Tuple, positions []int) uint64 {
	buf := make([]byte, 0, 16*len(positions))
	buf = binary.AppendUvarint(buf, uint64(len(positions)))
	for _, p := range positions {
		buf = AppendCanonical(buf, t[p])
	}
	return xxhash.Sum64(buf)
}
