// Package typecodec maps IRIS result values to PostgreSQL OIDs and
// serializes them in both the text and binary wire formats (spec §4.2).
// It is the wire-facing counterpart of the teacher's pgserver/mapping.go,
// generalized from a fixed DuckDB-type table to an IRIS one and extended
// with the binary contracts spec §4.2 calls out explicitly: timestamp
// epoch math, date, and the standard array layout.
package typecodec

import "fmt"

// Kind discriminates the dynamic value types a row cell can hold. This is
// the "duck-typed row values" source pattern re-architected as an
// exhaustive sum type (spec §9 design notes).
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindBytes
	KindTimestamp // microseconds since 2000-01-01T00:00:00Z
	KindDate      // days since 2000-01-01
	KindNumeric   // decimal text representation, arbitrary precision
	KindVector    // []float32
	KindArray     // homogeneous slice of Value
)

// Value is the dynamic, OID-agnostic representation of one result cell
// produced by the backend executor and consumed by the codec's Encode
// functions. The OID that a Value is encoded under is carried alongside
// it by the caller (the column's FieldDescription), not by Value itself,
// since the same Kind can back more than one OID (e.g. KindInt backs
// int2/int4/int8).
type Value struct {
	Kind      Kind
	Bool      bool
	Int       int64
	Float     float64
	Text      string
	Bytes     []byte
	Timestamp int64 // microseconds since 2000-01-01, only when Kind == KindTimestamp
	Date      int32 // days since 2000-01-01, only when Kind == KindDate
	Vector    []float32
	Array     []Value
}

// IsNull reports whether the value should be encoded as SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "<nil>"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindText, KindNumeric:
		return v.Text
	case KindBytes:
		return fmt.Sprintf("%x", v.Bytes)
	case KindTimestamp:
		return fmt.Sprintf("ts:%d", v.Timestamp)
	case KindDate:
		return fmt.Sprintf("date:%d", v.Date)
	case KindVector:
		return fmt.Sprintf("vector(%d)", len(v.Vector))
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.Array))
	default:
		return "?"
	}
}
