package typecodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq/oid"

	"github.com/intersystems-community/iris-pgwire-sub007/oidgen"
)

// pgEpoch is 2000-01-01 00:00:00 UTC, the reference point for both the
// timestamp and date binary formats (spec §4.2). Getting this wrong is
// called out explicitly in the spec as "a known bug source" for clients
// that request binary CURRENT_TIMESTAMP.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// TimeToPGMicros converts a wall-clock time to the microseconds-since-
// pgEpoch representation used by the timestamp/timestamptz binary format.
func TimeToPGMicros(t time.Time) int64 {
	return t.UTC().Sub(pgEpoch).Microseconds()
}

// PGMicrosToTime is the inverse of TimeToPGMicros.
func PGMicrosToTime(us int64) time.Time {
	return pgEpoch.Add(time.Duration(us) * time.Microsecond)
}

// TimeToPGDays converts a date to days-since-pgEpoch for the date binary
// format.
func TimeToPGDays(t time.Time) int32 {
	days := t.UTC().Sub(pgEpoch).Hours() / 24
	return int32(days)
}

// PGDaysToTime is the inverse of TimeToPGDays.
func PGDaysToTime(days int32) time.Time {
	return pgEpoch.AddDate(0, 0, int(days))
}

// VectorOID is the stable OID assigned to the IRIS VECTOR type. IRIS
// vectors have no native PostgreSQL counterpart, so unlike the built-in
// OIDs below (taken from lib/pq/oid, which mirrors pg_type), this one is
// synthesized by the OID generator the same way the catalog emulator
// mints OIDs for IRIS-only objects (spec §4.2, "a stable OID assigned to
// IRIS VECTOR").
var VectorOID = oidgen.New().OID("pg_catalog", oidgen.KindType, "vector")

// Well-known OIDs, spec §4.2's minimum coverage list.
const (
	OIDBool        = uint32(oid.T_bool)
	OIDBytea       = uint32(oid.T_bytea)
	OIDInt8        = uint32(oid.T_int8)
	OIDInt2        = uint32(oid.T_int2)
	OIDInt4        = uint32(oid.T_int4)
	OIDText        = uint32(oid.T_text)
	OIDFloat4      = uint32(oid.T_float4)
	OIDFloat8      = uint32(oid.T_float8)
	OIDVarchar     = uint32(oid.T_varchar)
	OIDDate        = uint32(oid.T_date)
	OIDTime        = uint32(oid.T_time)
	OIDTimestamp   = uint32(oid.T_timestamp)
	OIDTimestamptz = uint32(oid.T_timestamptz)
	OIDNumeric     = uint32(oid.T_numeric)
	OIDUUID        = uint32(oid.T_uuid)
	OIDJSON        = uint32(oid.T_json)
	OIDJSONB       = uint32(oid.T_jsonb)
	OIDTextArray   = uint32(oid.T__text)
	OIDInt4Array   = uint32(oid.T__int4)
)

// Codec holds the four encode/decode functions PostgreSQL clients may
// request for a given OID (spec §4.2).
type Codec struct {
	OID          uint32
	Name         string
	TextEncode   func(v Value) (string, error)
	TextDecode   func(s string) (Value, error)
	BinaryEncode func(v Value) ([]byte, error)
	BinaryDecode func(b []byte) (Value, error)
}

// Registry is a table keyed by OID of text/binary codec functions.
type Registry struct {
	byOID map[uint32]*Codec
}

// NewRegistry builds the default registry covering every OID spec §4.2
// requires.
func NewRegistry() *Registry {
	r := &Registry{byOID: make(map[uint32]*Codec)}
	for _, c := range defaultCodecs() {
		r.byOID[c.OID] = c
	}
	return r
}

// Lookup returns the codec for oid, or ok=false if the OID isn't known
// (callers fall back to a plain-text passthrough in that case).
func (r *Registry) Lookup(oid uint32) (*Codec, bool) {
	c, ok := r.byOID[oid]
	return c, ok
}

// EncodeText renders v as the PostgreSQL text-format wire representation
// for oid, or nil (NULL) if v is null.
func (r *Registry) EncodeText(oidVal uint32, v Value) ([]byte, error) {
	if v.IsNull() {
		return nil, nil
	}
	c, ok := r.byOID[oidVal]
	if !ok {
		return []byte(v.String()), nil
	}
	s, err := c.TextEncode(v)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// EncodeBinary renders v as the PostgreSQL binary-format wire
// representation for oid, or nil (NULL) if v is null.
func (r *Registry) EncodeBinary(oidVal uint32, v Value) ([]byte, error) {
	if v.IsNull() {
		return nil, nil
	}
	c, ok := r.byOID[oidVal]
	if !ok || c.BinaryEncode == nil {
		return nil, fmt.Errorf("no binary encoder registered for oid %d", oidVal)
	}
	return c.BinaryEncode(v)
}

func defaultCodecs() []*Codec {
	return []*Codec{
		boolCodec(),
		byteaCodec(),
		intCodec(OIDInt2, "int2", 2),
		intCodec(OIDInt4, "int4", 4),
		intCodec(OIDInt8, "int8", 8),
		textCodec(OIDText, "text"),
		textCodec(OIDVarchar, "varchar"),
		floatCodec(OIDFloat4, "float4", 4),
		floatCodec(OIDFloat8, "float8", 8),
		dateCodec(),
		timeCodec(),
		timestampCodec(OIDTimestamp, "timestamp"),
		timestampCodec(OIDTimestamptz, "timestamptz"),
		numericCodec(),
		uuidCodec(),
		jsonCodec(OIDJSON, "json"),
		jsonCodec(OIDJSONB, "jsonb"),
		vectorCodec(),
		arrayCodec(OIDTextArray, "_text", OIDText),
		arrayCodec(OIDInt4Array, "_int4", OIDInt4),
	}
}

func boolCodec() *Codec {
	return &Codec{
		OID:  OIDBool,
		Name: "bool",
		TextEncode: func(v Value) (string, error) {
			if v.Bool {
				return "t", nil
			}
			return "f", nil
		},
		TextDecode: func(s string) (Value, error) {
			switch s {
			case "t", "true", "TRUE", "1":
				return Value{Kind: KindBool, Bool: true}, nil
			case "f", "false", "FALSE", "0":
				return Value{Kind: KindBool, Bool: false}, nil
			}
			return Value{}, fmt.Errorf("invalid bool literal %q", s)
		},
		BinaryEncode: func(v Value) ([]byte, error) {
			if v.Bool {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		},
		BinaryDecode: func(b []byte) (Value, error) {
			if len(b) != 1 {
				return Value{}, fmt.Errorf("bool binary value must be 1 byte")
			}
			return Value{Kind: KindBool, Bool: b[0] != 0}, nil
		},
	}
}

func byteaCodec() *Codec {
	return &Codec{
		OID:  OIDBytea,
		Name: "bytea",
		TextEncode: func(v Value) (string, error) {
			var sb strings.Builder
			sb.WriteString(`\x`)
			sb.WriteString(fmt.Sprintf("%x", v.Bytes))
			return sb.String(), nil
		},
		TextDecode: func(s string) (Value, error) {
			s = strings.TrimPrefix(s, `\x`)
			b, err := decodeHex(s)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindBytes, Bytes: b}, nil
		},
		BinaryEncode: func(v Value) ([]byte, error) { return v.Bytes, nil },
		BinaryDecode: func(b []byte) (Value, error) {
			return Value{Kind: KindBytes, Bytes: append([]byte(nil), b...)}, nil
		},
	}
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		var b byte
		if _, err := fmt.Sscanf(s[2*i:2*i+2], "%02x", &b); err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func intCodec(oidVal uint32, name string, width int) *Codec {
	return &Codec{
		OID:        oidVal,
		Name:       name,
		TextEncode: func(v Value) (string, error) { return strconv.FormatInt(v.Int, 10), nil },
		TextDecode: func(s string) (Value, error) {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindInt, Int: n}, nil
		},
		BinaryEncode: func(v Value) ([]byte, error) {
			b := make([]byte, width)
			switch width {
			case 2:
				binary.BigEndian.PutUint16(b, uint16(v.Int))
			case 4:
				binary.BigEndian.PutUint32(b, uint32(v.Int))
			case 8:
				binary.BigEndian.PutUint64(b, uint64(v.Int))
			}
			return b, nil
		},
		BinaryDecode: func(b []byte) (Value, error) {
			if len(b) != width {
				return Value{}, fmt.Errorf("%s binary value must be %d bytes, got %d", name, width, len(b))
			}
			var n int64
			switch width {
			case 2:
				n = int64(int16(binary.BigEndian.Uint16(b)))
			case 4:
				n = int64(int32(binary.BigEndian.Uint32(b)))
			case 8:
				n = int64(binary.BigEndian.Uint64(b))
			}
			return Value{Kind: KindInt, Int: n}, nil
		},
	}
}

func floatCodec(oidVal uint32, name string, width int) *Codec {
	return &Codec{
		OID:  oidVal,
		Name: name,
		TextEncode: func(v Value) (string, error) {
			bits := 64
			if width == 4 {
				bits = 32
			}
			return strconv.FormatFloat(v.Float, 'g', -1, bits), nil
		},
		TextDecode: func(s string) (Value, error) {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindFloat, Float: f}, nil
		},
		BinaryEncode: func(v Value) ([]byte, error) {
			if width == 4 {
				b := make([]byte, 4)
				binary.BigEndian.PutUint32(b, math.Float32bits(float32(v.Float)))
				return b, nil
			}
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, math.Float64bits(v.Float))
			return b, nil
		},
		BinaryDecode: func(b []byte) (Value, error) {
			if width == 4 {
				if len(b) != 4 {
					return Value{}, fmt.Errorf("float4 binary value must be 4 bytes")
				}
				return Value{Kind: KindFloat, Float: float64(math.Float32frombits(binary.BigEndian.Uint32(b)))}, nil
			}
			if len(b) != 8 {
				return Value{}, fmt.Errorf("float8 binary value must be 8 bytes")
			}
			return Value{Kind: KindFloat, Float: math.Float64frombits(binary.BigEndian.Uint64(b))}, nil
		},
	}
}

func textCodec(oidVal uint32, name string) *Codec {
	return &Codec{
		OID:          oidVal,
		Name:         name,
		TextEncode:   func(v Value) (string, error) { return v.Text, nil },
		TextDecode:   func(s string) (Value, error) { return Value{Kind: KindText, Text: s}, nil },
		BinaryEncode: func(v Value) ([]byte, error) { return []byte(v.Text), nil },
		BinaryDecode: func(b []byte) (Value, error) { return Value{Kind: KindText, Text: string(b)}, nil },
	}
}

func numericCodec() *Codec {
	// Binary numeric is deliberately unimplemented (spec §9 open question:
	// "whether binary format for numeric must be fully supported depends
	// on client mix; text format is mandatory, binary can be deferred").
	c := textCodec(OIDNumeric, "numeric")
	c.TextDecode = func(s string) (Value, error) { return Value{Kind: KindNumeric, Text: s}, nil }
	c.BinaryEncode = nil
	c.BinaryDecode = nil
	return c
}

func uuidCodec() *Codec {
	return &Codec{
		OID:          OIDUUID,
		Name:         "uuid",
		TextEncode:   func(v Value) (string, error) { return v.Text, nil },
		TextDecode:   func(s string) (Value, error) { return Value{Kind: KindText, Text: s}, nil },
		BinaryEncode: func(v Value) ([]byte, error) { return []byte(v.Text), nil },
		BinaryDecode: func(b []byte) (Value, error) { return Value{Kind: KindText, Text: string(b)}, nil },
	}
}

func jsonCodec(oidVal uint32, name string) *Codec {
	return textCodec(oidVal, name)
}

// vectorCodec carries IRIS VECTOR columns as a JSON-array text literal on
// the wire (spec §4.2), since PostgreSQL clients have no native vector
// type; pgvector-aware clients (psycopg's `pgvector` adapter, etc.) parse
// it client-side the same way they would a pgvector column returned in
// text format.
func vectorCodec() *Codec {
	return &Codec{
		OID:  VectorOID,
		Name: "vector",
		TextEncode: func(v Value) (string, error) {
			return formatFloat32JSON(v.Vector), nil
		},
		TextDecode: func(s string) (Value, error) {
			floats, err := parseFloat32JSON(s)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindVector, Vector: floats}, nil
		},
	}
}

func formatFloat32JSON(fs []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range fs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func parseFloat32JSON(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector element %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func dateCodec() *Codec {
	return &Codec{
		OID:  OIDDate,
		Name: "date",
		TextEncode: func(v Value) (string, error) {
			return PGDaysToTime(v.Date).Format("2006-01-02"), nil
		},
		TextDecode: func(s string) (Value, error) {
			t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindDate, Date: TimeToPGDays(t)}, nil
		},
		BinaryEncode: func(v Value) ([]byte, error) {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v.Date))
			return b, nil
		},
		BinaryDecode: func(b []byte) (Value, error) {
			if len(b) != 4 {
				return Value{}, fmt.Errorf("date binary value must be 4 bytes")
			}
			return Value{Kind: KindDate, Date: int32(binary.BigEndian.Uint32(b))}, nil
		},
	}
}

func timeCodec() *Codec {
	return &Codec{
		OID:          OIDTime,
		Name:         "time",
		TextEncode:   func(v Value) (string, error) { return v.Text, nil },
		TextDecode:   func(s string) (Value, error) { return Value{Kind: KindText, Text: s}, nil },
		BinaryEncode: nil,
		BinaryDecode: nil,
	}
}

// timestampCodec implements the binary contract spec §4.2 singles out:
// 8-byte big-endian signed microseconds since 2000-01-01T00:00:00Z.
func timestampCodec(oidVal uint32, name string) *Codec {
	const layout = "2006-01-02 15:04:05.999999"
	return &Codec{
		OID:  oidVal,
		Name: name,
		TextEncode: func(v Value) (string, error) {
			return PGMicrosToTime(v.Timestamp).Format(layout), nil
		},
		TextDecode: func(s string) (Value, error) {
			t, err := parseTimestampText(strings.TrimSpace(s))
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindTimestamp, Timestamp: TimeToPGMicros(t)}, nil
		},
		BinaryEncode: func(v Value) ([]byte, error) {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, uint64(v.Timestamp))
			return b, nil
		},
		BinaryDecode: func(b []byte) (Value, error) {
			if len(b) != 8 {
				return Value{}, fmt.Errorf("%s binary value must be 8 bytes", name)
			}
			return Value{Kind: KindTimestamp, Timestamp: int64(binary.BigEndian.Uint64(b))}, nil
		},
	}
}

func parseTimestampText(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999Z07:00",
		"2006-01-02 15:04:05.999999",
		"2006-01-02T15:04:05.999999Z07:00",
		"2006-01-02T15:04:05.999999",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// arrayCodec implements the standard PostgreSQL array binary layout
// (spec §4.2): ndim, flags, element OID, then per-dimension (length,
// lower bound), then per-element (length-prefixed encoding, -1 for NULL).
// Only single-dimension arrays are produced by the catalog emulator and
// translator, which is all observed client traffic requires.
func arrayCodec(oidVal uint32, name string, elemOID uint32) *Codec {
	return &Codec{
		OID:  oidVal,
		Name: name,
		TextEncode: func(v Value) (string, error) {
			var sb strings.Builder
			sb.WriteByte('{')
			for i, e := range v.Array {
				if i > 0 {
					sb.WriteByte(',')
				}
				if e.IsNull() {
					sb.WriteString("NULL")
					continue
				}
				sb.WriteString(strings.ReplaceAll(e.String(), ",", `\,`))
			}
			sb.WriteByte('}')
			return sb.String(), nil
		},
		BinaryEncode: func(v Value) ([]byte, error) {
			reg := NewRegistry()
			elemCodec, _ := reg.Lookup(elemOID)

			var buf []byte
			put32 := func(n int32) {
				b := make([]byte, 4)
				binary.BigEndian.PutUint32(b, uint32(n))
				buf = append(buf, b...)
			}
			ndim := int32(1)
			if len(v.Array) == 0 {
				ndim = 0
			}
			put32(ndim)   // ndim
			put32(0)      // flags (0 = no nulls bitmap / has-null marker handled per element)
			put32(int32(elemOID))
			if ndim == 1 {
				put32(int32(len(v.Array))) // dimension size
				put32(1)                   // lower bound
			}
			for _, e := range v.Array {
				if e.IsNull() {
					put32(-1)
					continue
				}
				encoded, err := elemCodec.BinaryEncode(e)
				if err != nil {
					return nil, fmt.Errorf("encoding array element: %w", err)
				}
				put32(int32(len(encoded)))
				buf = append(buf, encoded...)
			}
			return buf, nil
		},
	}
}
