package csvtab

import (
	"database/sql/driver"
	"strconv"
	"strings"
)

// Kind is the dynamic type of a Value, mirroring sqlite storage classes
type Kind int

// Value kinds
const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	}
	return "UNKNOWN"
}

// Value is a tagged variant holding one of the sqlite storage classes.
// The zero value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

// NullValue makes NULL value
func NullValue() Value { return Value{} }

// IntValue makes INTEGER value
func IntValue(v int64) Value { return Value{kind: KindInteger, i: v} }

// RealValue makes REAL value
func RealValue(v float64) Value { return Value{kind: KindReal, f: v} }

// TextValue makes TEXT value
func TextValue(v string) Value { return Value{kind: KindText, s: v} }

// BlobValue makes BLOB value
func BlobValue(v []byte) Value { return Value{kind: KindBlob, b: v} }

// Kind returns the kind of the value
func (v Value) Kind() Kind { return v.kind }

// Int returns integer payload, valid for KindInteger only
func (v Value) Int() int64 { return v.i }

// Real returns float payload, valid for KindReal only
func (v Value) Real() float64 { return v.f }

// Text returns string payload, valid for KindText only
func (v Value) Text() string { return v.s }

// Blob returns bytes payload, valid for KindBlob only
func (v Value) Blob() []byte { return v.b }

// Driver converts the value to the type expected by the sqlite driver
func (v Value) Driver() driver.Value {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	}
	return nil
}

// FromDriver converts a value received from the sqlite driver, unknown types map to NULL
func FromDriver(v driver.Value) Value {
	switch tv := v.(type) {
	case int64:
		return IntValue(tv)
	case float64:
		return RealValue(tv)
	case string:
		return TextValue(tv)
	case []byte:
		return BlobValue(tv)
	case bool:
		if tv {
			return IntValue(1)
		}
		return IntValue(0)
	}
	return NullValue()
}

// Coerce converts a raw field to a Value following the column affinity. It never fails:
// unparsable numbers keep their text. Empty unquoted field is NULL, empty quoted one is "".
func Coerce(f Field, a Affinity) Value {
	if f.IsNull() {
		return NullValue()
	}
	switch a {
	case AffinityInteger:
		if n, ok := parseInteger(f.Text); ok {
			return IntValue(n)
		}
		if x, ok := parseReal(f.Text); ok {
			return RealValue(x)
		}
	case AffinityReal:
		if x, ok := parseReal(f.Text); ok {
			return RealValue(x)
		}
	}
	return TextValue(f.Text)
}

// equalValues reports whether a and b are definitely equal or definitely different.
// known is false for pairs sqlite may compare after affinity conversions or with a collation,
// the caller should not filter on them.
func equalValues(a, b Value) (equal, known bool) {
	switch {
	case a.kind == KindNull || b.kind == KindNull:
		return false, false
	case a.kind == KindInteger && b.kind == KindInteger:
		return a.i == b.i, true
	case isNumeric(a) && isNumeric(b):
		return asFloat(a) == asFloat(b), true
	case a.kind == KindText && b.kind == KindText:
		if a.s == b.s {
			return true, true
		}
		// different under every built-in collation (BINARY, NOCASE, RTRIM)
		if !strings.EqualFold(strings.TrimRight(a.s, " "), strings.TrimRight(b.s, " ")) {
			return false, true
		}
	}
	return false, false
}

func isNumeric(v Value) bool { return v.kind == KindInteger || v.kind == KindReal }

func asFloat(v Value) float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// parseInteger accepts optional sign and decimal digits only
func parseInteger(s string) (int64, bool) {
	if !isNumberLiteral(s, false) {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseReal accepts integer and decimal literals with optional exponent,
// rejecting what strconv allows beyond that (inf, nan, hex, underscores)
func parseReal(s string) (float64, bool) {
	if !isNumberLiteral(s, true) {
		return 0, false
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return x, true
}

func isNumberLiteral(s string, allowReal bool) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits, dot := 0, false
scan:
	for ; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && allowReal && !dot:
			dot = true
		default:
			break scan
		}
	}
	if digits == 0 {
		return false
	}
	if i == len(s) {
		return true
	}
	if !allowReal || (s[i] != 'e' && s[i] != 'E') {
		return false
	}
	i++
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	expDigits := 0
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
		expDigits++
	}
	return expDigits > 0
}
