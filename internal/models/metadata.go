package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind enumerates the scalar types a metadata value may hold.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

// Value is a closed scalar variant. The zero value is the empty string.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }

// ValueOf converts an arbitrary Go value into a Value. Nil becomes the empty
// string and anything that is not a scalar is stringified.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return StringValue("")
	case Value:
		return x
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case json.Number:
		return numberValue(x.String())
	case fmt.Stringer:
		return StringValue(x.String())
	default:
		return StringValue(fmt.Sprint(x))
	}
}

func (v Value) Kind() Kind { return v.kind }

// String renders the value as text regardless of its kind.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

// Interface returns the underlying Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return v.s
	}
}

// MarshalJSON keeps integral floats distinguishable from ints ("2.0" vs "2")
// so a value reads back with the kind it was written with.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("unsupported metadata value: %v", v.f)
		}
		return []byte(formatFloat(v.f)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return json.Marshal(v.s)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case json.Number:
		*v = numberValue(x.String())
	case map[string]any, []any:
		*v = StringValue(strings.TrimSpace(string(data)))
	default:
		*v = ValueOf(x)
	}
	return nil
}

// uintValue keeps unsigned values above math.MaxInt64 as their exact
// decimal text.
func uintValue(u uint64) Value {
	if u > math.MaxInt64 {
		return StringValue(strconv.FormatUint(u, 10))
	}
	return IntValue(int64(u))
}

func numberValue(s string) Value {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntValue(i)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return StringValue(s)
	}
	return FloatValue(f)
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// Metadata maps keys to scalar values. JSON encoding orders keys
// lexicographically.
type Metadata map[string]Value

// NewMetadata builds Metadata from loosely typed input.
func NewMetadata(raw map[string]any) Metadata {
	m := make(Metadata, len(raw))
	for k, v := range raw {
		m[k] = ValueOf(v)
	}
	return m
}

// String returns the textual form of key, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	return v.String()
}

// Clone returns an independent copy; a nil Metadata stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
