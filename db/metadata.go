package db

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

/*
ValueKind tags the type held by a metadata Value
*/
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindTime
)

/*
String returns the wire name of the kind
*/
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

func parseKind(s string) (ValueKind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "number":
		return KindNumber, nil
	case "bool":
		return KindBool, nil
	case "time":
		return KindTime, nil
	default:
		return 0, fmt.Errorf("unknown metadata kind %q", s)
	}
}

/*
Value is a scalar metadata value: a string, number, boolean or timestamp.

The zero Value is the empty string.
*/
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	t    time.Time
}

/*
String wraps a string value
*/
func String(s string) Value { return Value{kind: KindString, str: s} }

/*
Number wraps a numeric value. Only finite numbers pass Metadata.Validate.
*/
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

/*
Bool wraps a boolean value
*/
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

/*
Time wraps a timestamp, normalized to UTC
*/
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

/*
Kind reports which type the value holds
*/
func (v Value) Kind() ValueKind { return v.kind }

// Accessors report false when the value holds another kind.

func (v Value) StringValue() (string, bool)  { return v.str, v.kind == KindString }
func (v Value) NumberValue() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) BoolValue() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) TimeValue() (time.Time, bool) { return v.t, v.kind == KindTime }

/*
Interface returns the held value as a plain Go value
*/
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return v.str
	}
}

/*
Equal reports whether two values have the same kind and content
*/
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return v.str == o.str
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v.Interface())
	}
}

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

/*
MarshalJSON encodes the value as {"type": kind, "value": content}
*/
func (v Value) MarshalJSON() ([]byte, error) {
	var raw []byte
	var err error
	switch v.kind {
	case KindNumber:
		raw, err = json.Marshal(v.num)
	case KindBool:
		raw, err = json.Marshal(v.b)
	case KindTime:
		raw, err = json.Marshal(v.t.Format(time.RFC3339Nano))
	default:
		raw, err = json.Marshal(v.str)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.kind.String(), Value: raw})
}

/*
UnmarshalJSON decodes the tagged form written by MarshalJSON
*/
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := parseKind(w.Type)
	if err != nil {
		return err
	}

	out := Value{kind: kind}
	switch kind {
	case KindNumber:
		err = json.Unmarshal(w.Value, &out.num)
	case KindBool:
		err = json.Unmarshal(w.Value, &out.b)
	case KindTime:
		var s string
		if err = json.Unmarshal(w.Value, &s); err == nil {
			out.t, err = time.Parse(time.RFC3339Nano, s)
		}
	default:
		err = json.Unmarshal(w.Value, &out.str)
	}
	if err != nil {
		return fmt.Errorf("metadata %s value: %w", w.Type, err)
	}
	*v = out
	return nil
}

/*
Metadata is an open map of scalar values attached to a record
*/
type Metadata map[string]Value

/*
Clone returns a copy of the map. A nil map stays nil.
*/
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

/*
Equal reports whether both maps hold the same keys and values
*/
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

/*
Map returns the metadata as plain Go values, as a JSON API would present them
*/
func (m Metadata) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

/*
Validate rejects numbers that cannot be encoded, i.e. NaN and ±Inf
*/
func (m Metadata) Validate() error {
	for k, v := range m {
		if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
			return newValidationError("metadata", fmt.Sprintf("key %q: non-finite number %v", k, v.num))
		}
	}
	return nil
}

/*
MetadataFromMap converts loosely typed values, e.g. from decoded JSON.

Strings, booleans, integer and finite float kinds and time.Time are
accepted. Anything else is a ValidationError.
*/
func MetadataFromMap(in map[string]interface{}) (Metadata, error) {
	if in == nil {
		return nil, nil
	}
	out := make(Metadata, len(in))
	for k, raw := range in {
		switch x := raw.(type) {
		case string:
			out[k] = String(x)
		case bool:
			out[k] = Bool(x)
		case time.Time:
			out[k] = Time(x)
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, newValidationError("metadata", fmt.Sprintf("key %q: %v", k, err))
			}
			out[k] = Number(f)
		case Value:
			out[k] = x
		default:
			rv := reflect.ValueOf(raw)
			switch {
			case raw == nil:
				return nil, newValidationError("metadata", fmt.Sprintf("key %q: null value", k))
			case rv.CanInt():
				out[k] = Number(float64(rv.Int()))
			case rv.CanUint():
				out[k] = Number(float64(rv.Uint()))
			case rv.CanFloat():
				out[k] = Number(rv.Float())
			default:
				return nil, newValidationError("metadata", fmt.Sprintf("key %q: unsupported type %T", k, raw))
			}
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
