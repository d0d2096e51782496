package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueInvalid ValueKind = iota
	ValueBool
	ValueNumber
	ValueText
)

func (k ValueKind) String() string {
	switch k {
	case ValueBool:
		return "boolean"
	case ValueNumber:
		return "number"
	case ValueText:
		return "text"
	default:
		return "invalid"
	}
}

// Value is a closed sum of Bool, Number and Text. The zero Value is
// invalid and is what a missing map entry yields.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
}

// BoolValue returns a Value holding b.
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// NumberValue returns a Value holding n.
func NumberValue(n float64) Value { return Value{kind: ValueNumber, n: n} }

// TextValue returns a Value holding s.
func TextValue(s string) Value { return Value{kind: ValueText, s: s} }

// Kind reports which variant the value holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsValid reports whether the value holds one of the three variants.
func (v Value) IsValid() bool { return v.kind != ValueInvalid }

// AsBool returns the boolean and true if v holds a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsNumber returns the number and true if v holds a Number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == ValueNumber }

// AsText returns the text and true if v holds a Text.
func (v Value) AsText() (string, bool) { return v.s, v.kind == ValueText }

// String renders the value in its flat stored form: "true"/"false" for
// booleans, shortest decimal text for numbers and the raw text for strings.
func (v Value) String() string {
	switch v.kind {
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case ValueText:
		return v.s
	default:
		return ""
	}
}

// Interface returns the value as a plain Go value (bool, float64 or string).
func (v Value) Interface() any {
	switch v.kind {
	case ValueBool:
		return v.b
	case ValueNumber:
		return v.n
	case ValueText:
		return v.s
	default:
		return nil
	}
}

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueBool:
		return v.b == o.b
	case ValueNumber:
		return v.n == o.n || (math.IsNaN(v.n) && math.IsNaN(o.n))
	case ValueText:
		return v.s == o.s
	default:
		return true
	}
}

// MarshalJSON renders the value as its native JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueBool:
		return json.Marshal(v.b)
	case ValueNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil, fmt.Errorf("value: non-finite number %v", v.n)
		}
		return json.Marshal(v.n)
	case ValueText:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON boolean, number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromAny converts a decoded JSON scalar into a Value.
func ValueFromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return BoolValue(x), nil
	case float64:
		return NumberValue(x), nil
	case float32:
		return NumberValue(float64(x)), nil
	case int:
		return NumberValue(float64(x)), nil
	case int64:
		return NumberValue(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid number %q: %w", x.String(), err)
		}
		return NumberValue(f), nil
	case string:
		return TextValue(x), nil
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", raw)
	}
}

// InputsFromMap converts a decoded JSON object into Inputs. Entries that
// are not scalars are reported by name.
func InputsFromMap(m map[string]any) (Inputs, error) {
	in := make(Inputs, len(m))
	for k, raw := range m {
		v, err := ValueFromAny(raw)
		if err != nil {
			return nil, NewValidationError(k, err.Error(), raw)
		}
		in[k] = v
	}
	return in, nil
}
