// Package codec converts the input parameters of a stored calculation to
// and from their persisted byte form.
//
// Two encodings exist. The legacy encoding stringifies every value into a
// flat JSON object of strings; decoding re-infers types, so a text value of
// "true" or "42" comes back as a boolean or number. The tagged encoding
// keeps the variant next to each value and round-trips exactly. Decode
// accepts either.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// Encoding selects the format used for new writes.
type Encoding string

const (
	EncodingLegacy Encoding = "legacy"
	EncodingTagged Encoding = "tagged"
)

// IsValid reports whether e names a supported encoding.
func (e Encoding) IsValid() bool {
	return e == EncodingLegacy || e == EncodingTagged
}

// ParseEncoding parses a configured encoding name. Empty selects legacy.
func ParseEncoding(s string) (Encoding, error) {
	if s == "" {
		return EncodingLegacy, nil
	}
	e := Encoding(s)
	if !e.IsValid() {
		return "", fmt.Errorf("unknown parameter encoding %q", s)
	}
	return e, nil
}

// Codec encodes with a fixed encoding and decodes either.
type Codec struct {
	encoding Encoding
}

// New returns a codec writing with e.
func New(e Encoding) *Codec {
	if !e.IsValid() {
		e = EncodingLegacy
	}
	return &Codec{encoding: e}
}

// Encoding returns the encoding used by Encode.
func (c *Codec) Encoding() Encoding {
	return c.encoding
}

// Encode serializes params with the configured encoding.
func (c *Codec) Encode(params map[string]domain.Value) ([]byte, error) {
	if c.encoding == EncodingTagged {
		return EncodeTagged(params)
	}
	return EncodeParameters(params)
}

// Decode parses a payload in either encoding.
func (c *Codec) Decode(data []byte) (map[string]domain.Value, error) {
	return Decode(data)
}

// EncodeParameters writes the legacy encoding: a JSON object mapping each
// name to the value's string form.
func EncodeParameters(params map[string]domain.Value) ([]byte, error) {
	flat := make(map[string]string, len(params))
	for name, v := range params {
		if !v.IsValid() {
			return nil, fmt.Errorf("parameter %q has no value", name)
		}
		flat[name] = v.String()
	}
	return json.Marshal(flat)
}

// DecodeParameters reads the legacy encoding. "true" and "false" become
// booleans, anything strconv.ParseFloat accepts becomes a number and the
// rest stays text.
func DecodeParameters(data []byte) (map[string]domain.Value, error) {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, &domain.CorruptPayloadError{Cause: err}
	}
	if flat == nil {
		return nil, &domain.CorruptPayloadError{Cause: errors.New("payload is not a JSON object")}
	}
	return inferAll(flat), nil
}

func inferAll(flat map[string]string) map[string]domain.Value {
	params := make(map[string]domain.Value, len(flat))
	for name, s := range flat {
		params[name] = infer(s)
	}
	return params
}

// decimalPattern admits plain decimal notation only. ParseFloat alone also
// accepts NaN, Inf, hex floats and underscores, which are text here.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func infer(s string) domain.Value {
	switch s {
	case "true":
		return domain.BoolValue(true)
	case "false":
		return domain.BoolValue(false)
	}
	if decimalPattern.MatchString(s) {
		if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
			return domain.NumberValue(n)
		}
	}
	return domain.TextValue(s)
}

type taggedValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

const (
	tagBoolean = "boolean"
	tagNumber  = "number"
	tagString  = "string"
)

// EncodeTagged writes the tagged encoding:
//
//	{"asa_class":{"type":"string","value":"III"},"age":{"type":"number","value":71}}
func EncodeTagged(params map[string]domain.Value) ([]byte, error) {
	tagged := make(map[string]taggedValue, len(params))
	for name, v := range params {
		var tag string
		switch v.Kind() {
		case domain.ValueBool:
			tag = tagBoolean
		case domain.ValueNumber:
			tag = tagNumber
		case domain.ValueText:
			tag = tagString
		default:
			return nil, fmt.Errorf("parameter %q has no value", name)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		tagged[name] = taggedValue{Type: tag, Value: raw}
	}
	return json.Marshal(tagged)
}

// DecodeTagged reads the tagged encoding.
func DecodeTagged(data []byte) (map[string]domain.Value, error) {
	var tagged map[string]taggedValue
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, &domain.CorruptPayloadError{Cause: err}
	}
	if tagged == nil {
		return nil, &domain.CorruptPayloadError{Cause: errors.New("payload is not a JSON object")}
	}
	params := make(map[string]domain.Value, len(tagged))
	for name, tv := range tagged {
		v, err := decodeTaggedValue(tv)
		if err != nil {
			return nil, &domain.CorruptPayloadError{Cause: fmt.Errorf("parameter %q: %w", name, err)}
		}
		params[name] = v
	}
	return params, nil
}

func decodeTaggedValue(tv taggedValue) (domain.Value, error) {
	switch tv.Type {
	case tagBoolean:
		var b bool
		if err := json.Unmarshal(tv.Value, &b); err != nil {
			return domain.Value{}, err
		}
		return domain.BoolValue(b), nil
	case tagNumber:
		var n float64
		if err := json.Unmarshal(tv.Value, &n); err != nil {
			return domain.Value{}, err
		}
		return domain.NumberValue(n), nil
	case tagString:
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return domain.Value{}, err
		}
		return domain.TextValue(s), nil
	default:
		return domain.Value{}, fmt.Errorf("unknown value type %q", tv.Type)
	}
}

// Decode detects the encoding of data and decodes it. An object whose
// members are all strings is legacy; one whose members are all objects is
// tagged. An empty object decodes to an empty map.
func Decode(data []byte) (map[string]domain.Value, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, &domain.CorruptPayloadError{Cause: err}
	}
	if members == nil {
		return nil, &domain.CorruptPayloadError{Cause: errors.New("payload is not a JSON object")}
	}

	var strs, objs int
	for _, raw := range members {
		switch firstByte(raw) {
		case '"':
			strs++
		case '{':
			objs++
		}
	}
	switch {
	case strs == len(members):
		return DecodeParameters(data)
	case objs == len(members):
		return DecodeTagged(data)
	default:
		return nil, &domain.CorruptPayloadError{Cause: errors.New("payload mixes legacy and tagged members")}
	}
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
