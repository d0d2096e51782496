// Package domain contains the core entities of the perioperative risk engine:
// calculator definitions and their typed parameters, risk results and bands,
// stored calculations and longitudinal measurement summaries.
//
// The types here carry no I/O. Scoring, classification and trend computation
// live in the calculator and trends packages; persistence lives in store.
package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParameterKind is the declared type of a calculator input slot.
type ParameterKind string

const (
	KindBoolean ParameterKind = "boolean"
	KindNumber  ParameterKind = "number"
	KindChoice  ParameterKind = "single-choice"
)

// IsValid reports whether the kind is one of the supported parameter kinds.
func (k ParameterKind) IsValid() bool {
	switch k {
	case KindBoolean, KindNumber, KindChoice:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k ParameterKind) String() string {
	return string(k)
}

// Accepts reports whether a value of kind vk can fill a slot of this kind.
func (k ParameterKind) Accepts(vk ValueKind) bool {
	switch k {
	case KindBoolean:
		return vk == ValueBool
	case KindNumber:
		return vk == ValueNumber
	case KindChoice:
		return vk == ValueText
	default:
		return false
	}
}

// ParameterSpec describes one input slot of a calculator.
// Choices are required and non-empty for single-choice parameters and must
// be empty otherwise. Min and Max only apply to number parameters.
type ParameterSpec struct {
	Name    string        `json:"name" mapstructure:"name"`
	Label   string        `json:"label,omitempty" mapstructure:"label"`
	Kind    ParameterKind `json:"kind" mapstructure:"kind"`
	Choices []string      `json:"choices,omitempty" mapstructure:"choices"`
	Unit    string        `json:"unit,omitempty" mapstructure:"unit"`
	Min     *float64      `json:"min,omitempty" mapstructure:"min"`
	Max     *float64      `json:"max,omitempty" mapstructure:"max"`
}

// Validate checks the structural rules of a parameter slot.
func (p ParameterSpec) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("parameter name is required")
	}
	if !p.Kind.IsValid() {
		return fmt.Errorf("parameter %s: invalid kind %q", p.Name, p.Kind)
	}
	if p.Kind == KindChoice && len(p.Choices) == 0 {
		return fmt.Errorf("parameter %s: single-choice requires at least one choice", p.Name)
	}
	if p.Kind != KindChoice && len(p.Choices) > 0 {
		return fmt.Errorf("parameter %s: choices are only allowed for single-choice parameters", p.Name)
	}
	if p.Kind != KindNumber && (p.Min != nil || p.Max != nil) {
		return fmt.Errorf("parameter %s: bounds are only allowed for number parameters", p.Name)
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("parameter %s: min %g exceeds max %g", p.Name, *p.Min, *p.Max)
	}
	seen := make(map[string]struct{}, len(p.Choices))
	for _, c := range p.Choices {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("parameter %s: duplicate choice %q", p.Name, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// HasChoice reports whether v is one of the allowed choices.
func (p ParameterSpec) HasChoice(v string) bool {
	for _, c := range p.Choices {
		if c == v {
			return true
		}
	}
	return false
}

// CalculationType identifies a calculator. The named constants are the
// bundled calculators; any other non-empty string is a custom calculator.
type CalculationType string

const (
	CalculationASA              CalculationType = "asa"
	CalculationRCRI             CalculationType = "rcri"
	CalculationSurgicalApgar    CalculationType = "surgical-apgar"
	CalculationARISCAT          CalculationType = "ariscat"
	CalculationPOSSUMPhysiology CalculationType = "possum-physiology"
)

// IsBuiltin reports whether the type is one of the bundled calculators.
func (t CalculationType) IsBuiltin() bool {
	switch t {
	case CalculationASA, CalculationRCRI, CalculationSurgicalApgar, CalculationARISCAT, CalculationPOSSUMPhysiology:
		return true
	default:
		return false
	}
}

// IsValid reports whether the tag is usable as a catalog key.
func (t CalculationType) IsValid() bool {
	s := string(t)
	return s != "" && strings.TrimSpace(s) == s
}

func (t CalculationType) String() string {
	return string(t)
}

// RiskResult is the output of one scoring invocation.
// Score is nil for calculators that only report a percentage, which keeps
// "no score" distinct from a score of zero.
type RiskResult struct {
	Score          *float64 `json:"score,omitempty"`
	Percentage     float64  `json:"percentage"`
	Interpretation string   `json:"interpretation,omitempty"`
}

// Formula is a calculator's pure scoring function. It receives inputs that
// have already been validated against the calculator's parameters.
type Formula func(in Inputs) (RiskResult, error)

// CalculatorDefinition is an immutable named scoring function plus the
// schema of the inputs it requires.
type CalculatorDefinition struct {
	Type             CalculationType `json:"calculation_type"`
	Name             string          `json:"name"`
	ShortDescription string          `json:"short_description,omitempty"`
	LongDescription  string          `json:"long_description,omitempty"`
	Parameters       []ParameterSpec `json:"parameters"`
	Formula          Formula         `json:"-"`
}

// Validate ensures the definition can be placed in a catalog.
func (d *CalculatorDefinition) Validate() error {
	if !d.Type.IsValid() {
		return fmt.Errorf("calculator definition: invalid calculation type %q", d.Type)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("calculator %s: name is required", d.Type)
	}
	if d.Formula == nil {
		return fmt.Errorf("calculator %s: formula is required", d.Type)
	}
	names := make(map[string]struct{}, len(d.Parameters))
	for _, p := range d.Parameters {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("calculator %s: %w", d.Type, err)
		}
		if _, dup := names[p.Name]; dup {
			return fmt.Errorf("calculator %s: duplicate parameter %q", d.Type, p.Name)
		}
		names[p.Name] = struct{}{}
	}
	return nil
}

// Parameter returns the spec for the named parameter.
func (d *CalculatorDefinition) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// RiskBand is the qualitative classification of a risk percentage.
type RiskBand string

const (
	BandVeryLow  RiskBand = "very-low"
	BandLow      RiskBand = "low"
	BandModerate RiskBand = "moderate"
	BandHigh     RiskBand = "high"
	BandVeryHigh RiskBand = "very-high"
	BandUnknown  RiskBand = "unknown"
)

// IsValid reports whether the band is one of the defined bands.
func (b RiskBand) IsValid() bool {
	switch b {
	case BandVeryLow, BandLow, BandModerate, BandHigh, BandVeryHigh, BandUnknown:
		return true
	default:
		return false
	}
}

func (b RiskBand) String() string {
	return string(b)
}

// Color returns the display color of the band as a hex RGB string.
func (b RiskBand) Color() string {
	switch b {
	case BandVeryLow:
		return "#2E7D32"
	case BandLow:
		return "#8BC34A"
	case BandModerate:
		return "#FFC107"
	case BandHigh:
		return "#FF9800"
	case BandVeryHigh:
		return "#D32F2F"
	default:
		return "#9E9E9E"
	}
}

// Label returns a human-readable name for the band.
func (b RiskBand) Label() string {
	switch b {
	case BandVeryLow:
		return "Very Low Risk"
	case BandLow:
		return "Low Risk"
	case BandModerate:
		return "Moderate Risk"
	case BandHigh:
		return "High Risk"
	case BandVeryHigh:
		return "Very High Risk"
	default:
		return "Unknown Risk"
	}
}

// Severity orders bands from very-low (0) to very-high (4). Unknown is -1.
func (b RiskBand) Severity() int {
	switch b {
	case BandVeryLow:
		return 0
	case BandLow:
		return 1
	case BandModerate:
		return 2
	case BandHigh:
		return 3
	case BandVeryHigh:
		return 4
	default:
		return -1
	}
}

// LogFields returns structured logging fields for the band.
func (b RiskBand) LogFields() map[string]any {
	return map[string]any{
		"risk_band":     string(b),
		"risk_severity": b.Severity(),
		"risk_color":    b.Color(),
	}
}

// BandInfo is the presentation form of a classified percentage.
type BandInfo struct {
	Band     RiskBand `json:"band"`
	Label    string   `json:"label"`
	Color    string   `json:"color"`
	Severity int      `json:"severity"`
}

// Info expands the band into its presentation form.
func (b RiskBand) Info() BandInfo {
	return BandInfo{Band: b, Label: b.Label(), Color: b.Color(), Severity: b.Severity()}
}

// Inputs is a validated parameter set handed to a Formula. The typed
// getters return the zero value when a parameter is absent or of another
// kind; formulas only see inputs that passed validation.
type Inputs map[string]Value

// Bool returns the boolean value of the named input.
func (in Inputs) Bool(name string) bool {
	b, _ := in[name].AsBool()
	return b
}

// Number returns the numeric value of the named input.
func (in Inputs) Number(name string) float64 {
	n, _ := in[name].AsNumber()
	return n
}

// Text returns the text value of the named input.
func (in Inputs) Text(name string) string {
	s, _ := in[name].AsText()
	return s
}

// CountTrue counts how many of the named boolean inputs are true.
func (in Inputs) CountTrue(names ...string) int {
	n := 0
	for _, name := range names {
		if in.Bool(name) {
			n++
		}
	}
	return n
}

// Names returns the input names in ascending order.
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Float returns a pointer to f, for optional scores and bounds.
func Float(f float64) *float64 {
	return &f
}

// Round rounds f to the given number of decimal places.
func Round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
