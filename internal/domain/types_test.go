package domain

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParameterSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    ParameterSpec
		wantErr string
	}{
		{"boolean", ParameterSpec{Name: "diabetes", Kind: KindBoolean}, ""},
		{"number with bounds", ParameterSpec{Name: "age", Kind: KindNumber, Min: Float(0), Max: Float(120)}, ""},
		{"choice", ParameterSpec{Name: "class", Kind: KindChoice, Choices: []string{"I", "II"}}, ""},
		{"missing name", ParameterSpec{Kind: KindBoolean}, "name is required"},
		{"bad kind", ParameterSpec{Name: "x", Kind: "date"}, "invalid kind"},
		{"choice without choices", ParameterSpec{Name: "x", Kind: KindChoice}, "at least one choice"},
		{"choices on boolean", ParameterSpec{Name: "x", Kind: KindBoolean, Choices: []string{"a"}}, "only allowed for single-choice"},
		{"bounds on choice", ParameterSpec{Name: "x", Kind: KindChoice, Choices: []string{"a"}, Min: Float(1)}, "only allowed for number"},
		{"inverted bounds", ParameterSpec{Name: "x", Kind: KindNumber, Min: Float(5), Max: Float(1)}, "exceeds max"},
		{"duplicate choice", ParameterSpec{Name: "x", Kind: KindChoice, Choices: []string{"a", "a"}}, "duplicate choice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCalculatorDefinitionValidate(t *testing.T) {
	formula := func(Inputs) (RiskResult, error) { return RiskResult{Percentage: 1}, nil }

	def := &CalculatorDefinition{
		Type: "custom",
		Name: "Custom",
		Parameters: []ParameterSpec{
			{Name: "a", Kind: KindBoolean},
			{Name: "a", Kind: KindNumber},
		},
		Formula: formula,
	}
	if err := def.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate parameter") {
		t.Errorf("Expected duplicate parameter error, got %v", err)
	}

	def.Parameters = def.Parameters[:1]
	if err := def.Validate(); err != nil {
		t.Errorf("Expected valid definition, got %v", err)
	}

	def.Formula = nil
	if err := def.Validate(); err == nil {
		t.Error("Expected error for nil formula")
	}

	def.Formula = formula
	def.Type = " padded"
	if err := def.Validate(); err == nil {
		t.Error("Expected error for padded calculation type")
	}
}

func TestRiskBandPresentation(t *testing.T) {
	tests := []struct {
		band     RiskBand
		color    string
		severity int
	}{
		{BandVeryLow, "#2E7D32", 0},
		{BandLow, "#8BC34A", 1},
		{BandModerate, "#FFC107", 2},
		{BandHigh, "#FF9800", 3},
		{BandVeryHigh, "#D32F2F", 4},
		{BandUnknown, "#9E9E9E", -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.band), func(t *testing.T) {
			if !tt.band.IsValid() {
				t.Errorf("Expected %s to be valid", tt.band)
			}
			if tt.band.Color() != tt.color {
				t.Errorf("Expected color %s, got %s", tt.color, tt.band.Color())
			}
			if tt.band.Severity() != tt.severity {
				t.Errorf("Expected severity %d, got %d", tt.severity, tt.band.Severity())
			}
			info := tt.band.Info()
			if info.Label == "" || info.Band != tt.band {
				t.Errorf("Unexpected info %+v", info)
			}
		})
	}

	if RiskBand("critical").IsValid() {
		t.Error("Expected unknown band name to be invalid")
	}
}

func TestValueJSON(t *testing.T) {
	in := map[string]Value{
		"diabetes": BoolValue(true),
		"age":      NumberValue(67.5),
		"asa":      TextValue("III"),
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"age":67.5,"asa":"III","diabetes":true}` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var out map[string]Value
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for k, v := range in {
		if !out[k].Equal(v) {
			t.Errorf("Value %s: expected %v, got %v", k, v, out[k])
		}
	}

	var bad Value
	if err := json.Unmarshal([]byte(`[1,2]`), &bad); err == nil {
		t.Error("Expected error for array value")
	}
	if _, err := json.Marshal(NumberValue(math.Inf(1))); err == nil {
		t.Error("Expected error for infinite number")
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		value    Value
		expected string
	}{
		{BoolValue(false), "false"},
		{NumberValue(42), "42"},
		{NumberValue(0.1), "0.1"},
		{NumberValue(-3.25), "-3.25"},
		{TextValue("ASA III"), "ASA III"},
		{Value{}, ""},
	}

	for _, tt := range tests {
		if got := tt.value.String(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func TestInputsFromMap(t *testing.T) {
	in, err := InputsFromMap(map[string]any{"a": true, "b": json.Number("2"), "c": "x"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !in.Bool("a") || in.Number("b") != 2 || in.Text("c") != "x" {
		t.Errorf("Unexpected inputs %v", in)
	}
	if in.CountTrue("a", "missing") != 1 {
		t.Error("Expected one true input")
	}

	if _, err := InputsFromMap(map[string]any{"bad": nil}); err == nil {
		t.Error("Expected error for null input")
	}
}

func TestTrendQueryValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		query   TrendQuery
		wantErr bool
	}{
		{"open window", TrendQuery{PatientID: "p1", ParameterName: "creatinine"}, false},
		{"closed window", TrendQuery{PatientID: "p1", ParameterName: "creatinine", From: now.Add(-time.Hour), To: now}, false},
		{"missing patient", TrendQuery{ParameterName: "creatinine"}, true},
		{"missing parameter", TrendQuery{PatientID: "p1"}, true},
		{"inverted window", TrendQuery{PatientID: "p1", ParameterName: "hb", From: now, To: now.Add(-time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStoredCalculationValidate(t *testing.T) {
	blank := " "
	calc := &StoredCalculation{
		ID:              "c1",
		PatientID:       "p1",
		CalculatorName:  "RCRI",
		CalculationDate: time.Now(),
	}
	if err := calc.Validate(); err != nil {
		t.Errorf("Expected valid calculation, got %v", err)
	}

	calc.RelatedEventID = &blank
	if err := calc.Validate(); err == nil {
		t.Error("Expected error for blank event link")
	}

	calc.RelatedEventID = nil
	calc.PatientID = ""
	if err := calc.Validate(); err == nil {
		t.Error("Expected error for missing patient")
	}
}

func TestReferenceRangeContains(t *testing.T) {
	r := ReferenceRange{Low: Float(3.5), High: Float(5.1), Unit: "mmol/L"}
	if !r.Contains(3.5) || !r.Contains(5.1) {
		t.Error("Expected bounds to be inclusive")
	}
	if r.Contains(5.2) || r.Contains(3.4) {
		t.Error("Expected values outside the range to be rejected")
	}
	if !(ReferenceRange{}).Contains(1e9) {
		t.Error("Expected open range to contain everything")
	}
}
