package calculator

import (
	"fmt"
	"math"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// Engine validates inputs against a calculator's parameters and runs its
// formula. It holds no mutable state besides the catalog reference and is
// safe for concurrent use.
type Engine struct {
	catalog *Catalog
}

// NewEngine creates an engine resolving calculation types through catalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog returns the catalog the engine resolves types against.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// EvaluateType looks up t in the catalog and evaluates it.
func (e *Engine) EvaluateType(t domain.CalculationType, inputs map[string]domain.Value) (domain.RiskResult, error) {
	def, err := e.catalog.Get(t)
	if err != nil {
		return domain.RiskResult{}, err
	}
	return e.Evaluate(def, inputs)
}

// Evaluate validates inputs and runs def's formula. Every violation is
// reported at once as domain.ParameterErrors and the formula does not run
// unless all parameters are valid. Inputs that def does not declare are
// ignored.
func (e *Engine) Evaluate(def *domain.CalculatorDefinition, inputs map[string]domain.Value) (domain.RiskResult, error) {
	validated, err := Validate(def, inputs)
	if err != nil {
		return domain.RiskResult{}, err
	}

	result, err := def.Formula(validated)
	if err != nil {
		return domain.RiskResult{}, fmt.Errorf("calculator %s: %w", def.Type, err)
	}
	if math.IsNaN(result.Percentage) || math.IsInf(result.Percentage, 0) {
		return domain.RiskResult{}, fmt.Errorf("calculator %s: formula produced non-finite percentage", def.Type)
	}
	if result.Score != nil {
		score := *result.Score
		result.Score = &score
	}
	return result, nil
}

// Validate checks inputs against def's parameters in declaration order and
// returns the subset of inputs the formula may read.
func Validate(def *domain.CalculatorDefinition, inputs map[string]domain.Value) (domain.Inputs, error) {
	var errs domain.ParameterErrors
	validated := make(domain.Inputs, len(def.Parameters))

	for _, p := range def.Parameters {
		v, ok := inputs[p.Name]
		if !ok || !v.IsValid() {
			errs = append(errs, &domain.MissingParameterError{Name: p.Name})
			continue
		}
		if !p.Kind.Accepts(v.Kind()) {
			errs = append(errs, &domain.InvalidParameterTypeError{Name: p.Name, Expected: p.Kind, Got: v.Kind()})
			continue
		}
		switch p.Kind {
		case domain.KindChoice:
			s, _ := v.AsText()
			if !p.HasChoice(s) {
				errs = append(errs, &domain.InvalidChoiceError{Name: p.Name, Value: s, Choices: p.Choices})
				continue
			}
		case domain.KindNumber:
			n, _ := v.AsNumber()
			if outOfRange(p, n) {
				errs = append(errs, &domain.OutOfRangeError{Name: p.Name, Value: n, Min: p.Min, Max: p.Max})
				continue
			}
		}
		validated[p.Name] = v
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return validated, nil
}

func outOfRange(p domain.ParameterSpec, n float64) bool {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return true
	}
	if p.Min != nil && n < *p.Min {
		return true
	}
	return p.Max != nil && n > *p.Max
}
