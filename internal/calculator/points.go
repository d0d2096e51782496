package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// PointsCalculator declares a custom calculator as data: every parameter
// contributes points and the total is mapped to a percentage by Bands.
//
//	calculators:
//	  - type: stop-bang
//	    name: STOP-Bang
//	    parameters:
//	      - name: snoring
//	        kind: boolean
//	        points: 1
//	      - name: bmi
//	        kind: number
//	        thresholds:
//	          - min: 35
//	            points: 1
//	    bands:
//	      - min_points: 0
//	        percentage: 2
//	        interpretation: low risk of obstructive sleep apnea
type PointsCalculator struct {
	Type             domain.CalculationType `mapstructure:"type"`
	Name             string                 `mapstructure:"name"`
	ShortDescription string                 `mapstructure:"short_description"`
	LongDescription  string                 `mapstructure:"long_description"`
	Parameters       []PointsParameter      `mapstructure:"parameters"`
	Bands            []PointsBand           `mapstructure:"bands"`
}

// PointsParameter is a parameter slot plus its scoring rule. Booleans add
// Points when true, choices add the points of the selected ChoicePoints
// entry and numbers add the points of the first matching threshold.
type PointsParameter struct {
	domain.ParameterSpec `mapstructure:",squash"`
	Points               float64       `mapstructure:"points"`
	ChoicePoints         []ChoicePoint `mapstructure:"choice_points"`
	Thresholds           []Threshold   `mapstructure:"thresholds"`
}

// ChoicePoint assigns points to one choice. Config keys are case folded,
// so choices are listed rather than used as map keys.
type ChoicePoint struct {
	Choice string  `mapstructure:"choice"`
	Points float64 `mapstructure:"points"`
}

// Threshold matches Min <= v < Max. A nil bound is open.
type Threshold struct {
	Min    *float64 `mapstructure:"min"`
	Max    *float64 `mapstructure:"max"`
	Points float64  `mapstructure:"points"`
}

func (t Threshold) matches(v float64) bool {
	if t.Min != nil && v < *t.Min {
		return false
	}
	return t.Max == nil || v < *t.Max
}

// PointsBand maps totals of at least MinPoints to a result.
type PointsBand struct {
	MinPoints      float64 `mapstructure:"min_points"`
	Percentage     float64 `mapstructure:"percentage"`
	Interpretation string  `mapstructure:"interpretation"`
}

// Definition builds a catalog definition whose formula scores the declared
// points.
func (pc PointsCalculator) Definition() (*domain.CalculatorDefinition, error) {
	if len(pc.Bands) == 0 {
		return nil, fmt.Errorf("points calculator %s: at least one band is required", pc.Type)
	}
	bands := append([]PointsBand(nil), pc.Bands...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinPoints < bands[j].MinPoints })

	params := make([]PointsParameter, len(pc.Parameters))
	specs := make([]domain.ParameterSpec, len(pc.Parameters))
	for i, p := range pc.Parameters {
		if err := p.validateRule(); err != nil {
			return nil, fmt.Errorf("points calculator %s: %w", pc.Type, err)
		}
		params[i] = p
		specs[i] = p.ParameterSpec
	}

	def := &domain.CalculatorDefinition{
		Type:             pc.Type,
		Name:             pc.Name,
		ShortDescription: pc.ShortDescription,
		LongDescription:  pc.LongDescription,
		Parameters:       specs,
		Formula:          pointsFormula(params, bands),
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (p PointsParameter) validateRule() error {
	switch p.Kind {
	case domain.KindChoice:
		for _, cp := range p.ChoicePoints {
			if !p.HasChoice(cp.Choice) {
				return fmt.Errorf("parameter %s: points given for unknown choice %q", p.Name, cp.Choice)
			}
		}
	case domain.KindNumber:
		for _, t := range p.Thresholds {
			if t.Min != nil && t.Max != nil && *t.Min >= *t.Max {
				return fmt.Errorf("parameter %s: empty threshold [%g, %g)", p.Name, *t.Min, *t.Max)
			}
		}
	}
	return nil
}

func pointsFormula(params []PointsParameter, bands []PointsBand) domain.Formula {
	return func(in domain.Inputs) (domain.RiskResult, error) {
		total := 0.0
		for _, p := range params {
			switch p.Kind {
			case domain.KindBoolean:
				if in.Bool(p.Name) {
					total += p.Points
				}
			case domain.KindChoice:
				selected := in.Text(p.Name)
				for _, cp := range p.ChoicePoints {
					if cp.Choice == selected {
						total += cp.Points
						break
					}
				}
			case domain.KindNumber:
				v := in.Number(p.Name)
				for _, t := range p.Thresholds {
					if t.matches(v) {
						total += t.Points
						break
					}
				}
			}
		}

		idx := sort.Search(len(bands), func(i int) bool { return bands[i].MinPoints > total }) - 1
		if idx < 0 {
			return domain.RiskResult{}, fmt.Errorf("total of %g points is below the lowest band (%g)", total, bands[0].MinPoints)
		}
		band := bands[idx]
		return domain.RiskResult{
			Score:          domain.Float(total),
			Percentage:     band.Percentage,
			Interpretation: band.Interpretation,
		}, nil
	}
}

// LoadPointsFile reads custom calculator declarations from a YAML, JSON or
// TOML file under the top-level "calculators" key.
func LoadPointsFile(path string) ([]*domain.CalculatorDefinition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read calculators file: %w", err)
	}

	var decls []PointsCalculator
	if err := v.UnmarshalKey("calculators", &decls); err != nil {
		return nil, fmt.Errorf("failed to decode calculators file: %w", err)
	}

	defs := make([]*domain.CalculatorDefinition, 0, len(decls))
	var errs []error
	for _, decl := range decls {
		def, err := decl.Definition()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

// LoadCatalog builds a catalog from the bundled calculators plus any custom
// calculators declared in path. A custom calculator with a bundled type
// replaces the bundled one. An empty path loads the bundled set only.
func LoadCatalog(logger *logrus.Logger, path string) (*Catalog, error) {
	defs, err := catalogDefinitions(path)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(logger, defs...)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"calculators": catalog.Len(),
		"custom_file": path,
	}).Info("Loaded calculator catalog")
	return catalog, nil
}

// Reload re-reads path and atomically swaps the catalog contents. The
// current catalog stays in place if the file is invalid.
func (c *Catalog) Reload(path string) error {
	defs, err := catalogDefinitions(path)
	if err != nil {
		c.logger.WithError(err).WithField("custom_file", path).Warn("Calculator reload rejected")
		return err
	}
	return c.Replace(defs...)
}

func catalogDefinitions(path string) ([]*domain.CalculatorDefinition, error) {
	builtins := Builtins()
	if path == "" {
		return builtins, nil
	}
	custom, err := LoadPointsFile(path)
	if err != nil {
		return nil, err
	}

	overridden := make(map[domain.CalculationType]bool, len(custom))
	for _, def := range custom {
		overridden[def.Type] = true
	}
	defs := make([]*domain.CalculatorDefinition, 0, len(builtins)+len(custom))
	for _, def := range builtins {
		if !overridden[def.Type] {
			defs = append(defs, def)
		}
	}
	return append(defs, custom...), nil
}
