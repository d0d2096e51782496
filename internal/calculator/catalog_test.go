package calculator

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-risk-mcp-server/internal/domain"
)

func constantCalculator(t domain.CalculationType, pct float64) *domain.CalculatorDefinition {
	return &domain.CalculatorDefinition{
		Type: t,
		Name: string(t),
		Parameters: []domain.ParameterSpec{
			{Name: "flag", Kind: domain.KindBoolean},
		},
		Formula: func(domain.Inputs) (domain.RiskResult, error) {
			return domain.RiskResult{Percentage: pct}, nil
		},
	}
}

func TestCatalog_GetAndList(t *testing.T) {
	logger, _ := test.NewNullLogger()
	catalog, err := NewDefaultCatalog(logger)
	require.NoError(t, err)

	defs := catalog.List()
	require.Len(t, defs, 5)
	for i := 1; i < len(defs); i++ {
		assert.Less(t, defs[i-1].Type, defs[i].Type)
	}

	def, err := catalog.Get(domain.CalculationRCRI)
	require.NoError(t, err)
	assert.Equal(t, "Revised Cardiac Risk Index", def.Name)
	assert.Len(t, def.Parameters, 6)

	_, err = catalog.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_RejectsInvalidDefinitions(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewCatalog(logger, constantCalculator("a", 1), constantCalculator("a", 2))
	assert.Error(t, err)

	bad := constantCalculator("b", 1)
	bad.Parameters = append(bad.Parameters, domain.ParameterSpec{Name: "choice", Kind: domain.KindChoice})
	_, err = NewCatalog(logger, bad)
	assert.Error(t, err)
}

func TestCatalog_ReplaceKeepsOldOnError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	catalog, err := NewCatalog(logger, constantCalculator("a", 1))
	require.NoError(t, err)

	err = catalog.Replace(constantCalculator("b", 2), nil)
	require.Error(t, err)

	_, err = catalog.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())
}

func TestCatalog_CallerMutationDoesNotLeak(t *testing.T) {
	logger, _ := test.NewNullLogger()
	def := constantCalculator("a", 1)
	catalog, err := NewCatalog(logger, def)
	require.NoError(t, err)

	def.Parameters[0].Name = "renamed"
	def.Name = "changed"

	got, err := catalog.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "flag", got.Parameters[0].Name)
	assert.Equal(t, "a", got.Name)
}

func TestCatalog_RegisterReplacesForLaterEvaluations(t *testing.T) {
	logger, _ := test.NewNullLogger()
	catalog, err := NewCatalog(logger, constantCalculator("custom", 4))
	require.NoError(t, err)
	engine := NewEngine(catalog)
	inputs := map[string]domain.Value{"flag": domain.BoolValue(true)}

	before, err := engine.EvaluateType("custom", inputs)
	require.NoError(t, err)

	// Act
	require.NoError(t, catalog.Register(constantCalculator("custom", 40)))
	after, err := engine.EvaluateType("custom", inputs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 4.0, before.Percentage)
	assert.Equal(t, 40.0, after.Percentage)
}

func TestCatalog_ConcurrentReadersDuringSwap(t *testing.T) {
	logger, _ := test.NewNullLogger()
	catalog, err := NewCatalog(logger, constantCalculator("a", 1), constantCalculator("b", 1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				defs := catalog.List()
				// Both calculators always share one generation.
				if len(defs) == 2 {
					a, _ := defs[0].Formula(nil)
					b, _ := defs[1].Formula(nil)
					assert.Equal(t, a.Percentage, b.Percentage)
				}
			}
		}()
	}

	for gen := 2; gen < 50; gen++ {
		require.NoError(t, catalog.Replace(constantCalculator("a", float64(gen)), constantCalculator("b", float64(gen))))
	}
	close(stop)
	wg.Wait()
}

const pointsYAML = `
calculators:
  - type: stop-bang
    name: STOP-Bang
    short_description: Obstructive sleep apnea screening
    parameters:
      - name: snoring
        kind: boolean
        points: 1
      - name: observed_apnea
        kind: boolean
        points: 1
      - name: bmi
        kind: number
        unit: kg/m2
        min: 10
        max: 80
        thresholds:
          - min: 35
            points: 1
      - name: sex
        kind: single-choice
        choices: [Female, Male]
        choice_points:
          - choice: Male
            points: 1
    bands:
      - min_points: 5
        percentage: 60
        interpretation: high risk of obstructive sleep apnea
      - min_points: 0
        percentage: 4
        interpretation: low risk of obstructive sleep apnea
      - min_points: 3
        percentage: 25
        interpretation: intermediate risk of obstructive sleep apnea
  - type: rcri
    name: RCRI (institutional)
    parameters:
      - name: any_factor
        kind: boolean
        points: 1
    bands:
      - min_points: 0
        percentage: 1
        interpretation: baseline
      - min_points: 1
        percentage: 11
        interpretation: elevated
`

func writePointsFile(t *testing.T, content string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "calculators_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "calculators.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCatalog_PointsCalculators(t *testing.T) {
	logger, _ := test.NewNullLogger()
	path := writePointsFile(t, pointsYAML)

	catalog, err := LoadCatalog(logger, path)
	require.NoError(t, err)
	assert.Equal(t, 6, catalog.Len())

	rcri, err := catalog.Get(domain.CalculationRCRI)
	require.NoError(t, err)
	assert.Equal(t, "RCRI (institutional)", rcri.Name)

	engine := NewEngine(catalog)
	tests := []struct {
		name       string
		inputs     map[string]domain.Value
		score      float64
		percentage float64
	}{
		{
			name: "low",
			inputs: map[string]domain.Value{
				"snoring": domain.BoolValue(false), "observed_apnea": domain.BoolValue(false),
				"bmi": domain.NumberValue(24), "sex": domain.TextValue("Female"),
			},
			score:      0,
			percentage: 4,
		},
		{
			name: "intermediate at band edge",
			inputs: map[string]domain.Value{
				"snoring": domain.BoolValue(true), "observed_apnea": domain.BoolValue(false),
				"bmi": domain.NumberValue(35), "sex": domain.TextValue("Male"),
			},
			score:      3,
			percentage: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.EvaluateType("stop-bang", tt.inputs)
			require.NoError(t, err)
			assert.Equal(t, tt.score, *result.Score)
			assert.Equal(t, tt.percentage, result.Percentage)
		})
	}

	_, err = engine.EvaluateType("stop-bang", map[string]domain.Value{
		"snoring": domain.BoolValue(true), "observed_apnea": domain.BoolValue(true),
		"bmi": domain.NumberValue(95), "sex": domain.TextValue("Other"),
	})
	var perrs domain.ParameterErrors
	require.ErrorAs(t, err, &perrs)
	assert.Equal(t, []string{"bmi", "sex"}, perrs.Parameters())
}

func TestLoadPointsFile_Invalid(t *testing.T) {
	path := writePointsFile(t, `
calculators:
  - type: broken
    name: Broken
    parameters:
      - name: grade
        kind: single-choice
        choices: [a, b]
        choice_points:
          - choice: c
            points: 2
    bands:
      - min_points: 0
        percentage: 1
  - type: bandless
    name: No bands
`)

	_, err := LoadPointsFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown choice")
	assert.Contains(t, err.Error(), "at least one band")

	_, err = LoadPointsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCatalog_Reload(t *testing.T) {
	logger, _ := test.NewNullLogger()
	catalog, err := LoadCatalog(logger, "")
	require.NoError(t, err)
	require.Equal(t, 5, catalog.Len())

	path := writePointsFile(t, pointsYAML)
	require.NoError(t, catalog.Reload(path))
	assert.Equal(t, 6, catalog.Len())

	require.NoError(t, os.WriteFile(path, []byte("calculators: [{type: x}]"), 0o600))
	assert.Error(t, catalog.Reload(path))
	assert.Equal(t, 6, catalog.Len())
}
