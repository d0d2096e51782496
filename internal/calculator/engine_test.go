package calculator

import (
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-risk-mcp-server/internal/domain"
)

func createTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger, _ := test.NewNullLogger()
	catalog, err := NewDefaultCatalog(logger)
	require.NoError(t, err)
	return NewEngine(catalog)
}

func rcriInputs() map[string]domain.Value {
	return map[string]domain.Value{
		"high_risk_surgery":       domain.BoolValue(true),
		"ischemic_heart_disease":  domain.BoolValue(true),
		"heart_failure":           domain.BoolValue(false),
		"cerebrovascular_disease": domain.BoolValue(false),
		"insulin_diabetes":        domain.BoolValue(false),
		"creatinine_above_2":      domain.BoolValue(false),
	}
}

func TestEngine_EvaluateRCRI(t *testing.T) {
	engine := createTestEngine(t)

	// Act
	result, err := engine.EvaluateType(domain.CalculationRCRI, rcriInputs())

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result.Score)
	assert.Equal(t, 2.0, *result.Score)
	assert.Equal(t, 10.1, result.Percentage)
	assert.Equal(t, domain.BandHigh, ClassifyResult(result))
}

func TestEngine_Deterministic(t *testing.T) {
	engine := createTestEngine(t)
	inputs := map[string]domain.Value{
		"age":                domain.NumberValue(74),
		"cardiac":            domain.TextValue("treated"),
		"respiratory":        domain.TextValue("exertional-dyspnea"),
		"systolic_bp":        domain.NumberValue(145),
		"pulse":              domain.NumberValue(88),
		"gcs":                domain.NumberValue(15),
		"hemoglobin":         domain.NumberValue(11.9),
		"wbc":                domain.NumberValue(12.4),
		"urea":               domain.NumberValue(8.1),
		"sodium":             domain.NumberValue(134),
		"potassium":          domain.NumberValue(4.2),
		"ecg":                domain.TextValue("atrial-fibrillation"),
		"operative_severity": domain.NumberValue(15),
	}

	first, err := engine.EvaluateType(domain.CalculationPOSSUMPhysiology, inputs)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := engine.EvaluateType(domain.CalculationPOSSUMPhysiology, inputs)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// 4+2+2+2+2+1+2+2+2+2+1+4
	assert.Equal(t, 26.0, *first.Score)
}

func TestEngine_ConcurrentEvaluate(t *testing.T) {
	engine := createTestEngine(t)
	want, err := engine.EvaluateType(domain.CalculationRCRI, rcriInputs())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]domain.RiskResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = engine.EvaluateType(domain.CalculationRCRI, rcriInputs())
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

func TestEngine_MissingParameters(t *testing.T) {
	engine := createTestEngine(t)
	inputs := rcriInputs()
	delete(inputs, "heart_failure")
	delete(inputs, "creatinine_above_2")

	_, err := engine.EvaluateType(domain.CalculationRCRI, inputs)

	require.Error(t, err)
	var perrs domain.ParameterErrors
	require.True(t, errors.As(err, &perrs))
	assert.Equal(t, []string{"heart_failure", "creatinine_above_2"}, perrs.Parameters())
	for _, pe := range perrs {
		var missing *domain.MissingParameterError
		assert.True(t, errors.As(pe, &missing))
	}
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEngine_BatchValidation(t *testing.T) {
	engine := createTestEngine(t)
	inputs := map[string]domain.Value{
		"age":                   domain.TextValue("seventy"),
		"preop_spo2":            domain.NumberValue(140),
		"respiratory_infection": domain.BoolValue(false),
		"incision":              domain.TextValue("laparoscopic"),
		"duration_hours":        domain.NumberValue(2.5),
		"emergency":             domain.BoolValue(false),
		"unused_extra":          domain.NumberValue(1),
	}

	_, err := engine.EvaluateType(domain.CalculationARISCAT, inputs)

	var perrs domain.ParameterErrors
	require.True(t, errors.As(err, &perrs))
	require.Len(t, perrs, 4)

	var typeErr *domain.InvalidParameterTypeError
	require.True(t, errors.As(perrs[0], &typeErr))
	assert.Equal(t, "age", typeErr.Name)
	assert.Equal(t, domain.KindNumber, typeErr.Expected)

	var rangeErr *domain.OutOfRangeError
	require.True(t, errors.As(perrs[1], &rangeErr))
	assert.Equal(t, "preop_spo2", rangeErr.Name)

	var missing *domain.MissingParameterError
	require.True(t, errors.As(perrs[2], &missing))
	assert.Equal(t, "preop_anemia", missing.Name)

	var choiceErr *domain.InvalidChoiceError
	require.True(t, errors.As(perrs[3], &choiceErr))
	assert.Equal(t, "laparoscopic", choiceErr.Value)
}

func TestEngine_NoFormulaOnInvalidInput(t *testing.T) {
	logger, _ := test.NewNullLogger()
	calls := 0
	def := &domain.CalculatorDefinition{
		Type:       "threshold",
		Name:       "Probe",
		Parameters: []domain.ParameterSpec{{Name: "x", Kind: domain.KindNumber}},
		Formula: func(in domain.Inputs) (domain.RiskResult, error) {
			calls++
			return domain.RiskResult{Percentage: in.Number("x")}, nil
		},
	}
	catalog, err := NewCatalog(logger, def)
	require.NoError(t, err)
	engine := NewEngine(catalog)

	_, err = engine.EvaluateType("threshold", map[string]domain.Value{"x": domain.BoolValue(true)})
	require.Error(t, err)
	assert.Equal(t, 0, calls)

	result, err := engine.EvaluateType("threshold", map[string]domain.Value{"x": domain.NumberValue(7)})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Nil(t, result.Score)
	assert.Equal(t, 7.0, result.Percentage)
}

func TestEngine_FormulaErrorIsSurfaced(t *testing.T) {
	logger, _ := test.NewNullLogger()
	domainErr := &domain.OutOfRangeError{Name: "ratio", Value: 3, Max: domain.Float(1)}
	def := &domain.CalculatorDefinition{
		Type: "failing",
		Name: "Failing",
		Formula: func(domain.Inputs) (domain.RiskResult, error) {
			return domain.RiskResult{}, domainErr
		},
	}
	catalog, err := NewCatalog(logger, def)
	require.NoError(t, err)

	_, err = NewEngine(catalog).EvaluateType("failing", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "calculator failing")
}

func TestEngine_UnknownCalculator(t *testing.T) {
	engine := createTestEngine(t)

	_, err := engine.EvaluateType("euroscore", rcriInputs())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuiltinFormulas(t *testing.T) {
	engine := createTestEngine(t)

	tests := []struct {
		name       string
		calcType   domain.CalculationType
		inputs     map[string]domain.Value
		score      float64
		percentage float64
	}{
		{
			name:     "ASA III emergency",
			calcType: domain.CalculationASA,
			inputs: map[string]domain.Value{
				"asa_class": domain.TextValue("III"),
				"emergency": domain.BoolValue(true),
			},
			score:      3,
			percentage: 3.5,
		},
		{
			name:     "Surgical Apgar best case",
			calcType: domain.CalculationSurgicalApgar,
			inputs: map[string]domain.Value{
				"estimated_blood_loss": domain.NumberValue(50),
				"lowest_map":           domain.NumberValue(75),
				"lowest_heart_rate":    domain.NumberValue(52),
			},
			score:      10,
			percentage: 3.6,
		},
		{
			name:     "Surgical Apgar poor",
			calcType: domain.CalculationSurgicalApgar,
			inputs: map[string]domain.Value{
				"estimated_blood_loss": domain.NumberValue(1500),
				"lowest_map":           domain.NumberValue(45),
				"lowest_heart_rate":    domain.NumberValue(90),
			},
			score:      1,
			percentage: 56,
		},
		{
			name:     "ARISCAT intermediate",
			calcType: domain.CalculationARISCAT,
			inputs: map[string]domain.Value{
				"age":                   domain.NumberValue(65),
				"preop_spo2":            domain.NumberValue(97),
				"respiratory_infection": domain.BoolValue(false),
				"preop_anemia":          domain.BoolValue(false),
				"incision":              domain.TextValue("upper-abdominal"),
				"duration_hours":        domain.NumberValue(2.5),
				"emergency":             domain.BoolValue(false),
			},
			score:      34,
			percentage: 13.3,
		},
		{
			name:     "RCRI four factors",
			calcType: domain.CalculationRCRI,
			inputs: map[string]domain.Value{
				"high_risk_surgery":       domain.BoolValue(true),
				"ischemic_heart_disease":  domain.BoolValue(true),
				"heart_failure":           domain.BoolValue(true),
				"cerebrovascular_disease": domain.BoolValue(true),
				"insulin_diabetes":        domain.BoolValue(false),
				"creatinine_above_2":      domain.BoolValue(false),
			},
			score:      4,
			percentage: 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.EvaluateType(tt.calcType, tt.inputs)
			require.NoError(t, err)
			require.NotNil(t, result.Score)
			assert.Equal(t, tt.score, *result.Score)
			assert.Equal(t, tt.percentage, result.Percentage)
			assert.NotEmpty(t, result.Interpretation)
		})
	}
}
