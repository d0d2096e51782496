package calculator

import (
	"fmt"
	"math"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// Builtins returns fresh copies of the bundled reference calculators.
// Institutions may replace any of them through the catalog.
func Builtins() []*domain.CalculatorDefinition {
	return []*domain.CalculatorDefinition{
		asaDefinition(),
		rcriDefinition(),
		surgicalApgarDefinition(),
		ariscatDefinition(),
		possumPhysiologyDefinition(),
	}
}

func boolParam(name, label string) domain.ParameterSpec {
	return domain.ParameterSpec{Name: name, Label: label, Kind: domain.KindBoolean}
}

func numberParam(name, label, unit string, min, max float64) domain.ParameterSpec {
	return domain.ParameterSpec{
		Name:  name,
		Label: label,
		Kind:  domain.KindNumber,
		Unit:  unit,
		Min:   domain.Float(min),
		Max:   domain.Float(max),
	}
}

func choiceParam(name, label string, choices ...string) domain.ParameterSpec {
	return domain.ParameterSpec{Name: name, Label: label, Kind: domain.KindChoice, Choices: choices}
}

// ASA physical status

var asaMortality = map[string]struct {
	score      float64
	percentage float64
	label      string
}{
	"I":   {1, 0.1, "normal healthy patient"},
	"II":  {2, 0.7, "mild systemic disease"},
	"III": {3, 3.5, "severe systemic disease"},
	"IV":  {4, 18.3, "severe systemic disease that is a constant threat to life"},
	"V":   {5, 93.3, "moribund patient not expected to survive without the operation"},
	"VI":  {6, 0, "declared brain-dead organ donor"},
}

func asaDefinition() *domain.CalculatorDefinition {
	return &domain.CalculatorDefinition{
		Type:             domain.CalculationASA,
		Name:             "ASA Physical Status",
		ShortDescription: "American Society of Anesthesiologists physical status classification",
		LongDescription: "Assigns the ASA class from the pre-anesthesia assessment and reports the " +
			"associated perioperative mortality. The emergency modifier is reported in the interpretation.",
		Parameters: []domain.ParameterSpec{
			choiceParam("asa_class", "ASA class", "I", "II", "III", "IV", "V", "VI"),
			boolParam("emergency", "Emergency procedure"),
		},
		Formula: func(in domain.Inputs) (domain.RiskResult, error) {
			class := in.Text("asa_class")
			row := asaMortality[class]
			suffix := ""
			if in.Bool("emergency") {
				suffix = "E"
			}
			return domain.RiskResult{
				Score:          domain.Float(row.score),
				Percentage:     row.percentage,
				Interpretation: fmt.Sprintf("ASA %s%s: %s", class, suffix, row.label),
			}, nil
		},
	}
}

// Revised Cardiac Risk Index

var rcriFactors = []string{
	"high_risk_surgery",
	"ischemic_heart_disease",
	"heart_failure",
	"cerebrovascular_disease",
	"insulin_diabetes",
	"creatinine_above_2",
}

// Major adverse cardiac event risk by number of factors; the last entry
// covers three or more.
var rcriRisk = []float64{3.9, 6.0, 10.1, 15.0}

func rcriDefinition() *domain.CalculatorDefinition {
	return &domain.CalculatorDefinition{
		Type:             domain.CalculationRCRI,
		Name:             "Revised Cardiac Risk Index",
		ShortDescription: "30-day risk of major adverse cardiac events after noncardiac surgery",
		LongDescription:  "One point per risk factor. Risk estimates follow the updated derivation cohorts.",
		Parameters: []domain.ParameterSpec{
			boolParam("high_risk_surgery", "Intraperitoneal, intrathoracic or suprainguinal vascular surgery"),
			boolParam("ischemic_heart_disease", "History of ischemic heart disease"),
			boolParam("heart_failure", "History of congestive heart failure"),
			boolParam("cerebrovascular_disease", "History of cerebrovascular disease"),
			boolParam("insulin_diabetes", "Preoperative insulin treatment"),
			boolParam("creatinine_above_2", "Preoperative creatinine > 2 mg/dL"),
		},
		Formula: func(in domain.Inputs) (domain.RiskResult, error) {
			points := in.CountTrue(rcriFactors...)
			idx := points
			if idx >= len(rcriRisk) {
				idx = len(rcriRisk) - 1
			}
			return domain.RiskResult{
				Score:          domain.Float(float64(points)),
				Percentage:     rcriRisk[idx],
				Interpretation: fmt.Sprintf("%d of 6 risk factors present", points),
			}, nil
		},
	}
}

// Surgical Apgar score

func surgicalApgarDefinition() *domain.CalculatorDefinition {
	return &domain.CalculatorDefinition{
		Type:             domain.CalculationSurgicalApgar,
		Name:             "Surgical Apgar Score",
		ShortDescription: "Intraoperative predictor of major postoperative complications",
		LongDescription:  "Scores estimated blood loss, lowest mean arterial pressure and lowest heart rate during the operation on a 0-10 scale.",
		Parameters: []domain.ParameterSpec{
			numberParam("estimated_blood_loss", "Estimated blood loss", "mL", 0, 50000),
			numberParam("lowest_map", "Lowest mean arterial pressure", "mmHg", 0, 250),
			numberParam("lowest_heart_rate", "Lowest heart rate", "bpm", 0, 300),
		},
		Formula: func(in domain.Inputs) (domain.RiskResult, error) {
			ebl := in.Number("estimated_blood_loss")
			mapPressure := in.Number("lowest_map")
			hr := in.Number("lowest_heart_rate")

			score := 0
			switch {
			case ebl <= 100:
				score += 3
			case ebl <= 600:
				score += 2
			case ebl <= 1000:
				score++
			}
			switch {
			case mapPressure >= 70:
				score += 3
			case mapPressure >= 55:
				score += 2
			case mapPressure >= 40:
				score++
			}
			switch {
			case hr <= 55:
				score += 4
			case hr <= 65:
				score += 3
			case hr <= 75:
				score += 2
			case hr <= 85:
				score++
			}

			var pct float64
			var interp string
			switch {
			case score <= 4:
				pct, interp = 56.0, "high risk of major complication or death"
			case score <= 6:
				pct, interp = 16.0, "elevated risk of major complication"
			case score <= 8:
				pct, interp = 6.0, "average risk of major complication"
			default:
				pct, interp = 3.6, "low risk of major complication"
			}
			return domain.RiskResult{
				Score:          domain.Float(float64(score)),
				Percentage:     pct,
				Interpretation: interp,
			}, nil
		},
	}
}

// ARISCAT postoperative pulmonary complications

func ariscatDefinition() *domain.CalculatorDefinition {
	return &domain.CalculatorDefinition{
		Type:             domain.CalculationARISCAT,
		Name:             "ARISCAT",
		ShortDescription: "Risk of postoperative pulmonary complications",
		LongDescription:  "Assess Respiratory Risk in Surgical Patients in Catalonia. Seven weighted predictors summed into low, intermediate and high risk classes.",
		Parameters: []domain.ParameterSpec{
			numberParam("age", "Age", "years", 0, 130),
			numberParam("preop_spo2", "Preoperative SpO2", "%", 0, 100),
			boolParam("respiratory_infection", "Respiratory infection in the last month"),
			boolParam("preop_anemia", "Preoperative anemia (Hb <= 10 g/dL)"),
			choiceParam("incision", "Surgical incision", "peripheral", "upper-abdominal", "intrathoracic"),
			numberParam("duration_hours", "Duration of surgery", "h", 0, 48),
			boolParam("emergency", "Emergency procedure"),
		},
		Formula: func(in domain.Inputs) (domain.RiskResult, error) {
			points := 0

			switch age := in.Number("age"); {
			case age > 80:
				points += 16
			case age > 50:
				points += 3
			}
			switch spo2 := in.Number("preop_spo2"); {
			case spo2 <= 90:
				points += 24
			case spo2 < 96:
				points += 8
			}
			if in.Bool("respiratory_infection") {
				points += 17
			}
			if in.Bool("preop_anemia") {
				points += 11
			}
			switch in.Text("incision") {
			case "upper-abdominal":
				points += 15
			case "intrathoracic":
				points += 24
			}
			switch d := in.Number("duration_hours"); {
			case d > 3:
				points += 23
			case d >= 2:
				points += 16
			}
			if in.Bool("emergency") {
				points += 8
			}

			var pct float64
			var interp string
			switch {
			case points < 26:
				pct, interp = 1.6, "low risk of pulmonary complications"
			case points < 45:
				pct, interp = 13.3, "intermediate risk of pulmonary complications"
			default:
				pct, interp = 42.1, "high risk of pulmonary complications"
			}
			return domain.RiskResult{
				Score:          domain.Float(float64(points)),
				Percentage:     pct,
				Interpretation: interp,
			}, nil
		},
	}
}

// POSSUM physiological score

var (
	possumCardiac     = map[string]int{"normal": 1, "treated": 2, "peripheral-edema": 4, "cardiomegaly": 8}
	possumRespiratory = map[string]int{"normal": 1, "exertional-dyspnea": 2, "limiting-dyspnea": 4, "rest-dyspnea": 8}
	possumECG         = map[string]int{"normal": 1, "atrial-fibrillation": 4, "other-abnormal": 8}
)

func possumPhysiologyDefinition() *domain.CalculatorDefinition {
	return &domain.CalculatorDefinition{
		Type:             domain.CalculationPOSSUMPhysiology,
		Name:             "POSSUM Physiological Score",
		ShortDescription: "Physiological severity score with predicted mortality",
		LongDescription: "Twelve physiological variables weighted 1, 2, 4 or 8. Predicted mortality " +
			"combines the physiological score with the operative severity score.",
		Parameters: []domain.ParameterSpec{
			numberParam("age", "Age", "years", 0, 130),
			choiceParam("cardiac", "Cardiac signs", "normal", "treated", "peripheral-edema", "cardiomegaly"),
			choiceParam("respiratory", "Respiratory history", "normal", "exertional-dyspnea", "limiting-dyspnea", "rest-dyspnea"),
			numberParam("systolic_bp", "Systolic blood pressure", "mmHg", 0, 300),
			numberParam("pulse", "Pulse", "bpm", 0, 300),
			numberParam("gcs", "Glasgow coma scale", "", 3, 15),
			numberParam("hemoglobin", "Hemoglobin", "g/dL", 0, 30),
			numberParam("wbc", "White cell count", "10^9/L", 0, 500),
			numberParam("urea", "Urea", "mmol/L", 0, 200),
			numberParam("sodium", "Sodium", "mmol/L", 80, 200),
			numberParam("potassium", "Potassium", "mmol/L", 0, 15),
			choiceParam("ecg", "Electrocardiogram", "normal", "atrial-fibrillation", "other-abnormal"),
			numberParam("operative_severity", "Operative severity score", "", 6, 48),
		},
		Formula: func(in domain.Inputs) (domain.RiskResult, error) {
			ps := possumAge(in.Number("age")) +
				possumCardiac[in.Text("cardiac")] +
				possumRespiratory[in.Text("respiratory")] +
				possumSystolic(in.Number("systolic_bp")) +
				possumPulse(in.Number("pulse")) +
				possumGCS(in.Number("gcs")) +
				possumHemoglobin(in.Number("hemoglobin")) +
				possumWBC(in.Number("wbc")) +
				possumUrea(in.Number("urea")) +
				possumSodium(in.Number("sodium")) +
				possumPotassium(in.Number("potassium")) +
				possumECG[in.Text("ecg")]

			opScore := in.Number("operative_severity")
			logit := -7.04 + 0.13*float64(ps) + 0.16*opScore
			mortality := 100 / (1 + math.Exp(-logit))

			return domain.RiskResult{
				Score:          domain.Float(float64(ps)),
				Percentage:     domain.Round(mortality, 2),
				Interpretation: fmt.Sprintf("physiological score %d, operative severity %g", ps, opScore),
			}, nil
		},
	}
}

func possumAge(v float64) int {
	switch {
	case v <= 60:
		return 1
	case v <= 70:
		return 2
	default:
		return 4
	}
}

func possumSystolic(v float64) int {
	switch {
	case v >= 110 && v <= 130:
		return 1
	case (v > 130 && v <= 170) || (v >= 100 && v < 110):
		return 2
	case v > 170 || v >= 90:
		return 4
	default:
		return 8
	}
}

func possumPulse(v float64) int {
	switch {
	case v >= 50 && v <= 80:
		return 1
	case (v > 80 && v <= 100) || (v >= 40 && v < 50):
		return 2
	case v > 100 && v <= 120:
		return 4
	default:
		return 8
	}
}

func possumGCS(v float64) int {
	switch {
	case v >= 15:
		return 1
	case v >= 12:
		return 2
	case v >= 9:
		return 4
	default:
		return 8
	}
}

func possumHemoglobin(v float64) int {
	switch {
	case v >= 13 && v <= 16:
		return 1
	case (v >= 11.5 && v < 13) || (v > 16 && v <= 17):
		return 2
	case (v >= 10 && v < 11.5) || (v > 17 && v <= 18):
		return 4
	default:
		return 8
	}
}

func possumWBC(v float64) int {
	switch {
	case v >= 4 && v <= 10:
		return 1
	case (v > 10 && v <= 20) || (v > 3 && v < 4):
		return 2
	default:
		return 4
	}
}

func possumUrea(v float64) int {
	switch {
	case v <= 7.5:
		return 1
	case v <= 10:
		return 2
	case v <= 15:
		return 4
	default:
		return 8
	}
}

func possumSodium(v float64) int {
	switch {
	case v >= 136:
		return 1
	case v >= 131:
		return 2
	case v >= 126:
		return 4
	default:
		return 8
	}
}

func possumPotassium(v float64) int {
	switch {
	case v >= 3.5 && v <= 5:
		return 1
	case (v >= 3.2 && v < 3.5) || (v > 5 && v <= 5.3):
		return 2
	case (v >= 2.9 && v < 3.2) || (v > 5.3 && v < 6):
		return 4
	default:
		return 8
	}
}
