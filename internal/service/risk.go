// Package service orchestrates calculator evaluation, classification and
// persistence for the transport layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/calculator"
	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/metrics"
	"github.com/periop-risk-mcp-server/internal/store"
)

// ErrNoStore is returned by persistence operations when the service runs
// without a calculation store.
var ErrNoStore = errors.New("calculation store not configured")

// Evaluation is the outcome of one evaluation with its classification.
type Evaluation struct {
	CalculationType domain.CalculationType `json:"calculation_type"`
	CalculatorName  string                 `json:"calculator_name"`
	Result          domain.RiskResult      `json:"result"`
	RiskBand        domain.BandInfo        `json:"risk_band"`
}

// SaveCalculationParams describes an evaluate-and-persist request.
type SaveCalculationParams struct {
	PatientID       string                  `json:"patient_id"`
	CalculationType domain.CalculationType  `json:"calculation_type"`
	Inputs          map[string]domain.Value `json:"inputs"`
	Notes           string                  `json:"notes,omitempty"`
	RelatedEventID  *string                 `json:"related_event_id,omitempty"`
	CalculationDate time.Time               `json:"calculation_date,omitempty"`
}

// CalculationPage is one page of stored calculations.
type CalculationPage struct {
	Calculations []*domain.StoredCalculation `json:"calculations"`
	Total        int64                       `json:"total"`
	Limit        int                         `json:"limit"`
	Offset       int                         `json:"offset"`
	// CorruptIDs lists calculations on this page whose input parameters
	// could not be decoded. They are included without inputs.
	CorruptIDs   []string                    `json:"corrupt_ids,omitempty"`
}

// RiskService runs calculators and manages stored calculations.
type RiskService struct {
	engine  *calculator.Engine
	store   store.Store
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// RiskServiceOption configures a RiskService.
type RiskServiceOption func(*RiskService)

// WithStore enables persistence operations.
func WithStore(s store.Store) RiskServiceOption {
	return func(r *RiskService) {
		r.store = s
	}
}

// WithMetrics records evaluation and store outcomes.
func WithMetrics(m *metrics.Metrics) RiskServiceOption {
	return func(r *RiskService) {
		r.metrics = m
	}
}

// WithClock overrides the clock used to stamp new calculations.
func WithClock(now func() time.Time) RiskServiceOption {
	return func(r *RiskService) {
		r.now = now
	}
}

// NewRiskService creates a new risk service
func NewRiskService(engine *calculator.Engine, logger *logrus.Logger, opts ...RiskServiceOption) *RiskService {
	r := &RiskService{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the calculator catalog.
func (r *RiskService) Catalog() *calculator.Catalog {
	return r.engine.Catalog()
}

// HasStore reports whether persistence operations are available.
func (r *RiskService) HasStore() bool {
	return r.store != nil
}

// ListCalculators returns every definition ordered by type.
func (r *RiskService) ListCalculators() []*domain.CalculatorDefinition {
	return r.engine.Catalog().List()
}

// DescribeCalculator returns one definition.
func (r *RiskService) DescribeCalculator(t domain.CalculationType) (*domain.CalculatorDefinition, error) {
	return r.engine.Catalog().Get(t)
}

// Evaluate runs a calculator and classifies its percentage.
func (r *RiskService) Evaluate(ctx context.Context, t domain.CalculationType, inputs map[string]domain.Value) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	def, err := r.engine.Catalog().Get(t)
	if err != nil {
		r.metrics.RecordEvaluation(string(t), "not_found", 0)
		return nil, err
	}

	start := time.Now()
	result, err := r.engine.Evaluate(def, inputs)
	elapsed := time.Since(start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrValidation) {
			outcome = "invalid"
		}
		r.metrics.RecordEvaluation(string(t), outcome, elapsed)
		r.logger.WithFields(logrus.Fields{
			"calculation_type": string(t),
			"outcome":          outcome,
			"error":            err.Error(),
		}).Debug("Evaluation rejected")
		return nil, err
	}

	band := calculator.ClassifyResult(result)
	r.metrics.RecordEvaluation(string(t), "ok", elapsed)
	r.metrics.RecordBand(string(band))

	r.logger.WithFields(logrus.Fields{
		"calculation_type": string(t),
		"percentage":       result.Percentage,
		"risk_band":        string(band),
		"duration":         elapsed,
	}).Debug("Evaluation completed")

	return &Evaluation{
		CalculationType: def.Type,
		CalculatorName:  def.Name,
		Result:          result,
		RiskBand:        band.Info(),
	}, nil
}

// Classify maps a percentage onto its band.
func (r *RiskService) Classify(percentage *float64) domain.BandInfo {
	band := calculator.Classify(percentage)
	r.metrics.RecordBand(string(band))
	return band.Info()
}

// SaveCalculation evaluates a calculator and persists the inputs with a
// snapshot of the result. Nothing is stored when evaluation fails.
func (r *RiskService) SaveCalculation(ctx context.Context, params SaveCalculationParams) (*domain.StoredCalculation, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	if strings.TrimSpace(params.PatientID) == "" {
		return nil, domain.NewValidationError("patient_id", "patient id is required", params.PatientID)
	}

	eval, err := r.Evaluate(ctx, params.CalculationType, params.Inputs)
	if err != nil {
		return nil, err
	}

	calcDate := params.CalculationDate
	if calcDate.IsZero() {
		calcDate = r.now().UTC()
	}

	calc := &domain.StoredCalculation{
		PatientID:            params.PatientID,
		CalculationType:      eval.CalculationType,
		CalculatorName:       eval.CalculatorName,
		CalculationDate:      calcDate,
		ResultScore:          eval.Result.Score,
		ResultPercentage:     eval.Result.Percentage,
		ResultInterpretation: eval.Result.Interpretation,
		InputParameters:      copyInputs(params.Inputs),
		Notes:                params.Notes,
		RelatedEventID:       params.RelatedEventID,
	}

	err = r.store.Save(ctx, calc)
	r.metrics.RecordStoreOperation("save", err)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields(calc.LogFields())).Error("Failed to save calculation")
		return nil, fmt.Errorf("failed to save calculation: %w", err)
	}

	calc.RiskBand = eval.RiskBand.Band
	r.logger.WithFields(logrus.Fields(calc.LogFields())).Info("Calculation saved")
	return calc, nil
}

// GetCalculation returns a stored calculation with its band derived from
// the stored percentage. A corrupt parameter payload is returned together
// with the partially read record.
func (r *RiskService) GetCalculation(ctx context.Context, id string) (*domain.StoredCalculation, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	calc, err := r.store.Get(ctx, id)
	r.metrics.RecordStoreOperation("get", err)
	if calc != nil {
		annotate(calc)
	}
	if err != nil && errors.Is(err, domain.ErrCorruptPayload) {
		r.logger.WithError(err).WithField("calculation_id", id).Warn("Stored calculation has a corrupt parameter payload")
	}
	return calc, err
}

// ListCalculations returns one page of calculations and the total match
// count.
func (r *RiskService) ListCalculations(ctx context.Context, filter domain.CalculationFilter) (*CalculationPage, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	filter = filter.Normalize()

	calcs, err := r.store.List(ctx, filter)
	r.metrics.RecordStoreOperation("list", err)
	if err != nil && !errors.Is(err, domain.ErrCorruptPayload) {
		return nil, err
	}
	corrupt := corruptIDs(calcs)
	if len(corrupt) > 0 {
		r.logger.WithError(err).WithField("calculation_ids", corrupt).Warn("Stored calculations have corrupt parameter payloads")
	}
	total, err := r.store.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, c := range calcs {
		annotate(c)
	}
	if calcs == nil {
		calcs = []*domain.StoredCalculation{}
	}
	return &CalculationPage{
		Calculations: calcs,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		CorruptIDs:   corrupt,
	}, nil
}

// UpdateNotes replaces the notes of a stored calculation.
func (r *RiskService) UpdateNotes(ctx context.Context, id, notes string) (*domain.StoredCalculation, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	calc, err := r.store.UpdateNotes(ctx, id, notes)
	r.metrics.RecordStoreOperation("update_notes", err)
	if calc != nil {
		annotate(calc)
	}
	if err == nil {
		r.logger.WithField("calculation_id", id).Info("Calculation notes updated")
	}
	return calc, err
}

// DeleteCalculation removes a stored calculation.
func (r *RiskService) DeleteCalculation(ctx context.Context, id string) error {
	if r.store == nil {
		return ErrNoStore
	}
	err := r.store.Delete(ctx, id)
	r.metrics.RecordStoreOperation("delete", err)
	if err == nil {
		r.logger.WithField("calculation_id", id).Info("Calculation deleted")
	}
	return err
}

// ClearEventLinks detaches every calculation from a removed clinical
// event. The calculations themselves are kept.
func (r *RiskService) ClearEventLinks(ctx context.Context, eventID string) (int64, error) {
	if r.store == nil {
		return 0, ErrNoStore
	}
	if strings.TrimSpace(eventID) == "" {
		return 0, domain.NewValidationError("event_id", "event id is required", eventID)
	}
	n, err := r.store.ClearEventLink(ctx, eventID)
	r.metrics.RecordStoreOperation("clear_event_link", err)
	if err == nil {
		r.logger.WithFields(logrus.Fields{
			"related_event_id": eventID,
			"unlinked":         n,
		}).Info("Event links cleared")
	}
	return n, err
}

// ExportCalculations writes every stored calculation as JSON. Calculations
// with a corrupt parameter payload are logged and left out.
func (r *RiskService) ExportCalculations(ctx context.Context, w io.Writer) error {
	if r.store == nil {
		return ErrNoStore
	}
	err := r.store.ExportJSON(ctx, w)
	r.metrics.RecordStoreOperation("export", err)
	if errors.Is(err, domain.ErrCorruptPayload) {
		r.logger.WithError(err).Warn("Export skipped calculations with corrupt parameter payloads")
		return nil
	}
	return err
}

// ImportCalculations loads calculations from a JSON export. Existing IDs
// are skipped.
func (r *RiskService) ImportCalculations(ctx context.Context, rd io.Reader) (imported, skipped int, err error) {
	if r.store == nil {
		return 0, 0, ErrNoStore
	}
	imported, skipped, err = r.store.ImportJSON(ctx, rd)
	r.metrics.RecordStoreOperation("import", err)
	r.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Calculations imported")
	return imported, skipped, err
}

func annotate(c *domain.StoredCalculation) {
	c.RiskBand = calculator.ClassifyResult(c.Result())
}

func corruptIDs(calcs []*domain.StoredCalculation) []string {
	var ids []string
	for _, c := range calcs {
		if c.InputParameters == nil {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func copyInputs(in map[string]domain.Value) map[string]domain.Value {
	out := make(map[string]domain.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
