// Package repository reads and writes the measurements table that feeds
// the trends engine.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/trends"
)

// MeasurementRepository handles measurement persistence. It implements
// domain.MeasurementSource.
type MeasurementRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

var _ domain.MeasurementSource = (*MeasurementRepository)(nil)

// NewMeasurementRepository creates a new measurement repository
func NewMeasurementRepository(db *pgxpool.Pool, logger *logrus.Logger) *MeasurementRepository {
	return &MeasurementRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a measurement. An empty MeasurementID is assigned a UUID.
func (r *MeasurementRepository) Create(ctx context.Context, point *domain.ParameterDataPoint) error {
	if strings.TrimSpace(point.PatientID) == "" {
		return domain.NewValidationError("patient_id", "patient id is required", point.PatientID)
	}
	if strings.TrimSpace(point.ParameterName) == "" {
		return domain.NewValidationError("parameter_name", "parameter name is required", point.ParameterName)
	}
	if point.Date.IsZero() {
		return domain.NewValidationError("date", "measurement date is required", nil)
	}
	if point.MeasurementID == "" {
		point.MeasurementID = uuid.New().String()
	}

	var unit string
	var low, high *float64
	if rr := point.ReferenceRange; rr != nil {
		unit, low, high = rr.Unit, rr.Low, rr.High
	}

	query := `
		INSERT INTO measurements (
			id, patient_id, parameter_name, measured_at, value,
			unit, reference_low, reference_high, is_abnormal
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := r.db.Exec(ctx, query,
		point.MeasurementID,
		point.PatientID,
		point.ParameterName,
		point.Date,
		point.Value,
		unit,
		low,
		high,
		point.IsAbnormal,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"measurement_id": point.MeasurementID,
			"patient_id":     point.PatientID,
			"parameter_name": point.ParameterName,
			"error":          err,
		}).Error("Failed to create measurement")
		return fmt.Errorf("creating measurement: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"measurement_id": point.MeasurementID,
		"patient_id":     point.PatientID,
		"parameter_name": point.ParameterName,
	}).Debug("Measurement created")

	return nil
}

// Samples returns the samples of one parameter for one patient in
// chronological order, optionally bounded by the query window. Samples
// outside a stored reference range are flagged abnormal.
func (r *MeasurementRepository) Samples(ctx context.Context, q domain.TrendQuery) ([]domain.ParameterDataPoint, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, patient_id, parameter_name, measured_at, value,
			   unit, reference_low, reference_high, is_abnormal
		FROM measurements
		WHERE patient_id = $1 AND parameter_name = $2`
	args := []any{q.PatientID, q.ParameterName}
	if !q.From.IsZero() {
		args = append(args, q.From)
		query += fmt.Sprintf(" AND measured_at >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		query += fmt.Sprintf(" AND measured_at <= $%d", len(args))
	}
	query += " ORDER BY measured_at ASC, id ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id":     q.PatientID,
			"parameter_name": q.ParameterName,
			"error":          err,
		}).Error("Failed to query measurements")
		return nil, fmt.Errorf("querying measurements: %w", err)
	}

	samples, err := pgx.CollectRows(rows, scanMeasurement)
	if err != nil {
		return nil, fmt.Errorf("scanning measurements: %w", err)
	}
	if samples == nil {
		samples = []domain.ParameterDataPoint{}
	}

	trends.FlagAbnormal(samples)
	return samples, nil
}

// DeleteByPatient removes every measurement of a patient.
func (r *MeasurementRepository) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM measurements WHERE patient_id = $1", patientID)
	if err != nil {
		return 0, fmt.Errorf("deleting measurements: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMeasurement(row pgx.CollectableRow) (domain.ParameterDataPoint, error) {
	var (
		p         domain.ParameterDataPoint
		unit      string
		low, high *float64
		at        time.Time
	)
	if err := row.Scan(&p.MeasurementID, &p.PatientID, &p.ParameterName, &at, &p.Value, &unit, &low, &high, &p.IsAbnormal); err != nil {
		return p, err
	}
	p.Date = at.UTC()
	if unit != "" || low != nil || high != nil {
		p.ReferenceRange = &domain.ReferenceRange{Low: low, High: high, Unit: unit}
	}
	return p, nil
}
