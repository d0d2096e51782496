// Package store persists stored calculations. Input parameters are kept as
// an encoded payload (see package codec); results are snapshots written once
// and never recomputed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/periop-risk-mcp-server/internal/codec"
	"github.com/periop-risk-mcp-server/internal/domain"
)

// Store defines the interface for stored calculation persistence.
type Store interface {
	// Save inserts a new calculation. An empty ID is assigned a UUID.
	// Saving an existing ID fails; stored results are never overwritten.
	Save(ctx context.Context, calc *domain.StoredCalculation) error

	// Get retrieves a calculation by ID. A missing ID wraps
	// domain.ErrNotFound. An undecodable parameter payload is returned
	// with the rest of the record and an error wrapping
	// domain.ErrCorruptPayload.
	Get(ctx context.Context, id string) (*domain.StoredCalculation, error)

	// List returns calculations matching filter, newest calculation first.
	// Rows whose parameter payload cannot be decoded are still returned,
	// with nil InputParameters, alongside an error joining one
	// domain.ErrCorruptPayload per such row.
	List(ctx context.Context, filter domain.CalculationFilter) ([]*domain.StoredCalculation, error)

	// Count returns the number of calculations matching filter.
	Count(ctx context.Context, filter domain.CalculationFilter) (int64, error)

	// UpdateNotes replaces the notes of a calculation. No other field
	// changes besides UpdatedAt.
	UpdateNotes(ctx context.Context, id, notes string) (*domain.StoredCalculation, error)

	// Delete removes a calculation by ID.
	Delete(ctx context.Context, id string) error

	// ClearEventLink unlinks every calculation from eventID, leaving the
	// calculations in place. It returns the number of unlinked rows.
	ClearEventLink(ctx context.Context, eventID string) (int64, error)

	// ExportJSON exports all calculations to a JSON writer. Rows with a
	// corrupt payload are left out of the document and reported through
	// an error wrapping domain.ErrCorruptPayload after the rest is written.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports calculations from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// CalculationExport represents the JSON export format.
type CalculationExport struct {
	Version      string                      `json:"version"`
	ExportedAt   time.Time                   `json:"exported_at"`
	Count        int                         `json:"count"`
	Calculations []*domain.StoredCalculation `json:"calculations"`
}

// ExportVersion is written to every export.
const ExportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// Option configures a store.
type Option func(*options)

type options struct {
	codec *codec.Codec
}

// WithCodec sets the parameter codec used for new writes. The default
// writes the legacy encoding.
func WithCodec(c *codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

func buildOptions(opts []Option) options {
	o := options{codec: codec.New(codec.EncodingLegacy)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const selectColumns = `id, patient_id, calculation_type, calculator_name, calculation_date,
	result_score, result_percentage, result_interpretation, input_parameters,
	notes, related_event_id, created_at, updated_at`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanCalculation scans a row into a StoredCalculation. A payload decode
// failure still returns the scanned record.
func scanCalculation(s scanner, c *codec.Codec) (*domain.StoredCalculation, error) {
	calc := &domain.StoredCalculation{}
	var (
		calcType string
		score    sql.NullFloat64
		payload  []byte
		eventID  sql.NullString
	)

	err := s.Scan(
		&calc.ID, &calc.PatientID, &calcType, &calc.CalculatorName, &calc.CalculationDate,
		&score, &calc.ResultPercentage, &calc.ResultInterpretation, &payload,
		&calc.Notes, &eventID, &calc.CreatedAt, &calc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	calc.CalculationType = domain.CalculationType(calcType)
	if score.Valid {
		calc.ResultScore = domain.Float(score.Float64)
	}
	if eventID.Valid {
		calc.RelatedEventID = &eventID.String
	}

	params, err := c.Decode(payload)
	if err != nil {
		return calc, fmt.Errorf("calculation %s: %w", calc.ID, err)
	}
	calc.InputParameters = params
	return calc, nil
}

// scanRows reads every row. Corrupt payloads do not stop the scan; their
// errors are joined and returned with the full result.
func scanRows(rows *sql.Rows, c *codec.Codec) ([]*domain.StoredCalculation, error) {
	var (
		result  []*domain.StoredCalculation
		corrupt []error
	)
	for rows.Next() {
		calc, err := scanCalculation(rows, c)
		if err != nil {
			if calc == nil {
				return nil, fmt.Errorf("failed to scan row: %w", err)
			}
			corrupt = append(corrupt, err)
		}
		result = append(result, calc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, errors.Join(corrupt...)
}

// exportAll writes the readable calculations and reports the corrupt ones.
func exportAll(writer io.Writer, calcs []*domain.StoredCalculation, listErr error) error {
	if listErr != nil && !errors.Is(listErr, domain.ErrCorruptPayload) {
		return fmt.Errorf("failed to list calculations: %w", listErr)
	}
	readable := make([]*domain.StoredCalculation, 0, len(calcs))
	for _, calc := range calcs {
		if calc.InputParameters != nil {
			readable = append(readable, calc)
		}
	}
	if err := writeExport(writer, readable); err != nil {
		return err
	}
	return listErr
}

// prepareInsert assigns identity and timestamps and encodes the inputs.
func prepareInsert(calc *domain.StoredCalculation, c *codec.Codec, now time.Time) ([]byte, error) {
	if calc.ID == "" {
		calc.ID = uuid.New().String()
	}
	if calc.CalculationDate.IsZero() {
		calc.CalculationDate = now
	}
	if calc.CreatedAt.IsZero() {
		calc.CreatedAt = now
	}
	if calc.UpdatedAt.IsZero() {
		calc.UpdatedAt = calc.CreatedAt
	}
	if err := calc.Validate(); err != nil {
		return nil, err
	}
	if calc.InputParameters == nil {
		calc.InputParameters = map[string]domain.Value{}
	}
	payload, err := c.Encode(calc.InputParameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input parameters: %w", err)
	}
	return payload, nil
}

func nullableScore(score *float64) sql.NullFloat64 {
	if score == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *score, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// whereClause renders filter conditions with placeholders produced by ph
// for 1-based argument positions.
func whereClause(filter domain.CalculationFilter, ph func(int) string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args))))
	}
	if filter.PatientID != "" {
		add("patient_id = %s", filter.PatientID)
	}
	if filter.CalculationType != "" {
		add("calculation_type = %s", string(filter.CalculationType))
	}
	if filter.RelatedEventID != "" {
		add("related_event_id = %s", filter.RelatedEventID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// writeExport encodes calcs in the export format.
func writeExport(writer io.Writer, calcs []*domain.StoredCalculation) error {
	if calcs == nil {
		calcs = []*domain.StoredCalculation{}
	}
	export := &CalculationExport{
		Version:      ExportVersion,
		ExportedAt:   time.Now(),
		Count:        len(calcs),
		Calculations: calcs,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// readExport decodes the export format.
func readExport(reader io.Reader) (*CalculationExport, error) {
	var export CalculationExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return &export, nil
}
