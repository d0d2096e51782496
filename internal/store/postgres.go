package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/periop-risk-mcp-server/internal/codec"
	"github.com/periop-risk-mcp-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	codec *codec.Codec
}

// NewPostgresStore creates a new PostgreSQL calculation store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB, opts ...Option) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	o := buildOptions(opts)
	return &PostgresStore{db: db, codec: o.codec}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL calculation store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save inserts a new calculation.
func (s *PostgresStore) Save(ctx context.Context, calc *domain.StoredCalculation) error {
	payload, err := prepareInsert(calc, s.codec, time.Now().UTC())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO calculations (
			id, patient_id, calculation_type, calculator_name, calculation_date,
			result_score, result_percentage, result_interpretation, input_parameters,
			notes, related_event_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.db.ExecContext(ctx, query,
		calc.ID,
		calc.PatientID,
		string(calc.CalculationType),
		calc.CalculatorName,
		calc.CalculationDate,
		nullableScore(calc.ResultScore),
		calc.ResultPercentage,
		calc.ResultInterpretation,
		string(payload),
		calc.Notes,
		nullableString(calc.RelatedEventID),
		calc.CreatedAt,
		calc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save calculation: %w", err)
	}
	return nil
}

// Get retrieves a calculation by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.StoredCalculation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM calculations WHERE id = $1", id)

	calc, err := scanCalculation(row, s.codec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calculation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil && calc == nil {
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}
	return calc, err
}

// List returns calculations matching filter.
func (s *PostgresStore) List(ctx context.Context, filter domain.CalculationFilter) ([]*domain.StoredCalculation, error) {
	filter = filter.Normalize()
	where, args := whereClause(filter, postgresPlaceholder)
	query := fmt.Sprintf("SELECT %s FROM calculations%s ORDER BY calculation_date DESC, id LIMIT $%d OFFSET $%d",
		selectColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	return scanRows(rows, s.codec)
}

// Count returns the number of calculations matching filter.
func (s *PostgresStore) Count(ctx context.Context, filter domain.CalculationFilter) (int64, error) {
	where, args := whereClause(filter, postgresPlaceholder)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calculations"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count calculations: %w", err)
	}
	return count, nil
}

// UpdateNotes replaces the notes of a calculation.
func (s *PostgresStore) UpdateNotes(ctx context.Context, id, notes string) (*domain.StoredCalculation, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE calculations SET notes = $1, updated_at = $2 WHERE id = $3",
		notes, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update notes: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("calculation %s: %w", id, domain.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// Delete removes a calculation by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM calculations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete calculation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("calculation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ClearEventLink unlinks every calculation from eventID.
func (s *PostgresStore) ClearEventLink(ctx context.Context, eventID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE calculations SET related_event_id = NULL, updated_at = $1 WHERE related_event_id = $2",
		time.Now().UTC(), eventID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear event link: %w", err)
	}
	return result.RowsAffected()
}

// ExportJSON exports all calculations to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, domain.CalculationFilter{Limit: maxExportLimit})
	return exportAll(writer, all, err)
}

// ImportJSON imports calculations from a JSON reader. Existing IDs are
// skipped through ON CONFLICT DO NOTHING.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	export, err := readExport(reader)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	for _, calc := range export.Calculations {
		if calc == nil {
			skipped++
			continue
		}
		payload, err := prepareInsert(calc, s.codec, now)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}

		result, err := s.db.ExecContext(ctx, `
			INSERT INTO calculations (
				id, patient_id, calculation_type, calculator_name, calculation_date,
				result_score, result_percentage, result_interpretation, input_parameters,
				notes, related_event_id, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING
		`,
			calc.ID, calc.PatientID, string(calc.CalculationType), calc.CalculatorName, calc.CalculationDate,
			nullableScore(calc.ResultScore), calc.ResultPercentage, calc.ResultInterpretation, string(payload),
			calc.Notes, nullableString(calc.RelatedEventID), calc.CreatedAt, calc.UpdatedAt,
		)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			skipped++
			continue
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
