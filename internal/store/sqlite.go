package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/periop-risk-mcp-server/internal/codec"
	"github.com/periop-risk-mcp-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	codec  *codec.Codec
}

// NewSQLiteStore creates a new SQLite calculation store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		codec:  o.codec,
	}, nil
}

// createSchema creates the database tables and indexes. related_event_id
// is a plain column without a foreign key so removing an event never
// removes calculations.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		calculation_type TEXT NOT NULL,
		calculator_name TEXT NOT NULL,
		calculation_date DATETIME NOT NULL,
		result_score REAL,
		result_percentage REAL NOT NULL,
		result_interpretation TEXT NOT NULL DEFAULT '',
		input_parameters BLOB NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		related_event_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_calculations_patient ON calculations(patient_id, calculation_date);
	CREATE INDEX IF NOT EXISTS idx_calculations_type ON calculations(calculation_type);
	CREATE INDEX IF NOT EXISTS idx_calculations_event ON calculations(related_event_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Save inserts a new calculation.
func (s *SQLiteStore) Save(ctx context.Context, calc *domain.StoredCalculation) error {
	payload, err := prepareInsert(calc, s.codec, time.Now().UTC())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calculations (
			id, patient_id, calculation_type, calculator_name, calculation_date,
			result_score, result_percentage, result_interpretation, input_parameters,
			notes, related_event_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		calc.ID,
		calc.PatientID,
		string(calc.CalculationType),
		calc.CalculatorName,
		calc.CalculationDate,
		nullableScore(calc.ResultScore),
		calc.ResultPercentage,
		calc.ResultInterpretation,
		payload,
		calc.Notes,
		nullableString(calc.RelatedEventID),
		calc.CreatedAt,
		calc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get retrieves a calculation by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.StoredCalculation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM calculations WHERE id = ?", id)

	calc, err := scanCalculation(row, s.codec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calculation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil && calc == nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return calc, err
}

// List returns calculations matching filter.
func (s *SQLiteStore) List(ctx context.Context, filter domain.CalculationFilter) ([]*domain.StoredCalculation, error) {
	filter = filter.Normalize()
	where, args := whereClause(filter, sqlitePlaceholder)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM calculations"+where+
			" ORDER BY calculation_date DESC, id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows, s.codec)
}

// Count returns the number of calculations matching filter.
func (s *SQLiteStore) Count(ctx context.Context, filter domain.CalculationFilter) (int64, error) {
	where, args := whereClause(filter, sqlitePlaceholder)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calculations"+where, args...).Scan(&count)
	return count, err
}

// UpdateNotes replaces the notes of a calculation.
func (s *SQLiteStore) UpdateNotes(ctx context.Context, id, notes string) (*domain.StoredCalculation, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE calculations SET notes = ?, updated_at = ? WHERE id = ?",
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
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM calculations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("calculation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ClearEventLink unlinks every calculation from eventID.
func (s *SQLiteStore) ClearEventLink(ctx context.Context, eventID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE calculations SET related_event_id = NULL, updated_at = ? WHERE related_event_id = ?",
		time.Now().UTC(), eventID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear event link: %w", err)
	}
	return result.RowsAffected()
}

// ExportJSON exports all calculations to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, domain.CalculationFilter{Limit: maxExportLimit})
	return exportAll(writer, all, err)
}

// ImportJSON imports calculations from a JSON reader. Entries whose ID
// already exists are skipped.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	export, err := readExport(reader)
	if err != nil {
		return 0, 0, err
	}

	for _, calc := range export.Calculations {
		if calc == nil {
			skipped++
			continue
		}
		if calc.ID != "" {
			var exists int
			err := s.db.QueryRowContext(ctx, "SELECT 1 FROM calculations WHERE id = ?", calc.ID).Scan(&exists)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
			}
		}

		if err := s.Save(ctx, calc); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
