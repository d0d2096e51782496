package store

import (
	"context"
	"database/sql"
	"os"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-risk-mcp-server/internal/domain"
)

var columnNames = []string{
	"id", "patient_id", "calculation_type", "calculator_name", "calculation_date",
	"result_score", "result_percentage", "result_interpretation", "input_parameters",
	"notes", "related_event_id", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_SaveMock(t *testing.T) {
	store, mock := newMockStore(t)
	calc := rcriCalculation("patient-1")
	calc.ID = "calc-1"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calculations")).
		WithArgs("calc-1", "patient-1", "rcri", "Revised Cardiac Risk Index", calcDate,
			sqlmock.AnyArg(), 10.1, "2 risk factors", sqlmock.AnyArg(),
			"", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), calc)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMock(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(columnNames).AddRow(
		"calc-1", "patient-1", "asa", "ASA Physical Status", calcDate,
		nil, 3.5, "ASA III", `{"asa_class":"III","emergency":"false"}`,
		"", "event-1", calcDate, calcDate,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM calculations WHERE id = $1")).
		WithArgs("calc-1").
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), "calc-1")

	require.NoError(t, err)
	assert.Nil(t, got.ResultScore)
	assert.Equal(t, domain.CalculationASA, got.CalculationType)
	require.NotNil(t, got.RelatedEventID)
	assert.Equal(t, "event-1", *got.RelatedEventID)
	assert.True(t, got.InputParameters["asa_class"].Equal(domain.TextValue("III")))
	assert.True(t, got.InputParameters["emergency"].Equal(domain.BoolValue(false)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFoundMock(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM calculations WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_ListFilterPlaceholders(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM calculations WHERE patient_id = $1 AND calculation_type = $2 ORDER BY calculation_date DESC, id LIMIT $3 OFFSET $4")).
		WithArgs("patient-1", "rcri", domain.DefaultListLimit, 0).
		WillReturnRows(sqlmock.NewRows(columnNames))

	list, err := store.List(context.Background(), domain.CalculationFilter{
		PatientID:       "patient-1",
		CalculationType: domain.CalculationRCRI,
	})

	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCorruptRowMock(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows(columnNames).
		AddRow("calc-2", "patient-1", "asa", "ASA Physical Status", calcDate,
			nil, 3.5, "ASA III", `["not", "an", "object"]`,
			"", nil, calcDate, calcDate).
		AddRow("calc-1", "patient-1", "asa", "ASA Physical Status", calcDate,
			nil, 3.5, "ASA III", `{"asa_class":"III","emergency":"false"}`,
			"", nil, calcDate, calcDate)
	mock.ExpectQuery(regexp.QuoteMeta("FROM calculations WHERE patient_id = $1")).
		WithArgs("patient-1", domain.DefaultListLimit, 0).
		WillReturnRows(rows)

	list, err := store.List(context.Background(), domain.CalculationFilter{PatientID: "patient-1"})

	assert.ErrorIs(t, err, domain.ErrCorruptPayload)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].InputParameters)
	assert.Len(t, list[1].InputParameters, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNotesNotFoundMock(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE calculations SET notes = $1")).
		WithArgs("note", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateNotes(context.Background(), "missing", "note")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_ClearEventLinkMock(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE calculations SET related_event_id = NULL")).
		WithArgs(sqlmock.AnyArg(), "event-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ClearEventLink(context.Background(), "event-1")

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// getTestDB returns a database connection for testing.
// Skip test if TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS calculations (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL,
			calculation_type TEXT NOT NULL,
			calculator_name TEXT NOT NULL,
			calculation_date TIMESTAMP WITH TIME ZONE NOT NULL,
			result_score DOUBLE PRECISION,
			result_percentage DOUBLE PRECISION NOT NULL,
			result_interpretation TEXT NOT NULL DEFAULT '',
			input_parameters TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			related_event_id TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM calculations")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	event := "event-9"
	calc := rcriCalculation("patient-1")
	calc.RelatedEventID = &event
	require.NoError(t, store.Save(ctx, calc))

	got, err := store.Get(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.1, got.ResultPercentage)
	assert.Len(t, got.InputParameters, 6)

	n, err := store.ClearEventLink(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	updated, err := store.UpdateNotes(ctx, calc.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", updated.Notes)
	assert.Nil(t, updated.RelatedEventID)

	require.NoError(t, store.Delete(ctx, calc.ID))
	count, err := store.Count(ctx, domain.CalculationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
