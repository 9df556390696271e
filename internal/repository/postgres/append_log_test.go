package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sheet-sync/internal/sheets"
)

func TestAppendLogRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	e := sheets.AppendEntry{
		ID: "e1", BatchID: "b1", SpreadsheetID: "s", Worksheet: "w",
		StartRow: 11, Rows: 3, Status: sheets.StatusApplied,
		StartedAt: started, FinishedAt: started.Add(time.Second),
	}
	mock.ExpectExec("INSERT INTO sheet_append_log").
		WithArgs("e1", "b1", "s", "w", 11, 3, "applied", "", started, started.Add(time.Second)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewAppendLogRepo(db).Record(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLogRecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO sheet_append_log").WillReturnError(errors.New("relation does not exist"))

	err = NewAppendLogRepo(db).Record(context.Background(), sheets.AppendEntry{BatchID: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert append log")
}

func TestAppendLogRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "batch_id", "spreadsheet_id", "worksheet", "start_row", "row_count", "status", "error", "started_at", "finished_at"}).
		AddRow("e2", "b2", "s", "w", 14, 2, "partial", "write failed", now, now).
		AddRow("e1", "b1", "s", "w", 11, 3, "applied", "", now.Add(-time.Minute), now.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM sheet_append_log").WithArgs(10).WillReturnRows(rows)

	got, err := NewAppendLogRepo(db).Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sheets.StatusPartial, got[0].Status)
	assert.Equal(t, "write failed", got[0].Error)
	assert.Equal(t, 14, got[0].StartRow)
	assert.NoError(t, mock.ExpectationsWereMet())
}
