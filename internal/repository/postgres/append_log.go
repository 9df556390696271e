package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-sheet-sync/internal/sheets"
)

// AppendLogRepo implements sheets.Journal against PostgreSQL.
type AppendLogRepo struct{ db *sql.DB }

// NewAppendLogRepo creates a Postgres-backed append journal.
func NewAppendLogRepo(db *sql.DB) *AppendLogRepo { return &AppendLogRepo{db: db} }

func (r *AppendLogRepo) Record(ctx context.Context, e sheets.AppendEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sheet_append_log
			(id, batch_id, spreadsheet_id, worksheet, start_row, row_count,
			 status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
	`, e.ID, e.BatchID, e.SpreadsheetID, e.Worksheet, e.StartRow, e.Rows,
		string(e.Status), e.Error, e.StartedAt, e.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert append log: %w", err)
	}
	return nil
}

func (r *AppendLogRepo) Recent(ctx context.Context, limit int) ([]sheets.AppendEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, spreadsheet_id, worksheet, start_row, row_count,
		       status, COALESCE(error,''), started_at, finished_at
		FROM sheet_append_log
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list append log: %w", err)
	}
	defer rows.Close()

	var out []sheets.AppendEntry
	for rows.Next() {
		var e sheets.AppendEntry
		var status string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.SpreadsheetID, &e.Worksheet, &e.StartRow, &e.Rows,
			&status, &e.Error, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan append log: %w", err)
		}
		e.Status = sheets.AppendStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
