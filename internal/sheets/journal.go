package sheets

import (
	"context"
	"sync"
	"time"
)

// AppendStatus is the outcome recorded for one append attempt.
type AppendStatus string

const (
	StatusApplied AppendStatus = "applied"
	StatusFailed  AppendStatus = "failed"
	StatusPartial AppendStatus = "partial"
	StatusUnknown AppendStatus = "unknown"
)

// AppendEntry is one row of the append journal.
type AppendEntry struct {
	ID            string       `json:"id"`
	BatchID       string       `json:"batch_id"`
	SpreadsheetID string       `json:"spreadsheet_id"`
	Worksheet     string       `json:"worksheet"`
	StartRow      int          `json:"start_row"`
	Rows          int          `json:"rows"`
	Status        AppendStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
}

// Journal records append attempts. Implementations must be safe for
// concurrent use.
type Journal interface {
	Record(ctx context.Context, e AppendEntry) error
	// Recent returns the latest entries, newest first.
	Recent(ctx context.Context, limit int) ([]AppendEntry, error)
}

// MemoryJournal keeps entries in process. It is the journal when no
// database is configured.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []AppendEntry
}

func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

func (j *MemoryJournal) Record(_ context.Context, e AppendEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *MemoryJournal) Recent(_ context.Context, limit int) ([]AppendEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit <= 0 || limit > len(j.entries) {
		limit = len(j.entries)
	}
	out := make([]AppendEntry, 0, limit)
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}
