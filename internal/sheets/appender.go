package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-sheet-sync/internal/pkg/distlock"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
)

// AppendResult describes a completed append.
type AppendResult struct {
	BatchID     string `json:"batch_id"`
	StartRow    int    `json:"start_row"`
	RowsWritten int    `json:"rows_written"`
	Range       string `json:"range,omitempty"`
	// Verified is set when the write call failed but a recount showed
	// every row had landed.
	Verified bool `json:"verified,omitempty"`
}

// Target names the worksheet an Appender writes to.
type Target interface {
	SpreadsheetID() string
	Worksheet() string
}

// Appender writes batches below the last occupied row of a worksheet.
// Concurrent appenders, in this process or others, are serialized by a
// lock keyed on the worksheet.
type Appender struct {
	store   Store
	target  Target
	locks   distlock.Factory
	journal Journal

	lockTTL  time.Duration
	lockWait time.Duration
	lockPoll time.Duration
}

// AppenderOption configures an Appender.
type AppenderOption func(*Appender)

// WithLocks sets the lock backend. The default is an in-process lock.
func WithLocks(f distlock.Factory, ttl, wait, poll time.Duration) AppenderOption {
	return func(a *Appender) {
		a.locks = f
		a.lockTTL = ttl
		a.lockWait = wait
		a.lockPoll = poll
	}
}

// WithJournal records every attempt. The default is an in-memory journal.
func WithJournal(j Journal) AppenderOption {
	return func(a *Appender) { a.journal = j }
}

// NewAppender builds an appender for the client's worksheet.
func NewAppender(store Store, target Target, opts ...AppenderOption) *Appender {
	a := &Appender{
		store:    store,
		target:   target,
		lockTTL:  2 * time.Minute,
		lockWait: 30 * time.Second,
		lockPoll: 250 * time.Millisecond,
		journal:  NewMemoryJournal(),
	}
	a.locks = distlock.NewFactory(nil, nil, a.lockTTL)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Journal returns the journal the appender records to.
func (a *Appender) Journal() Journal { return a.journal }

// LockKey is the lock name shared by every writer of the worksheet.
func (a *Appender) LockKey() string {
	return fmt.Sprintf("sheets-append:%s:%s", a.target.SpreadsheetID(), a.target.Worksheet())
}

// Append writes rows at A{R+1}, where R is the occupied row count read under
// the lock. An empty batch returns without contacting the store.
func (a *Appender) Append(ctx context.Context, batchID string, rows [][]interface{}) (*AppendResult, error) {
	if len(rows) == 0 {
		return &AppendResult{BatchID: batchID}, nil
	}

	lock := a.locks(a.LockKey())
	if err := distlock.AcquireWait(ctx, lock, a.lockWait, a.lockPoll); err != nil {
		if errors.Is(err, distlock.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return nil, fmt.Errorf("acquire append lock: %w", err)
	}
	// The append context is cancelled if the lock cannot be kept.
	appendCtx, cancelAppend := context.WithCancelCause(ctx)
	defer cancelAppend(nil)
	stopKeepAlive := a.keepAlive(lock, cancelAppend)
	defer func() {
		stopKeepAlive()
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("sheets: release append lock failed", "key", a.LockKey(), "error", err)
		}
	}()

	entry := AppendEntry{
		ID:            uuid.NewString(),
		BatchID:       batchID,
		SpreadsheetID: a.target.SpreadsheetID(),
		Worksheet:     a.target.Worksheet(),
		Rows:          len(rows),
		StartedAt:     time.Now().UTC(),
	}
	res, err := a.appendLocked(appendCtx, rows, &entry)
	entry.FinishedAt = time.Now().UTC()
	entry.Status = statusOf(err)
	if err != nil {
		entry.Error = err.Error()
	}
	a.record(entry)

	if err != nil {
		return nil, err
	}
	res.BatchID = batchID
	logger.Info("sheets: batch appended",
		"batch_id", batchID, "worksheet", entry.Worksheet,
		"start_row", res.StartRow, "rows", res.RowsWritten)
	return res, nil
}

func (a *Appender) appendLocked(ctx context.Context, rows [][]interface{}, entry *AppendEntry) (*AppendResult, error) {
	before, err := a.store.RowCount(ctx)
	if err != nil {
		return nil, err
	}
	start := before + 1
	entry.StartRow = start

	if err := a.ensureGrid(ctx, before+len(rows), width(rows)); err != nil {
		return nil, err
	}

	res := &AppendResult{
		StartRow:    start,
		RowsWritten: len(rows),
		Range:       CellRange(a.target.Worksheet(), start),
	}
	// Nothing has been written yet, so a lost lock or cancelled request is
	// safe to retry.
	if ctx.Err() != nil {
		return nil, &WriteError{StartRow: start, Rows: len(rows), Applied: AppliedNone, Err: context.Cause(ctx)}
	}
	writeErr := a.store.WriteRows(ctx, start, rows)
	if writeErr == nil {
		return res, nil
	}

	applied := a.verify(ctx, before, len(rows))
	if applied == AppliedAll {
		logger.Warn("sheets: write reported failure but all rows landed",
			"start_row", start, "rows", len(rows), "error", writeErr)
		res.Verified = true
		return res, nil
	}
	return nil, &WriteError{StartRow: start, Rows: len(rows), Applied: applied, Err: writeErr}
}

// verify recounts rows after a failed write. The write context may already
// be done, so the recount gets its own deadline.
func (a *Appender) verify(ctx context.Context, before, k int) Applied {
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	after, err := a.store.RowCount(vctx)
	if err != nil {
		logger.Error("sheets: recount after failed write failed", "error", err)
		return AppliedUnknown
	}
	switch after {
	case before + k:
		return AppliedAll
	case before:
		return AppliedNone
	default:
		return AppliedPartial
	}
}

func (a *Appender) ensureGrid(ctx context.Context, needRows, needCols int) error {
	grid, err := a.store.Grid(ctx)
	if err != nil {
		return err
	}
	if grid.Rows < needRows {
		if err := a.store.AppendDimension(ctx, grid.SheetID, Rows, needRows-grid.Rows); err != nil {
			return err
		}
	}
	if grid.Columns < needCols {
		if err := a.store.AppendDimension(ctx, grid.SheetID, Columns, needCols-grid.Columns); err != nil {
			return err
		}
	}
	return nil
}

type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// keepAlive extends an expiring lock every half TTL until stopped. If an
// extend fails the lock may belong to another writer, so lost is called
// to abort the append.
func (a *Appender) keepAlive(lock distlock.DistLock, lost context.CancelCauseFunc) func() {
	ext, ok := lock.(extender)
	if !ok || a.lockTTL <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(a.lockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := ext.Extend(ctx, a.lockTTL)
				cancel()
				if err != nil {
					logger.Error("sheets: extend append lock failed, aborting append", "key", a.LockKey(), "error", err)
					lost(fmt.Errorf("%w: %v", ErrLockLost, err))
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (a *Appender) record(e AppendEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.journal.Record(ctx, e); err != nil {
		logger.Error("sheets: journal append failed", "batch_id", e.BatchID, "error", err)
	}
}

func statusOf(err error) AppendStatus {
	if err == nil {
		return StatusApplied
	}
	var we *WriteError
	if errors.As(err, &we) {
		switch we.Applied {
		case AppliedPartial:
			return StatusPartial
		case AppliedUnknown:
			return StatusUnknown
		}
	}
	return StatusFailed
}

func width(rows [][]interface{}) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}
