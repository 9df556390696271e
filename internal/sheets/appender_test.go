package sheets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ignite/campaign-sheet-sync/internal/pkg/distlock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type target struct{ id, ws string }

func (t target) SpreadsheetID() string { return t.id }
func (t target) Worksheet() string     { return t.ws }

// memStore is a Store with scriptable failures.
type memStore struct {
	mu     sync.Mutex
	rows   int
	grid   Grid
	writes []int
	// onWrite decides what a write does: how many rows land and what error
	// is returned.
	onWrite  func(k int) (landed int, err error)
	onGrid   func(ctx context.Context)
	countErr error
}

func newMemStore(rows int) *memStore {
	return &memStore{rows: rows, grid: Grid{SheetID: 1, Title: "S", Rows: 1000, Columns: 26}}
}

func (s *memStore) RowCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.rows, nil
}

func (s *memStore) Grid(ctx context.Context) (*Grid, error) {
	if s.onGrid != nil {
		s.onGrid(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.grid
	return &g, nil
}

func (s *memStore) AppendDimension(ctx context.Context, sheetID int64, dim Dimension, length int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dim == Rows {
		s.grid.Rows += length
	} else {
		s.grid.Columns += length
	}
	return nil
}

func (s *memStore) WriteRows(ctx context.Context, startRow int, rows [][]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if startRow != s.rows+1 {
		return fmt.Errorf("write at %d would overwrite, occupied %d", startRow, s.rows)
	}
	s.writes = append(s.writes, startRow)
	landed, err := len(rows), error(nil)
	if s.onWrite != nil {
		landed, err = s.onWrite(len(rows))
	}
	s.rows += landed
	return err
}

func rowsOf(n int) [][]interface{} {
	out := make([][]interface{}, n)
	for i := range out {
		out[i] = []interface{}{fmt.Sprintf("c%d", i), float64(i)}
	}
	return out
}

func TestAppendWritesAfterLastRow(t *testing.T) {
	f, srv := newFakeSheets(t, 1000, 26)
	f.values = [][]interface{}{{"Campaigns"}, {"a"}, {"b"}}
	c := f.client(srv)
	a := NewAppender(c, c)

	res, err := a.Append(context.Background(), "batch-1", rowsOf(2))
	require.NoError(t, err)
	assert.Equal(t, 4, res.StartRow)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, "'Campaign Data'!A4", res.Range)
	assert.Equal(t, "batch-1", res.BatchID)
	assert.Equal(t, 5, f.rowCount())
	assert.Equal(t, "a", f.values[1][0])
}

func TestAppendToEmptySheetStartsAtRowOne(t *testing.T) {
	f, srv := newFakeSheets(t, 1000, 26)
	c := f.client(srv)

	res, err := NewAppender(c, c).Append(context.Background(), "b", rowsOf(3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.StartRow)
	assert.Equal(t, 3, f.rowCount())
}

func TestAppendGrowsGrid(t *testing.T) {
	f, srv := newFakeSheets(t, 4, 1)
	f.values = [][]interface{}{{"x"}, {"y"}, {"z"}}
	c := f.client(srv)

	_, err := NewAppender(c, c).Append(context.Background(), "b", rowsOf(5))
	require.NoError(t, err)
	assert.Equal(t, 8, f.gridRows)
	assert.Equal(t, 2, f.gridCols)
	assert.Equal(t, 8, f.rowCount())
}

func TestAppendEmptyBatchSkipsStore(t *testing.T) {
	store := newMemStore(0)
	store.countErr = errors.New("must not be called")
	a := NewAppender(store, target{"s", "w"})

	res, err := a.Append(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Zero(t, res.RowsWritten)

	entries, _ := a.Journal().Recent(context.Background(), 10)
	assert.Empty(t, entries)
}

func TestSequentialAppendsNeverOverlap(t *testing.T) {
	f, srv := newFakeSheets(t, 1000, 26)
	c := f.client(srv)
	a := NewAppender(c, c)
	ctx := context.Background()

	var starts []int
	for i := 0; i < 4; i++ {
		res, err := a.Append(ctx, fmt.Sprintf("b%d", i), rowsOf(3))
		require.NoError(t, err)
		starts = append(starts, res.StartRow)
	}
	assert.Equal(t, []int{1, 4, 7, 10}, starts)
	assert.Equal(t, 12, f.rowCount())
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	store := newMemStore(1)
	tgt := target{"sheet", fmt.Sprintf("ws-%d", time.Now().UnixNano())}
	factory := distlock.NewFactory(nil, nil, time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := NewAppender(store, tgt, WithLocks(factory, time.Minute, 5*time.Second, time.Millisecond))
			_, errs[i] = a.Append(context.Background(), fmt.Sprintf("b%d", i), rowsOf(2))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 17, store.rows)
	assert.Len(t, store.writes, 8)
}

func TestAppendLockTimeout(t *testing.T) {
	tgt := target{"sheet", fmt.Sprintf("ws-%d", time.Now().UnixNano())}
	factory := distlock.NewFactory(nil, nil, time.Minute)
	a := NewAppender(newMemStore(0), tgt, WithLocks(factory, time.Minute, 20*time.Millisecond, 5*time.Millisecond))

	holder := factory(a.LockKey())
	ok, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Release(context.Background())

	_, err = a.Append(context.Background(), "b", rowsOf(1))
	assert.True(t, errors.Is(err, ErrLockTimeout))
}

func TestAppendWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := newMemStore(0)
	a := NewAppender(store, target{"s", "w"},
		WithLocks(distlock.NewFactory(client, nil, 40*time.Millisecond), 40*time.Millisecond, time.Second, 5*time.Millisecond))

	store.onWrite = func(k int) (int, error) {
		// Outlive the TTL; keepalive must hold the lock meanwhile.
		time.Sleep(60 * time.Millisecond)
		assert.True(t, mr.Exists("lock:"+a.LockKey()))
		return k, nil
	}

	_, err := a.Append(context.Background(), "b", rowsOf(2))
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:"+a.LockKey()))
}

func TestAppendAbortsWhenLockTakenOver(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := newMemStore(3)
	journal := NewMemoryJournal()
	a := NewAppender(store, target{"s", "w"},
		WithLocks(distlock.NewFactory(client, nil, 40*time.Millisecond), 40*time.Millisecond, time.Second, 5*time.Millisecond),
		WithJournal(journal))
	key := "lock:" + a.LockKey()

	store.onGrid = func(ctx context.Context) {
		// Another writer takes the key; the next extend must fail.
		require.NoError(t, mr.Set(key, "someone-else"))
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}

	_, err := a.Append(context.Background(), "b", rowsOf(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockLost))

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, AppliedNone, we.Applied)
	assert.True(t, we.Retryable())
	assert.Empty(t, store.writes)
	assert.Equal(t, 3, store.rows)

	got, _ := mr.Get(key)
	assert.Equal(t, "someone-else", got)

	entries, err := journal.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
}

func TestAppendCancelledBeforeWrite(t *testing.T) {
	store := newMemStore(0)
	a := NewAppender(store, target{"s", fmt.Sprintf("ws-%d", time.Now().UnixNano())})

	ctx, cancel := context.WithCancel(context.Background())
	store.onGrid = func(context.Context) { cancel() }

	_, err := a.Append(ctx, "b", rowsOf(2))
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, AppliedNone, we.Applied)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, store.writes)
}

func TestWriteFailureVerification(t *testing.T) {
	writeErr := errors.New("connection reset")
	tests := []struct {
		name     string
		landed   func(k int) int
		applied  Applied
		status   AppendStatus
		partial  bool
		wantErr  bool
		verified bool
	}{
		{"nothing landed", func(int) int { return 0 }, AppliedNone, StatusFailed, false, true, false},
		{"some rows landed", func(k int) int { return k - 1 }, AppliedPartial, StatusPartial, true, true, false},
		{"all rows landed", func(k int) int { return k }, AppliedAll, StatusApplied, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(10)
			store.onWrite = func(k int) (int, error) { return tt.landed(k), writeErr }
			a := NewAppender(store, target{"s", tt.name})

			res, err := a.Append(context.Background(), "b", rowsOf(3))
			entries, _ := a.Journal().Recent(context.Background(), 1)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.status, entries[0].Status)
			assert.Equal(t, 11, entries[0].StartRow)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.verified, res.Verified)
				return
			}
			var we *WriteError
			require.True(t, errors.As(err, &we))
			assert.Equal(t, tt.applied, we.Applied)
			assert.Equal(t, 11, we.StartRow)
			assert.Equal(t, 3, we.Rows)
			assert.Equal(t, tt.applied == AppliedNone, we.Retryable())
			assert.Equal(t, tt.partial, errors.Is(err, ErrPartialWrite))
			assert.True(t, errors.Is(err, writeErr))
		})
	}
}

func TestRetryAfterSafeFailure(t *testing.T) {
	store := newMemStore(5)
	fail := true
	store.onWrite = func(k int) (int, error) {
		if fail {
			fail = false
			return 0, errors.New("timeout")
		}
		return k, nil
	}
	a := NewAppender(store, target{"s", "retry"})
	ctx := context.Background()

	_, err := a.Append(ctx, "b", rowsOf(2))
	var we *WriteError
	require.True(t, errors.As(err, &we))
	require.True(t, we.Retryable())

	res, err := a.Append(ctx, "b", rowsOf(2))
	require.NoError(t, err)
	assert.Equal(t, 6, res.StartRow)
	assert.Equal(t, 7, store.rows)
}

func TestRecountFailureIsUnknown(t *testing.T) {
	store := newMemStore(2)
	store.onWrite = func(k int) (int, error) {
		store.countErr = errors.New("quota")
		return 0, errors.New("write failed")
	}
	a := NewAppender(store, target{"s", "unknown"})

	_, err := a.Append(context.Background(), "b", rowsOf(1))
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, AppliedUnknown, we.Applied)
	assert.False(t, we.Retryable())
}

func TestMemoryJournalRecent(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(ctx, AppendEntry{BatchID: fmt.Sprint(i)}))
	}
	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].BatchID)
	assert.Equal(t, "1", got[1].BatchID)
}
