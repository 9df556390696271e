package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/credentials"
	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
	"github.com/ignite/campaign-sheet-sync/internal/service/ingest"
	"github.com/ignite/campaign-sheet-sync/internal/sheets"
	"github.com/ignite/campaign-sheet-sync/internal/storage"
)

const header = "Campaigns,Orders,Clicks,CPC(USD),Start date\n"

// memAppender records appended rows in memory.
type memAppender struct {
	mu    sync.Mutex
	rows  [][]interface{}
	err   error
	creds [][]byte
}

func (m *memAppender) AppenderFor(_ context.Context, upload []byte) (ingest.Appender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = append(m.creds, upload)
	return m, nil
}

func (m *memAppender) Append(_ context.Context, batchID string, rows [][]interface{}) (*sheets.AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	start := len(m.rows) + 1
	m.rows = append(m.rows, rows...)
	return &sheets.AppendResult{BatchID: batchID, StartRow: start, RowsWritten: len(rows)}, nil
}

func newService(t *testing.T, app ingest.AppenderProvider) (*ingest.Service, storage.Archive) {
	t.Helper()
	archive, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return ingest.NewService(app, archive, 5, 3), archive
}

func csvInput(name, body string) datanorm.Input {
	return datanorm.Input{Name: name, Data: []byte(header + body)}
}

func TestProcessAppendsAndReports(t *testing.T) {
	app := &memAppender{}
	svc, _ := newService(t, app)
	ctx := context.Background()

	res, err := svc.Process(ctx, []datanorm.Input{
		csvInput("a.csv", "acct_mkt_prod_red_shoes_b,2,8,$1.50,15/03/25\nno_rule_here,1,0,,x\n"),
		csvInput("b.csv", "brand_us_prod_auto,1,4,0.5,01/01/25\n"),
	}, ingest.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, []string{"a.csv", "b.csv"}, res.Files)
	assert.Equal(t, []string{"Campaigns", "Orders", "Clicks", "CPC(USD)", "Start date", "Keyword", "Match_Type", "CVR"}, res.Columns)
	require.NotNil(t, res.Append)
	assert.Equal(t, 1, res.Append.StartRow)
	assert.Equal(t, 3, res.Append.RowsWritten)
	assert.Len(t, app.rows, 3)
	assert.Equal(t, "red shoes", app.rows[0][5])

	assert.Equal(t, 1, res.UnmatchedCount)
	assert.Equal(t, ingest.UnmatchedRow{Source: "a.csv", Line: 3, Campaign: "no_rule_here"}, res.Unmatched[0])
	assert.NotEmpty(t, res.ReportLocation)

	archived, err := svc.Report(ctx, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, res.Report, archived)
}

func TestProcessDryRunSkipsAppend(t *testing.T) {
	app := &memAppender{}
	svc, _ := newService(t, app)

	res, err := svc.Process(context.Background(), []datanorm.Input{csvInput("a.csv", "x_y_b,1,1,1,01/01/25\n")}, ingest.Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Nil(t, res.Append)
	assert.Empty(t, app.rows)
	assert.Empty(t, app.creds)
}

func TestProcessPreviewIsCapped(t *testing.T) {
	var body string
	for i := 0; i < 8; i++ {
		body += fmt.Sprintf("acct_mkt_prod_kw%d_b,1,2,1,01/01/25\n", i)
	}
	svc, _ := newService(t, &memAppender{})

	res, err := svc.Process(context.Background(), []datanorm.Input{csvInput("a.csv", body)}, ingest.Options{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, res.Preview, 5)
	assert.Equal(t, "kw0", res.Preview[0]["Keyword"])
}

func TestProcessInputErrors(t *testing.T) {
	svc, _ := newService(t, &memAppender{})
	ctx := context.Background()

	_, err := svc.Process(ctx, nil, ingest.Options{})
	assert.True(t, errors.Is(err, ingest.ErrNoInput))

	many := []datanorm.Input{csvInput("1", ""), csvInput("2", ""), csvInput("3", ""), csvInput("4", "")}
	_, err = svc.Process(ctx, many, ingest.Options{})
	assert.True(t, errors.Is(err, ingest.ErrTooManyFiles))

	_, err = svc.Process(ctx, []datanorm.Input{{Name: "bad.csv", Data: []byte("Name,Value\nx,1\n")}}, ingest.Options{})
	assert.True(t, errors.Is(err, datanorm.ErrMissingColumn))

	_, err = svc.Process(ctx, []datanorm.Input{csvInput("a.csv", "x_y_b,1,1,oops,01/01/25\n")}, ingest.Options{})
	var rowErr *datanorm.RowError
	assert.True(t, errors.As(err, &rowErr))
}

func TestProcessAppendFailureKeepsResult(t *testing.T) {
	app := &memAppender{err: &sheets.WriteError{StartRow: 4, Rows: 1, Applied: sheets.AppliedNone, Err: errors.New("boom")}}
	svc, _ := newService(t, app)

	res, err := svc.Process(context.Background(), []datanorm.Input{csvInput("a.csv", "x_y_b,1,1,1,01/01/25\n")}, ingest.Options{Credentials: []byte("{}")})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Rows)
	assert.Nil(t, res.Append)
	assert.Equal(t, [][]byte{[]byte("{}")}, app.creds)
}

func TestProcessEmptyBatchSkipsAppend(t *testing.T) {
	app := &memAppender{}
	svc, _ := newService(t, app)

	res, err := svc.Process(context.Background(), []datanorm.Input{csvInput("a.csv", "")}, ingest.Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, app.creds)
}

func TestSheetsAppendersCredentialPolicy(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Sheets.SpreadsheetID = "abc"
	ctx := context.Background()

	p := ingest.NewSheetsAppenders(cfg, ingest.ConfiguredSources(cfg.Credentials, nil), nil, nil)
	_, err = p.AppenderFor(ctx, []byte(`{"type":"service_account"}`))
	assert.True(t, errors.Is(err, ingest.ErrUploadNotAllowed))

	_, err = p.AppenderFor(ctx, nil)
	assert.True(t, errors.Is(err, credentials.ErrNoCredentials))

	cfg.Credentials.AllowUpload = true
	p = ingest.NewSheetsAppenders(cfg, nil, nil, nil)
	_, err = p.AppenderFor(ctx, []byte(`{"type":"service_account","evil":true}`))
	assert.True(t, errors.Is(err, credentials.ErrInvalidCredentials))
}
