package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
	"github.com/ignite/campaign-sheet-sync/internal/report"
	"github.com/ignite/campaign-sheet-sync/internal/sheets"
	"github.com/ignite/campaign-sheet-sync/internal/storage"
)

// Appender writes normalized rows to the remote worksheet.
type Appender interface {
	Append(ctx context.Context, batchID string, rows [][]interface{}) (*sheets.AppendResult, error)
}

// AppenderProvider builds an Appender for a request. upload holds an
// uploaded service account key, or nil to use the configured sources.
type AppenderProvider interface {
	AppenderFor(ctx context.Context, upload []byte) (Appender, error)
}

// Options control one Process call.
type Options struct {
	DryRun      bool
	Credentials []byte
}

// UnmatchedRow identifies a row the classifier could not place.
type UnmatchedRow struct {
	Source   string `json:"source"`
	Line     int    `json:"line"`
	Campaign string `json:"campaign"`
}

// Result summarizes a processed batch.
type Result struct {
	BatchID        string               `json:"batch_id"`
	Files          []string             `json:"files"`
	Rows           int                  `json:"rows"`
	Columns        []string             `json:"columns"`
	Preview        []map[string]string  `json:"preview"`
	Unmatched      []UnmatchedRow       `json:"unmatched"`
	UnmatchedCount int                  `json:"unmatched_count"`
	DryRun         bool                 `json:"dry_run"`
	Append         *sheets.AppendResult `json:"append,omitempty"`
	ReportLocation string               `json:"report_location,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`

	Report []byte `json:"-"`
}

// Service implements the ingest pipeline.
type Service struct {
	appenders   AppenderProvider
	archive     storage.Archive
	previewRows int
	maxFiles    int
}

// NewService wires the pipeline. archive may be nil to skip archiving.
func NewService(appenders AppenderProvider, archive storage.Archive, previewRows, maxFiles int) *Service {
	if archive == nil {
		archive = storage.Discard{}
	}
	if previewRows <= 0 {
		previewRows = 5
	}
	return &Service{appenders: appenders, archive: archive, previewRows: previewRows, maxFiles: maxFiles}
}

// Process runs the batch. Input and normalization errors return a nil
// Result. When only the append fails, the Result is returned together with
// the error so callers can still show the preview and unmatched rows.
func (s *Service) Process(ctx context.Context, inputs []datanorm.Input, opts Options) (*Result, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInput
	}
	if s.maxFiles > 0 && len(inputs) > s.maxFiles {
		return nil, fmt.Errorf("%w: %d given, limit %d", ErrTooManyFiles, len(inputs), s.maxFiles)
	}

	batch, err := datanorm.Assemble(inputs...)
	if err != nil {
		return nil, err
	}
	if err := datanorm.Normalize(batch); err != nil {
		return nil, err
	}

	res := &Result{
		BatchID:   uuid.NewString(),
		Rows:      batch.Len(),
		Columns:   batch.Mapping.Output,
		Preview:   batch.Preview(s.previewRows),
		DryRun:    opts.DryRun,
		CreatedAt: time.Now().UTC(),
	}
	for _, in := range inputs {
		res.Files = append(res.Files, in.Name)
	}

	unmatched := datanorm.Unmatched(batch)
	res.UnmatchedCount = len(unmatched)
	res.Unmatched = make([]UnmatchedRow, 0, len(unmatched))
	for _, rec := range unmatched {
		res.Unmatched = append(res.Unmatched, UnmatchedRow{Source: rec.Source, Line: rec.Line, Campaign: rec.Campaign})
	}
	if res.Report, err = report.UnmatchedXLSX(unmatched); err != nil {
		return nil, fmt.Errorf("render unmatched report: %w", err)
	}
	s.archiveReport(ctx, res)

	logger.Info("ingest: batch normalized",
		"batch_id", res.BatchID, "files", len(inputs), "rows", res.Rows,
		"unmatched", res.UnmatchedCount, "dry_run", opts.DryRun)

	if opts.DryRun || batch.Len() == 0 {
		return res, nil
	}

	appender, err := s.appenders.AppenderFor(ctx, opts.Credentials)
	if err != nil {
		return res, err
	}
	out, err := appender.Append(ctx, res.BatchID, batch.Rows())
	if err != nil {
		logger.Error("ingest: append failed", "batch_id", res.BatchID, "error", err)
		return res, err
	}
	res.Append = out
	return res, nil
}

func (s *Service) archiveReport(ctx context.Context, res *Result) {
	loc, err := s.archive.Put(ctx, report.ArchiveKey(res.BatchID), res.Report, report.ContentType)
	if err != nil {
		logger.Warn("ingest: archive unmatched report failed", "batch_id", res.BatchID, "error", err)
		return
	}
	res.ReportLocation = loc
}

// Report loads an archived unmatched report.
func (s *Service) Report(ctx context.Context, batchID string) ([]byte, error) {
	return s.archive.Get(ctx, report.ArchiveKey(batchID))
}
