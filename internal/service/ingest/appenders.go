package ingest

import (
	"context"
	"net/http"

	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/credentials"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/distlock"
	"github.com/ignite/campaign-sheet-sync/internal/sheets"
)

// SheetsAppenders builds authorized Sheets appenders from configuration.
type SheetsAppenders struct {
	sheets      config.SheetsConfig
	lock        config.LockConfig
	allowUpload bool
	sources     []credentials.Source
	locks       distlock.Factory
	journal     sheets.Journal
	base        *http.Client
}

// NewSheetsAppenders uses sources, in order, when a request carries no key.
func NewSheetsAppenders(cfg *config.Config, sources []credentials.Source, locks distlock.Factory, journal sheets.Journal) *SheetsAppenders {
	if locks == nil {
		locks = distlock.NewFactory(nil, nil, cfg.Lock.TTL())
	}
	if journal == nil {
		journal = sheets.NewMemoryJournal()
	}
	return &SheetsAppenders{
		sheets:      cfg.Sheets,
		lock:        cfg.Lock,
		allowUpload: cfg.Credentials.AllowUpload,
		sources:     sources,
		locks:       locks,
		journal:     journal,
		base:        &http.Client{Timeout: cfg.Sheets.Timeout()},
	}
}

// Journal exposes the shared append journal.
func (p *SheetsAppenders) Journal() sheets.Journal { return p.journal }

func (p *SheetsAppenders) AppenderFor(ctx context.Context, upload []byte) (Appender, error) {
	sources := p.sources
	if len(upload) > 0 {
		if !p.allowUpload {
			return nil, ErrUploadNotAllowed
		}
		sources = []credentials.Source{credentials.Bytes(upload)}
	}

	sa, err := credentials.Resolve(ctx, sources...)
	if err != nil {
		return nil, err
	}
	// The token source outlives this request's context.
	httpClient, err := sa.HTTPClient(context.WithoutCancel(ctx), p.base, p.sheets.Scopes...)
	if err != nil {
		return nil, err
	}

	client := sheets.NewClient(httpClient, sheets.ClientConfig{
		BaseURL:          p.sheets.BaseURL,
		SpreadsheetID:    p.sheets.SpreadsheetID,
		Worksheet:        p.sheets.Worksheet,
		ValueInputOption: p.sheets.ValueInputOption,
		MaxRetries:       p.sheets.MaxRetries,
	})
	return sheets.NewAppender(client, client,
		sheets.WithLocks(p.locks, p.lock.TTL(), p.lock.Wait(), p.lock.Poll()),
		sheets.WithJournal(p.journal),
	), nil
}

// ConfiguredSources lists the key sources named in cfg: file, env, then S3.
func ConfiguredSources(cfg config.CredentialsConfig, s3Client credentials.S3GetObjectAPI) []credentials.Source {
	return []credentials.Source{
		credentials.File(cfg.File),
		credentials.Env(cfg.JSON),
		credentials.S3Object{Client: s3Client, Bucket: cfg.S3Bucket, Key: cfg.S3Key},
	}
}
