package api

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/httputil"
	"github.com/ignite/campaign-sheet-sync/internal/service/ingest"
	"github.com/ignite/campaign-sheet-sync/internal/sheets"
)

// BatchProcessor runs the ingest pipeline.
type BatchProcessor interface {
	Process(ctx context.Context, inputs []datanorm.Input, opts ingest.Options) (*ingest.Result, error)
	Report(ctx context.Context, batchID string) ([]byte, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	batches BatchProcessor
	journal sheets.Journal
	results *cache.Cache
	upload  config.UploadConfig
	started time.Time
}

// NewHandlers creates a new Handlers instance. journal may be nil.
func NewHandlers(batches BatchProcessor, journal sheets.Journal, upload config.UploadConfig) *Handlers {
	ttl := upload.CacheTTL()
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Handlers{
		batches: batches,
		journal: journal,
		results: cache.New(ttl, 2*ttl),
		upload:  upload,
		started: time.Now(),
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"cached_batches": h.results.ItemCount(),
	})
}

func (h *Handlers) cachedResult(batchID string) (*ingest.Result, bool) {
	v, ok := h.results.Get(batchID)
	if !ok {
		return nil, false
	}
	res, ok := v.(*ingest.Result)
	return res, ok
}
