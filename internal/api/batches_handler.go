package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/ignite/campaign-sheet-sync/internal/credentials"
	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/httputil"
	"github.com/ignite/campaign-sheet-sync/internal/report"
	"github.com/ignite/campaign-sheet-sync/internal/service/ingest"
	"github.com/ignite/campaign-sheet-sync/internal/storage"
)

const (
	defaultMaxUpload = 32 << 20
	multipartMemory  = 8 << 20
)

// failedBatch is the body for a batch whose append failed after the CSVs
// were normalized.
type failedBatch struct {
	httputil.ErrorResponse
	Result *ingest.Result `json:"result"`
}

// CreateBatch accepts a multipart upload: one or more "files" parts, an
// optional "credentials" part and an optional "dry_run" field.
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.upload.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondPipelineError(w, err)
			return
		}
		httputil.BadRequest(w, "expected a multipart/form-data upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	dryRun := false
	if v := r.FormValue("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "dry_run must be a boolean")
			return
		}
		dryRun = b
	}

	files := r.MultipartForm.File["files"]
	inputs := make([]datanorm.Input, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh, -1)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		inputs = append(inputs, datanorm.Input{Name: fh.Filename, Data: data})
	}

	var creds []byte
	if parts := r.MultipartForm.File["credentials"]; len(parts) > 0 {
		data, err := readPart(parts[0], credentials.MaxKeySize)
		if err != nil {
			respondPipelineError(w, fmt.Errorf("%w: %v", credentials.ErrInvalidCredentials, err))
			return
		}
		creds = data
	}

	res, err := h.batches.Process(r.Context(), inputs, ingest.Options{DryRun: dryRun, Credentials: creds})
	if res != nil {
		h.results.Set(res.BatchID, res, cache.DefaultExpiration)
	}
	if err != nil {
		if res == nil {
			respondPipelineError(w, err)
			return
		}
		e := classifyError(err)
		logClassified(err, e)
		httputil.JSON(w, e.status, failedBatch{
			ErrorResponse: httputil.ErrorResponse{Error: e.message, Code: e.code, Details: e.details},
			Result:        res,
		})
		return
	}
	httputil.Created(w, res)
}

// GetBatch returns a cached batch summary.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	res, ok := h.cachedResult(batchID)
	if !ok {
		httputil.NotFound(w, "batch not found or expired")
		return
	}
	httputil.OK(w, res)
}

// GetUnmatchedReport serves the unmatched workbook, from cache or archive.
func (h *Handlers) GetUnmatchedReport(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if _, err := uuid.Parse(batchID); err != nil {
		httputil.BadRequest(w, "invalid batch id")
		return
	}

	if res, ok := h.cachedResult(batchID); ok && len(res.Report) > 0 {
		httputil.Attachment(w, report.ContentType, report.FileName, res.Report)
		return
	}

	data, err := h.batches.Report(r.Context(), batchID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.NotFound(w, "report not found")
		return
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "failed to load report")
		return
	}
	httputil.Attachment(w, report.ContentType, report.FileName, data)
}

type classifyResponse struct {
	Campaign  string `json:"campaign"`
	Keyword   string `json:"keyword"`
	MatchType string `json:"match_type"`
	Rule      string `json:"rule"`
	Unmatched bool   `json:"unmatched"`
}

// Classify runs the classifier on each "name" query parameter.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["name"]
	if len(names) == 0 {
		httputil.BadRequest(w, "at least one name parameter is required")
		return
	}
	out := make([]classifyResponse, 0, len(names))
	for _, name := range names {
		c := datanorm.Classify(name)
		out = append(out, classifyResponse{
			Campaign:  name,
			Keyword:   c.KeywordValue(),
			MatchType: string(c.MatchType),
			Rule:      c.Rule,
			Unmatched: c.Unmatched(),
		})
	}
	httputil.OK(w, map[string]interface{}{"results": out})
}

// ListAppends returns the most recent append attempts.
func (h *Handlers) ListAppends(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, 200)
	}
	if h.journal == nil {
		httputil.OK(w, map[string]interface{}{"appends": []struct{}{}})
		return
	}
	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "failed to load append history")
		return
	}
	httputil.OK(w, map[string]interface{}{"appends": entries})
}

// readPart reads an uploaded part. limit < 0 means no limit beyond the
// request body cap.
func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if limit < 0 {
		return io.ReadAll(f)
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("part exceeds %d bytes", limit)
	}
	return data, nil
}
