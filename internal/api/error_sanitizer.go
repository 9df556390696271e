package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/campaign-sheet-sync/internal/credentials"
	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/httputil"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
	"github.com/ignite/campaign-sheet-sync/internal/service/ingest"
	"github.com/ignite/campaign-sheet-sync/internal/sheets"
)

// =============================================================================
// ERROR SANITIZER
// Internal errors (database details, file paths, remote API bodies) never
// reach API consumers. 4xx errors describe the caller's input; 5xx errors
// return a generic message and the full error is logged server-side.
// =============================================================================

// apiError is the classified form of a pipeline error.
type apiError struct {
	status  int
	code    string
	message string
	details any
}

// classifyError maps a pipeline error to a status, code and public message.
func classifyError(err error) apiError {
	var (
		rowErr   *datanorm.RowError
		writeErr *sheets.WriteError
		remote   *sheets.APIError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &rowErr):
		return apiError{http.StatusBadRequest, "invalid_value", err.Error(), map[string]any{
			"file":   rowErr.Source,
			"line":   rowErr.Line,
			"column": rowErr.Column,
			"value":  rowErr.Value,
		}}
	case errors.Is(err, datanorm.ErrEmptyInput),
		errors.Is(err, datanorm.ErrMissingColumn),
		errors.Is(err, datanorm.ErrColumnMismatch),
		errors.Is(err, ingest.ErrNoInput),
		errors.Is(err, ingest.ErrTooManyFiles):
		return apiError{http.StatusBadRequest, "invalid_input", err.Error(), nil}
	case errors.As(err, &tooLarge):
		return apiError{http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit", nil}

	case errors.Is(err, ingest.ErrUploadNotAllowed):
		return apiError{http.StatusForbidden, "upload_disabled", err.Error(), nil}
	case errors.Is(err, credentials.ErrInvalidCredentials):
		// Parse errors never echo key material, so the message is safe.
		return apiError{http.StatusUnauthorized, "invalid_credentials", err.Error(), nil}
	case errors.Is(err, credentials.ErrNoCredentials):
		return apiError{http.StatusUnauthorized, "no_credentials", "no service account credentials available", nil}

	case errors.Is(err, sheets.ErrLockTimeout):
		return apiError{http.StatusConflict, "append_busy", "another append to this worksheet is in progress", nil}
	case errors.Is(err, sheets.ErrLockLost):
		return apiError{http.StatusConflict, "lock_lost", "append lock was lost before writing; nothing was written", map[string]any{
			"retryable": true,
		}}
	case errors.As(err, &writeErr):
		return apiError{http.StatusBadGateway, "append_failed", "spreadsheet update failed", map[string]any{
			"start_row": writeErr.StartRow,
			"rows":      writeErr.Rows,
			"applied":   writeErr.Applied,
			"retryable": writeErr.Retryable(),
		}}
	case errors.Is(err, sheets.ErrWorksheetNotFound):
		return apiError{http.StatusBadGateway, "worksheet_not_found", "configured worksheet does not exist", nil}
	case errors.As(err, &remote):
		return apiError{http.StatusBadGateway, "sheets_api", "spreadsheet service rejected the request", map[string]any{
			"status": remote.StatusCode,
		}}

	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusGatewayTimeout, "timeout", "Request timed out", nil}
	}
	return apiError{http.StatusInternalServerError, "internal", safeErrorMessage(http.StatusInternalServerError, err), nil}
}

// respondPipelineError logs err and writes the classified response.
func respondPipelineError(w http.ResponseWriter, err error) {
	e := classifyError(err)
	logClassified(err, e)
	httputil.ErrorCode(w, e.status, e.code, e.message, e.details)
}

func logClassified(err error, e apiError) {
	if e.status >= 500 {
		logger.Error("api: request failed", "status", e.status, "code", e.code, "error", err)
		return
	}
	logger.Warn("api: request rejected", "status", e.status, "code", e.code, "error", err)
}

// respondSafeError logs the internal error and sends publicMsg to the client.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error("api: "+publicMsg, "status", code, "error", internalErr)
	}
	httputil.Error(w, code, publicMsg)
}

// safeErrorMessage maps common internal error patterns to public-safe messages.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "Bad request"
	}
	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "access denied"):
		return "Access denied"

	default:
		return "An internal error occurred"
	}
}
