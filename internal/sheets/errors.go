package sheets

import (
	"errors"
	"fmt"
)

// Sentinel errors for the append path.
var (
	ErrPartialWrite      = errors.New("sheets: write partially applied")
	ErrLockTimeout       = errors.New("sheets: timed out waiting for the append lock")
	ErrWorksheetNotFound = errors.New("sheets: worksheet not found")
	ErrLockLost          = errors.New("sheets: append lock lost before write")
)

// Applied describes how much of a failed write reached the worksheet.
type Applied string

const (
	AppliedNone    Applied = "none"
	AppliedAll     Applied = "all"
	AppliedPartial Applied = "partial"
	AppliedUnknown Applied = "unknown"
)

// WriteError reports a failed write together with what the follow-up row
// count showed. Only AppliedNone is safe to retry as-is.
type WriteError struct {
	StartRow int
	Rows     int
	Applied  Applied
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sheets: write of %d rows at row %d failed (applied: %s): %v", e.Rows, e.StartRow, e.Applied, e.Err)
}

func (e *WriteError) Unwrap() []error {
	if e.Applied == AppliedPartial {
		return []error{e.Err, ErrPartialWrite}
	}
	return []error{e.Err}
}

// Retryable reports whether the same rows can be appended again without
// duplicating anything.
func (e *WriteError) Retryable() bool { return e.Applied == AppliedNone }

// APIError is a non-2xx response from the Sheets API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("sheets api: %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("sheets api: %d: %s", e.StatusCode, e.Message)
}
