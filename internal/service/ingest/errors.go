package ingest

import "errors"

// Sentinel errors for the ingest service layer.
var (
	ErrNoInput          = errors.New("no input files")
	ErrUploadNotAllowed = errors.New("uploaded credentials are disabled")
	ErrTooManyFiles     = errors.New("too many input files")
)
