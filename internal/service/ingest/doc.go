// Package ingest runs one uploaded batch through the pipeline: assemble the
// CSV files, normalize and classify every row, render the unmatched report,
// then append the rows to the worksheet.
//
// The service depends on interfaces defined here for the append step so the
// HTTP handlers and the CLI share one code path and tests can swap the
// remote store out.
package ingest
