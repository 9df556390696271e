// Package report renders the unmatched-row report.
package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
)

const (
	// SheetName is the worksheet holding the unmatched rows.
	SheetName = "Unmatched"
	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// FileName is the download and archive name of the report.
	FileName = "unmatched.xlsx"
)

// Columns are the report headers, in order.
var Columns = []string{"Campaigns", "Keyword", "Match_Type"}

// WriteUnmatchedXLSX writes the unmatched rows as a single-sheet workbook.
// An empty slice still produces a workbook with the header row.
func WriteUnmatchedXLSX(w io.Writer, records []*datanorm.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	if err := sw.SetColWidth(1, 1, 48); err != nil {
		return err
	}
	if err := sw.SetColWidth(2, len(Columns), 16); err != nil {
		return err
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = excelize.Cell{StyleID: bold, Value: c}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{rec.Campaign, rec.KeywordValue(), string(rec.MatchType)}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// UnmatchedXLSX renders the workbook into memory.
func UnmatchedXLSX(records []*datanorm.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteUnmatchedXLSX(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ArchiveKey is where a batch's report is stored, relative to the archive root.
func ArchiveKey(batchID string) string {
	return batchID + "/" + FileName
}
