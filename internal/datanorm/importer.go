package datanorm

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Assemble concatenates the inputs into one batch, in the order given and
// preserving each file's row order. Every file must carry the same header.
func Assemble(inputs ...Input) (*Batch, error) {
	batch := &Batch{}
	for _, in := range inputs {
		header, rows, err := readCSV(in)
		if err != nil {
			return nil, err
		}
		if batch.Header == nil {
			mapping, err := MapColumns(header)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", in.Name, err)
			}
			batch.Header = header
			batch.Mapping = mapping
		} else if !SameHeader(batch.Header, header) {
			return nil, fmt.Errorf("%w: %s has %v, expected %v", ErrColumnMismatch, in.Name, header, batch.Header)
		}

		for _, row := range rows {
			batch.Records = append(batch.Records, newRecord(in.Name, row, batch.Mapping))
		}
	}
	return batch, nil
}

type csvRow struct {
	line  int
	cells []string
}

func readCSV(in Input) ([]string, []csvRow, error) {
	reader := csv.NewReader(stripBOM(bytes.NewReader(in.Data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: %w", in.Name, ErrEmptyInput)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", in.Name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []csvRow
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", in.Name, err)
		}
		if isBlankRow(cells) {
			continue
		}
		line, _ := reader.FieldPos(0)
		if err := checkWidth(in.Name, line, header, cells); err != nil {
			return nil, nil, err
		}
		rows = append(rows, csvRow{line: line, cells: cells})
	}
	return header, rows, nil
}

// checkWidth rejects a row with more non-empty cells than the header has
// columns. Trailing empty cells are dropped; short rows are padded later.
func checkWidth(source string, line int, header, cells []string) error {
	for i := len(header); i < len(cells); i++ {
		if strings.TrimSpace(cells[i]) == "" {
			continue
		}
		return &RowError{
			Source: source,
			Line:   line,
			Column: fmt.Sprintf("#%d", i+1),
			Value:  cells[i],
			Err:    fmt.Errorf("%w: row has %d fields, header has %d", ErrColumnMismatch, len(cells), len(header)),
		}
	}
	return nil
}

func newRecord(source string, row csvRow, m *ColumnMapping) *Record {
	cells := make([]string, len(m.RawNames))
	copy(cells, row.cells)
	return &Record{
		Source:   source,
		Line:     row.line,
		Cells:    cells,
		Campaign: cells[m.Index[FieldCampaign]],
	}
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// stripBOM wraps a reader to strip a UTF-8 BOM if present.
func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, err := io.ReadFull(r, buf)
	if err != nil || n < 3 {
		return io.MultiReader(bytes.NewReader(buf[:n]), r)
	}
	if buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
		return r
	}
	return io.MultiReader(bytes.NewReader(buf[:n]), r)
}
