package datanorm

import (
	"strconv"
)

// Normalize fills the derived fields of every record in place. The first
// malformed Orders, Clicks or CPC value rejects the whole batch with a *RowError.
func Normalize(b *Batch) error {
	if b == nil {
		return nil
	}
	m := b.Mapping
	for _, rec := range b.Records {
		if err := normalizeRecord(rec, m); err != nil {
			return err
		}
	}
	return nil
}

func normalizeRecord(rec *Record, m *ColumnMapping) error {
	var err error
	ordersIdx, clicksIdx, cpcIdx := m.Index[FieldOrders], m.Index[FieldClicks], m.Index[FieldCPC]

	if rec.Orders, err = ParseCount(rec.Cells[ordersIdx]); err != nil {
		return rowError(rec, m, ordersIdx, err)
	}
	if rec.Clicks, err = ParseCount(rec.Cells[clicksIdx]); err != nil {
		return rowError(rec, m, clicksIdx, err)
	}
	rec.CVR = ComputeCVR(rec.Orders, rec.Clicks)

	if rec.CPC, err = NormalizeCPC(rec.Cells[cpcIdx]); err != nil {
		return rowError(rec, m, cpcIdx, err)
	}
	rec.StartDate = NormalizeStartDate(rec.Cells[m.Index[FieldStartDate]])

	c := Classify(rec.Campaign)
	rec.Keyword, rec.MatchType = c.Keyword, c.MatchType
	return nil
}

func rowError(rec *Record, m *ColumnMapping, idx int, err error) error {
	return &RowError{
		Source: rec.Source,
		Line:   rec.Line,
		Column: m.RawNames[idx],
		Value:  rec.Cells[idx],
		Err:    err,
	}
}

// Row renders a normalized record in output column order. Empty optional
// values become "" so the remote store receives blank cells.
func (m *ColumnMapping) Row(rec *Record) []interface{} {
	out := make([]interface{}, m.Width())
	for i := range out {
		if i < len(rec.Cells) {
			out[i] = rec.Cells[i]
		} else {
			out[i] = ""
		}
	}
	if rec.Orders != nil {
		out[m.Index[FieldOrders]] = *rec.Orders
	}
	if rec.Clicks != nil {
		out[m.Index[FieldClicks]] = *rec.Clicks
	}
	out[m.Index[FieldCPC]] = rec.CPC
	out[m.Index[FieldStartDate]] = optional(rec.StartDate)
	out[m.Index[FieldKeyword]] = optional(rec.Keyword)
	out[m.Index[FieldMatchType]] = string(rec.MatchType)
	out[m.Index[FieldCVR]] = rec.CVR
	return out
}

// Rows renders the whole batch for the append client.
func (b *Batch) Rows() [][]interface{} {
	if b.Len() == 0 {
		return nil
	}
	rows := make([][]interface{}, len(b.Records))
	for i, rec := range b.Records {
		rows[i] = b.Mapping.Row(rec)
	}
	return rows
}

// Preview renders the first n rows as strings, keyed by output column.
func (b *Batch) Preview(n int) []map[string]string {
	if b == nil {
		return []map[string]string{}
	}
	if n > b.Len() {
		n = b.Len()
	}
	out := make([]map[string]string, 0, n)
	for _, rec := range b.Records[:n] {
		row := b.Mapping.Row(rec)
		m := make(map[string]string, len(row))
		for i, v := range row {
			m[b.Mapping.Output[i]] = cellString(v)
		}
		out = append(out, m)
	}
	return out
}

// Unmatched returns the rows whose keyword and match type are both empty.
// Rows with a match type but no keyword count as classified.
func Unmatched(b *Batch) []*Record {
	var out []*Record
	if b == nil {
		return out
	}
	for _, rec := range b.Records {
		if rec.Unmatched() {
			out = append(out, rec)
		}
	}
	return out
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
