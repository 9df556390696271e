package datanorm

import (
	"fmt"
	"strings"
)

// CanonicalField is a column the normalizer reads or writes.
type CanonicalField string

const (
	FieldCampaign  CanonicalField = "Campaigns"
	FieldOrders    CanonicalField = "Orders"
	FieldClicks    CanonicalField = "Clicks"
	FieldCPC       CanonicalField = "CPC(USD)"
	FieldStartDate CanonicalField = "Start date"

	FieldKeyword   CanonicalField = "Keyword"
	FieldMatchType CanonicalField = "Match_Type"
	FieldCVR       CanonicalField = "CVR"
)

// RequiredFields must be present in every input file.
var RequiredFields = []CanonicalField{FieldCampaign, FieldOrders, FieldClicks, FieldCPC, FieldStartDate}

// DerivedFields are appended to the output unless the input already has them.
var DerivedFields = []CanonicalField{FieldKeyword, FieldMatchType, FieldCVR}

// columnAliases maps normalized header names to canonical fields.
var columnAliases = map[string]CanonicalField{
	"campaigns":     FieldCampaign,
	"campaign":      FieldCampaign,
	"campaign name": FieldCampaign,

	"orders": FieldOrders,
	"order":  FieldOrders,

	"clicks": FieldClicks,
	"click":  FieldClicks,

	"cpc(usd)":  FieldCPC,
	"cpc (usd)": FieldCPC,
	"cpc_usd":   FieldCPC,
	"cpc":       FieldCPC,

	"start date": FieldStartDate,
	"start_date": FieldStartDate,
	"startdate":  FieldStartDate,

	"keyword":    FieldKeyword,
	"match_type": FieldMatchType,
	"match type": FieldMatchType,
	"cvr":        FieldCVR,
}

// ColumnMapping holds the resolved positions of canonical fields within a header.
// Derived fields missing from the input get positions past the last input column.
type ColumnMapping struct {
	Index    map[CanonicalField]int
	RawNames []string
	Output   []string
}

// normalizeHeader lower-cases, trims and strips surrounding quotes.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Trim(h, "\"'")
}

// MapColumns resolves the required columns of header. It returns an error
// wrapping ErrMissingColumn naming every absent column.
func MapColumns(header []string) (*ColumnMapping, error) {
	m := &ColumnMapping{
		Index:    make(map[CanonicalField]int, len(RequiredFields)+len(DerivedFields)),
		RawNames: header,
	}
	for i, h := range header {
		field, ok := columnAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := m.Index[field]; !seen {
			m.Index[field] = i
		}
	}

	var missing []string
	for _, f := range RequiredFields {
		if _, ok := m.Index[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	m.Output = append([]string(nil), header...)
	for _, f := range DerivedFields {
		if _, ok := m.Index[f]; ok {
			continue
		}
		m.Index[f] = len(m.Output)
		m.Output = append(m.Output, string(f))
	}
	return m, nil
}

// Width is the number of output columns.
func (m *ColumnMapping) Width() int { return len(m.Output) }

// SameHeader reports whether two headers carry the same columns in the same order.
func SameHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}
