package datanorm

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	startDateInputLayout  = "2/1/06"
	startDateOutputLayout = "02/01/2006"
)

var errNotNumeric = errors.New("not a number")

// NormalizeCPC cleans a currency cell: "$" is dropped, a "," decimal separator
// becomes ".", and an empty cell counts as 0.
func NormalizeCPC(raw string) (float64, error) {
	s := strings.ReplaceAll(raw, "$", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)
	if s == "" {
		s = "0"
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotNumeric
	}
	return v, nil
}

// NormalizeStartDate reparses a DD/MM/YY date as DD/MM/YYYY. Unparsable
// values yield nil; they are never an error.
func NormalizeStartDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	t, err := time.Parse(startDateInputLayout, s)
	if err != nil {
		return nil
	}
	out := t.Format(startDateOutputLayout)
	return &out
}

// ParseCount reads an Orders/Clicks cell. Empty cells are missing (nil).
func ParseCount(raw string) (*float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errNotNumeric
	}
	return &v, nil
}

// ComputeCVR divides orders by clicks. Zero or missing clicks, and a missing
// order count, yield 0.
func ComputeCVR(orders, clicks *float64) float64 {
	if orders == nil || clicks == nil || *clicks == 0 {
		return 0
	}
	cvr := *orders / *clicks
	if math.IsNaN(cvr) || math.IsInf(cvr, 0) {
		return 0
	}
	return cvr
}
