package datanorm

import (
	"errors"
	"fmt"
)

// MatchType is the targeting mode decoded from a campaign name.
// The empty value means no rule recognized a match type.
type MatchType string

const (
	MatchNone    MatchType = ""
	MatchAuto    MatchType = "auto"
	MatchAllKey  MatchType = "all key"
	MatchBroad   MatchType = "b"
	MatchPhrase  MatchType = "p"
	MatchExact   MatchType = "ex"
	MatchExactP  MatchType = "exp"
	MatchBroadP  MatchType = "b,p"
	MatchASINBrd MatchType = "a,b"
)

// Classification is the (Keyword, Match_Type) pair derived from a campaign name.
// Keyword is nil when no keyword could be extracted; it may be nil while
// MatchType is still set (auto / all key without a usable token).
type Classification struct {
	Keyword   *string
	MatchType MatchType
	Rule      string
}

// Unmatched reports whether every rule failed for the campaign name.
func (c Classification) Unmatched() bool {
	return c.Keyword == nil && c.MatchType == MatchNone
}

// KeywordValue returns the keyword or "" when absent.
func (c Classification) KeywordValue() string {
	if c.Keyword == nil {
		return ""
	}
	return *c.Keyword
}

// Input is one uploaded CSV file.
type Input struct {
	Name string
	Data []byte
}

// Record is one campaign row after assembly. The normalizer fills the derived
// fields in place.
type Record struct {
	Source string
	Line   int
	Cells  []string

	Campaign string
	Orders   *float64
	Clicks   *float64

	CPC       float64
	StartDate *string
	CVR       float64

	Keyword   *string
	MatchType MatchType
}

// Unmatched reports whether the row failed classification entirely.
func (r *Record) Unmatched() bool {
	return r.Keyword == nil && r.MatchType == MatchNone
}

// KeywordValue returns the keyword or "" when absent.
func (r *Record) KeywordValue() string { return optional(r.Keyword) }

// Batch is the ordered concatenation of all uploaded files.
type Batch struct {
	Header  []string
	Mapping *ColumnMapping
	Records []*Record
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

var (
	ErrEmptyInput     = errors.New("input file has no header row")
	ErrMissingColumn  = errors.New("required column missing")
	ErrColumnMismatch = errors.New("input files have different columns")
)

// RowError pins a malformed value to its file, line and column.
type RowError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s line %d: column %q value %q: %v", e.Source, e.Line, e.Column, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
