package tablestore

import (
	"fmt"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
)

var (
	ErrUnknownTable = fmt.Errorf("unknown table: %w", internalerr.ErrNotFound)
	ErrUnknownField = fmt.Errorf("unknown field: %w", internalerr.ErrNotFound)
	ErrNoMatch      = fmt.Errorf("no matching rows: %w", internalerr.ErrNotFound)
	ErrMultipleRows = fmt.Errorf("key matches multiple rows: %w", internalerr.ErrAmbiguous)
	ErrCast         = internalerr.ErrCast
	ErrEmptyKey     = fmt.Errorf("empty key: %w", internalerr.ErrInvalidInput)
	ErrTableExists  = fmt.Errorf("table exists: %w", internalerr.ErrDuplicate)
)

// WarningKind classifies non-fatal store conditions.
type WarningKind string

const (
	CastFailure  WarningKind = "cast_failure"
	UnknownField WarningKind = "unknown_field"
	AmbiguousKey WarningKind = "ambiguous_key"
	NoMatch      WarningKind = "no_match"
	MissingTable WarningKind = "missing_table"
)

// Warning is a condition the store recovered from. Row is the row index
// within the table, or -1.
type Warning struct {
	Kind   WarningKind
	Table  string
	Field  string
	Row    int
	Detail string
}

func (w Warning) String() string {
	s := fmt.Sprintf("%s: table=%s", w.Kind, w.Table)
	if w.Field != "" {
		s += " field=" + w.Field
	}
	if w.Row >= 0 {
		s += fmt.Sprintf(" row=%d", w.Row)
	}
	if w.Detail != "" {
		s += " " + w.Detail
	}
	return s
}
