// Package curation collects extracted values that no catalog entry
// resolved, so they can be reviewed and added to the reference tables.
package curation

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// Kind is the catalog an unresolved value belongs to.
type Kind string

const (
	KindClient Kind = "client"
	KindPeople Kind = "people"
	KindStrain Kind = "strain"
)

// Header is the column order of a written log.
var Header = []string{"study_id", "add_type", "add_value", "filepath"}

// Entry is one unresolved extraction.
type Entry struct {
	StudyID  string
	Kind     Kind
	Value    string
	Filepath string
}

// Log is the curation output of an ingestion run, in extraction order.
type Log struct {
	entries []Entry
}

// Add appends an entry. Blank values are ignored.
func (l *Log) Add(e Entry) {
	e.Value = strings.TrimSpace(e.Value)
	if e.Value == "" {
		return
	}
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the entries.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len is the number of entries.
func (l *Log) Len() int { return len(l.entries) }

func (l *Log) records() [][]string {
	out := make([][]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, []string{e.StudyID, string(e.Kind), e.Value, e.Filepath})
	}
	return out
}

// WriteCSV writes the log with a header row.
func (l *Log) WriteCSV(w io.Writer) error {
	return tablestore.WriteCSV(w, Header, l.records())
}

// ReadCSV reads a log written by WriteCSV. Columns are located by header
// name so reordered files still load.
func ReadCSV(r io.Reader) (*Log, error) {
	header, records, err := tablestore.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("read curation log: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, h := range Header {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("read curation log: missing column %q: %w", h, internalerr.ErrInvalidInput)
		}
	}
	get := func(rec []string, name string) string {
		if i := col[name]; i < len(rec) {
			return rec[i]
		}
		return ""
	}
	l := &Log{}
	for _, rec := range records {
		l.Add(Entry{
			StudyID:  get(rec, "study_id"),
			Kind:     Kind(get(rec, "add_type")),
			Value:    get(rec, "add_value"),
			Filepath: get(rec, "filepath"),
		})
	}
	return l, nil
}

// Save writes the log as a whole table on a store backend.
func (l *Log) Save(ctx context.Context, backend tablestore.Backend, table string) error {
	if err := backend.WriteTable(ctx, table, Header, l.records()); err != nil {
		return fmt.Errorf("save curation log %s: %w", table, err)
	}
	return nil
}
