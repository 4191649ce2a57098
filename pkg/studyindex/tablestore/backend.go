package tablestore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
)

// Backend persists whole tables. Tables are exchanged as a header plus
// string records; typing is the Store's concern.
type Backend interface {
	ListTables(ctx context.Context) ([]string, error)
	ReadTable(ctx context.Context, name string) (header []string, records [][]string, err error)
	WriteTable(ctx context.Context, name string, header []string, records [][]string) error
	DeleteTable(ctx context.Context, name string) error
}

// ReadCSV decodes a CSV stream into a header and records. Short records
// are padded with empty cells.
func ReadCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	header := all[0]
	if len(header) > 0 {
		// Excel writes a BOM on the first cell.
		header[0] = trimBOM(header[0])
	}
	records := all[1:]
	for i, rec := range records {
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			records[i] = padded
		}
	}
	return header, records, nil
}

// WriteCSV encodes a header and records as CSV.
func WriteCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	return nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
